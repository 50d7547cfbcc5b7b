package plugin

import (
	"fmt"
	"strings"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/wallet"
)

// CheckCompatibility decides whether p can be paired with w. It never calls
// GetTools and has no side effects. The returned error matches
// ErrIncompatible and carries an Incompatibility as details.
func CheckCompatibility(p Plugin, w wallet.Client) error {
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "plugin is nil")
	}
	if w == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet is nil")
	}
	c := w.Chain()
	if !p.SupportsChain(c) {
		return incompatible(Incompatibility{Plugin: p.Name(), Reason: ReasonUnsupportedChain, Chain: c},
			fmt.Sprintf("plugin %q does not support chain %s", p.Name(), describeChain(c)))
	}
	if wallet.IsSmart(w) && !p.SupportsSmartWallets() {
		return incompatible(Incompatibility{Plugin: p.Name(), Reason: ReasonSmartWallet, Chain: c},
			fmt.Sprintf("plugin %q does not support smart wallets", p.Name()))
	}
	if r, ok := p.(CapabilityRequirer); ok {
		if missing := wallet.Missing(w, r.RequiredCapabilities()...); len(missing) > 0 {
			return incompatible(Incompatibility{Plugin: p.Name(), Reason: ReasonMissingCapabilities, Chain: c, Missing: missing},
				fmt.Sprintf("plugin %q requires wallet capabilities %s", p.Name(), joinCapabilities(missing)))
		}
	}
	if a, ok := p.(WalletAcceptor); ok && !a.AcceptsWallet(w) {
		return incompatible(Incompatibility{Plugin: p.Name(), Reason: ReasonWalletType, Chain: c},
			fmt.Sprintf("plugin %q cannot use wallet of type %T", p.Name(), w))
	}
	return nil
}

// IncompatibilityOf extracts the structured reason from a CheckCompatibility
// error.
func IncompatibilityOf(err error) (Incompatibility, bool) {
	coded, ok := xerrors.From(err)
	if !ok {
		return Incompatibility{}, false
	}
	inc, ok := coded.Details().(Incompatibility)
	return inc, ok
}

func incompatible(inc Incompatibility, message string) error {
	return xerrors.New(xerrors.CodeIncompatiblePlugin, message,
		xerrors.WithDetails(inc),
		xerrors.WithMetadata("plugin", inc.Plugin),
		xerrors.WithMetadata("reason", string(inc.Reason)),
	)
}

func describeChain(c chain.Chain) string {
	if c.IsZero() {
		return "<unset>"
	}
	return c.String()
}

func joinCapabilities(caps []wallet.Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
