package plugin

import (
	"slices"

	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/wallet"
)

// Base implements the descriptive half of Plugin. Embed it and add GetTools.
type Base struct {
	name         string
	description  string
	version      string
	chains       chain.Set
	allChains    bool
	smartWallets bool
	required     []wallet.Capability
}

// BaseOption configures a Base.
type BaseOption func(*Base)

// ForChains restricts the plugin to the given chain types.
func ForChains(types ...chain.Type) BaseOption {
	return func(b *Base) {
		b.chains = chain.NewSet(types...)
		b.allChains = false
	}
}

// ForAllChains accepts any chain.
func ForAllChains() BaseOption {
	return func(b *Base) {
		b.allChains = true
	}
}

// WithoutSmartWallets refuses smart wallet variants.
func WithoutSmartWallets() BaseOption {
	return func(b *Base) {
		b.smartWallets = false
	}
}

// Requires declares wallet capabilities beyond the base set.
func Requires(caps ...wallet.Capability) BaseOption {
	return func(b *Base) {
		for _, c := range caps {
			if !slices.Contains(b.required, c) {
				b.required = append(b.required, c)
			}
		}
	}
}

// WithDescription sets the human readable description.
func WithDescription(description string) BaseOption {
	return func(b *Base) {
		b.description = description
	}
}

// WithVersion sets the plugin version.
func WithVersion(version string) BaseOption {
	return func(b *Base) {
		b.version = version
	}
}

// NewBase builds a Base. Without ForChains or ForAllChains the plugin supports
// no chain. Smart wallets are accepted unless WithoutSmartWallets is given.
func NewBase(name string, opts ...BaseOption) Base {
	b := Base{name: name, smartWallets: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

func (b Base) Name() string { return b.name }

func (b Base) SupportsChain(c chain.Chain) bool {
	if c.IsZero() {
		return false
	}
	return b.allChains || b.chains.Supports(c)
}

func (b Base) SupportsSmartWallets() bool { return b.smartWallets }

// RequiredCapabilities always includes wallet.BaseCapabilities, since every
// tool may address, sign or query the balance of the wallet it is given.
func (b Base) RequiredCapabilities() []wallet.Capability {
	return withBaseCapabilities(b.required)
}

func (b Base) Info() Info {
	return Info{
		Name:         b.name,
		Description:  b.description,
		Version:      b.version,
		Chains:       b.chains.Types(),
		AllChains:    b.allChains,
		SmartWallets: b.smartWallets,
		Capabilities: b.RequiredCapabilities(),
	}
}

// Describe returns metadata for any plugin, using Describer when implemented.
// The reported capabilities always include the base set, so isolation
// policies see every capability a plugin can reach.
func Describe(p Plugin) Info {
	var info Info
	if d, ok := p.(Describer); ok {
		info = d.Info()
		if info.Name == "" {
			info.Name = p.Name()
		}
	} else {
		info = Info{Name: p.Name(), SmartWallets: p.SupportsSmartWallets()}
		if r, ok := p.(CapabilityRequirer); ok {
			info.Capabilities = r.RequiredCapabilities()
		}
	}
	info.Capabilities = withBaseCapabilities(info.Capabilities)
	return info
}

// withBaseCapabilities returns the base set followed by the extra
// capabilities in declaration order, without duplicates.
func withBaseCapabilities(extra []wallet.Capability) []wallet.Capability {
	out := slices.Clone(wallet.BaseCapabilities)
	for _, c := range extra {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
