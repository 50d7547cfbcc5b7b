package plugin

import (
	"context"
	"fmt"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
)

// Factory builds tools from a wallet of concrete capability type W.
type Factory[W wallet.Client] func(ctx context.Context, w W) ([]*tool.Tool, error)

// TypedPlugin adapts a factory over an extended wallet interface such as
// wallet.EVMClient. Wallets that do not satisfy W are rejected during the
// compatibility check, before the factory is reached.
type TypedPlugin[W wallet.Client] struct {
	Base
	factory Factory[W]
}

var _ WalletAcceptor = (*TypedPlugin[wallet.EVMClient])(nil)

// Typed builds a plugin from base metadata and a typed factory.
func Typed[W wallet.Client](base Base, factory Factory[W]) *TypedPlugin[W] {
	return &TypedPlugin[W]{Base: base, factory: factory}
}

// AcceptsWallet reports whether w satisfies W.
func (p *TypedPlugin[W]) AcceptsWallet(w wallet.Client) bool {
	_, ok := w.(W)
	return ok
}

// Info adds the capabilities W guarantees to those declared with Requires,
// so isolation policies apply to a typed plugin that declares nothing. The
// compatibility check keeps reporting a wallet of the wrong Go type as
// ReasonWalletType.
func (p *TypedPlugin[W]) Info() Info {
	info := p.Base.Info()
	info.Capabilities = withBaseCapabilities(append(info.Capabilities, wallet.CapabilitiesOfType[W]()...))
	return info
}

// GetTools implements Plugin. A plugin built without a factory fails with
// TOOL_BUILD_FAILED instead of contributing nothing.
func (p *TypedPlugin[W]) GetTools(ctx context.Context, w wallet.Client) ([]*tool.Tool, error) {
	typed, ok := w.(W)
	if !ok {
		return nil, xerrors.New(xerrors.CodeIncompatiblePlugin,
			fmt.Sprintf("plugin %q cannot use wallet of type %T", p.Name(), w))
	}
	if p.factory == nil {
		return nil, xerrors.New(xerrors.CodeToolBuild,
			fmt.Sprintf("plugin %q has no tool factory", p.Name()),
			xerrors.WithMetadata("plugin", p.Name()))
	}
	return p.factory(ctx, typed)
}
