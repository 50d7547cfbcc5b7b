// Package plugin composes protocol integrations over a wallet. A plugin
// declares the chains and wallet capabilities it works with and produces
// tools once paired with a compatible wallet.
package plugin

import (
	"context"
	"log/slog"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
)

// Plugin is a named, stateless tool factory.
type Plugin interface {
	// Name identifies the plugin within a registry.
	Name() string
	// SupportsChain must be pure; it is evaluated before GetTools.
	SupportsChain(c chain.Chain) bool
	// SupportsSmartWallets reports whether smart wallet variants are accepted.
	SupportsSmartWallets() bool
	// GetTools builds a fresh, ordered tool set bound to w. It may perform
	// I/O but must not cause wallet side effects.
	GetTools(ctx context.Context, w wallet.Client) ([]*tool.Tool, error)
}

// CapabilityRequirer is implemented by plugins that need more than the base
// wallet capability set.
type CapabilityRequirer interface {
	RequiredCapabilities() []wallet.Capability
}

// Configurable plugins receive their configuration block on registration.
type Configurable interface {
	Configure(cfg map[string]any) error
}

// Describer exposes static metadata.
type Describer interface {
	Info() Info
}

// WalletAcceptor lets a plugin reject wallets by Go type before GetTools runs.
type WalletAcceptor interface {
	AcceptsWallet(w wallet.Client) bool
}

var (
	ErrIncompatible = xerrors.New(xerrors.CodeIncompatiblePlugin, "")
	ErrToolBuild    = xerrors.New(xerrors.CodeToolBuild, "")
	ErrToolNotFound = xerrors.New(xerrors.CodeToolNotFound, "")
	ErrConflict     = xerrors.New(xerrors.CodeConflict, "")
	ErrLoad         = xerrors.New(xerrors.CodePluginLoad, "")
)

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy sets a custom isolation policy enforcement strategy.
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithStrictCompatibility makes Tools fail on the first incompatible plugin
// instead of skipping it.
func WithStrictCompatibility() Option {
	return func(m *Manager) {
		m.strict = true
	}
}

// WithLogger replaces the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// RegisterOption customises a single registration.
type RegisterOption func(*registration)

type registration struct {
	config map[string]any
	policy *IsolationPolicy
	source string
}

// WithConfig supplies the plugin configuration block, overriding the manager
// configuration entry for the plugin.
func WithConfig(cfg map[string]any) RegisterOption {
	return func(r *registration) {
		r.config = cfg
	}
}

// WithPolicy supplies a plugin specific isolation policy.
func WithPolicy(policy IsolationPolicy) RegisterOption {
	return func(r *registration) {
		r.policy = &policy
	}
}

func withSource(source string) RegisterOption {
	return func(r *registration) {
		r.source = source
	}
}
