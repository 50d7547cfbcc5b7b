package plugin

import (
	"errors"
	"fmt"
	"slices"

	"AgentWallet-Kit/pkg/wallet"
)

// IsolationPolicy restricts the wallet capabilities a plugin may require.
type IsolationPolicy struct {
	AllowedCapabilities []wallet.Capability `yaml:"allowed_capabilities" json:"allowedCapabilities,omitempty"`
	DeniedCapabilities  []wallet.Capability `yaml:"denied_capabilities" json:"deniedCapabilities,omitempty"`
}

// IsZero reports whether the policy restricts nothing.
func (p IsolationPolicy) IsZero() bool {
	return len(p.AllowedCapabilities) == 0 && len(p.DeniedCapabilities) == 0
}

// Merge returns a new policy using values from other when not present.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// Validate rejects a capability that is both allowed and denied.
func (p IsolationPolicy) Validate() error {
	for _, c := range p.DeniedCapabilities {
		if c == "" {
			return errors.New("empty capability in deny list")
		}
		if slices.Contains(p.AllowedCapabilities, c) {
			return fmt.Errorf("capability %s is both allowed and denied", c)
		}
	}
	return nil
}

// Permits reports whether c passes the policy. Base capabilities are always
// permitted unless explicitly denied.
func (p IsolationPolicy) Permits(c wallet.Capability) bool {
	if slices.Contains(p.DeniedCapabilities, c) {
		return false
	}
	if len(p.AllowedCapabilities) == 0 || slices.Contains(wallet.BaseCapabilities, c) {
		return true
	}
	return slices.Contains(p.AllowedCapabilities, c)
}

// IsolationStrategy enforces an isolation policy when a plugin is registered.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
}

// CapabilityIsolationStrategy checks declared capabilities against the policy.
type CapabilityIsolationStrategy struct{}

// Validate ensures the plugin requested capabilities are allowed.
func (CapabilityIsolationStrategy) Validate(info Info, policy IsolationPolicy) error {
	for _, c := range info.Capabilities {
		if slices.Contains(policy.DeniedCapabilities, c) {
			return fmt.Errorf("capability %s is explicitly denied", c)
		}
		if !policy.Permits(c) {
			return fmt.Errorf("capability %s not permitted", c)
		}
	}
	return nil
}

// NewIsolationStrategy returns a default isolation strategy if none is supplied.
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return CapabilityIsolationStrategy{}
	}
	return strategy
}

// MergePolicies combines the default and plugin specific isolation policies.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil {
		return defaults
	}
	merged := plugin.Merge(defaults)
	if merged.IsZero() {
		return defaults
	}
	return merged
}
