package plugin

import (
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/wallet"
)

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Version      string              `json:"version,omitempty"`
	Chains       []chain.Type        `json:"chains,omitempty"`
	AllChains    bool                `json:"allChains,omitempty"`
	SmartWallets bool                `json:"smartWallets"`
	Capabilities []wallet.Capability `json:"capabilities,omitempty"`
	Source       string              `json:"source,omitempty"`
}

// Reason classifies why a plugin cannot be paired with a wallet.
type Reason string

const (
	ReasonUnsupportedChain    Reason = "unsupported_chain"
	ReasonSmartWallet         Reason = "smart_wallet_unsupported"
	ReasonMissingCapabilities Reason = "missing_capabilities"
	ReasonWalletType          Reason = "wallet_type"
	ReasonPolicy              Reason = "policy"
)

// Incompatibility describes a rejected (plugin, wallet) pairing.
type Incompatibility struct {
	Plugin  string              `json:"plugin"`
	Reason  Reason              `json:"reason"`
	Chain   chain.Chain         `json:"chain"`
	Missing []wallet.Capability `json:"missing,omitempty"`
}

// Source values recorded in Info.
const (
	SourceManual = "manual"
	SourceShared = "shared-object"
)
