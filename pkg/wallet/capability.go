package wallet

import (
	"reflect"
	"slices"
)

// Capability names one operation a wallet can perform.
type Capability string

const (
	CapabilityAddress     Capability = "address"
	CapabilityChain       Capability = "chain"
	CapabilitySignMessage Capability = "sign_message"
	CapabilityBalance     Capability = "balance"

	CapabilityEVMSendTransaction    Capability = "evm.send_transaction"
	CapabilityEVMRead               Capability = "evm.read"
	CapabilitySolanaSendTransaction Capability = "solana.send_transaction"
)

// BaseCapabilities is what every Client provides.
var BaseCapabilities = []Capability{
	CapabilityAddress,
	CapabilityChain,
	CapabilitySignMessage,
	CapabilityBalance,
}

// CapabilitiesOf derives the capability set from the Go type of w. A nil
// wallet has no capabilities.
func CapabilitiesOf(w Client) []Capability {
	if w == nil {
		return nil
	}
	caps := slices.Clone(BaseCapabilities)
	if _, ok := w.(EVMTransactor); ok {
		caps = append(caps, CapabilityEVMSendTransaction)
	}
	if _, ok := w.(EVMReader); ok {
		caps = append(caps, CapabilityEVMRead)
	}
	if _, ok := w.(SolanaTransactor); ok {
		caps = append(caps, CapabilitySolanaSendTransaction)
	}
	return caps
}

var extensions = []struct {
	iface reflect.Type
	cap   Capability
}{
	{reflect.TypeFor[EVMTransactor](), CapabilityEVMSendTransaction},
	{reflect.TypeFor[EVMReader](), CapabilityEVMRead},
	{reflect.TypeFor[SolanaTransactor](), CapabilitySolanaSendTransaction},
}

// CapabilitiesOfType returns the capabilities every value of W is guaranteed
// to provide. For an interface W that is the base set plus each extension
// interface W embeds.
func CapabilitiesOfType[W Client]() []Capability {
	t := reflect.TypeFor[W]()
	caps := slices.Clone(BaseCapabilities)
	for _, ext := range extensions {
		if t.Implements(ext.iface) {
			caps = append(caps, ext.cap)
		}
	}
	return caps
}

// Has reports whether w provides capability c.
func Has(w Client, c Capability) bool {
	return slices.Contains(CapabilitiesOf(w), c)
}

// Missing returns the subset of required capabilities w does not provide, in
// the order they were requested.
func Missing(w Client, required ...Capability) []Capability {
	have := CapabilitiesOf(w)
	var missing []Capability
	for _, c := range required {
		if !slices.Contains(have, c) && !slices.Contains(missing, c) {
			missing = append(missing, c)
		}
	}
	return missing
}
