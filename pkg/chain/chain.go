// Package chain identifies blockchain families and networks in a way that can be
// compared, logged and carried through configuration files.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type is the discriminating tag of a blockchain family.
type Type string

const (
	TypeEVM      Type = "evm"
	TypeSolana   Type = "solana"
	TypeAptos    Type = "aptos"
	TypeChromia  Type = "chromia"
	TypeCosmos   Type = "cosmos"
	TypeFuel     Type = "fuel"
	TypeSui      Type = "sui"
	TypeStarknet Type = "starknet"
	TypeZilliqa  Type = "zilliqa"
	TypeRadix    Type = "radix"
)

// KnownTypes lists the families shipped with the toolkit. Any other non-empty
// type is still valid.
var KnownTypes = []Type{
	TypeEVM, TypeSolana, TypeAptos, TypeChromia, TypeCosmos,
	TypeFuel, TypeSui, TypeStarknet, TypeZilliqa, TypeRadix,
}

// Chain is an immutable value identifying a blockchain. ID is the numeric
// network identifier (the chain ID for EVM networks); zero means unset.
type Chain struct {
	Type Type   `json:"type" yaml:"type"`
	ID   uint64 `json:"id,omitempty" yaml:"id,omitempty"`
}

// New returns a chain of the given family. The type is normalised to lower case.
func New(t Type, id uint64) Chain {
	return Chain{Type: Type(strings.ToLower(strings.TrimSpace(string(t)))), ID: id}
}

// EVM returns an EVM chain with the given chain ID.
func EVM(id uint64) Chain { return Chain{Type: TypeEVM, ID: id} }

// Solana returns the Solana chain value.
func Solana() Chain { return Chain{Type: TypeSolana} }

// Equal reports structural equality.
func (c Chain) Equal(other Chain) bool { return c == other }

// HasID reports whether a numeric identifier is present.
func (c Chain) HasID() bool { return c.ID != 0 }

// IsZero reports whether the chain carries no type.
func (c Chain) IsZero() bool { return c.Type == "" }

// Is reports whether the chain belongs to family t.
func (c Chain) Is(t Type) bool { return c.Type == t }

// String renders "type" or "type:id".
func (c Chain) String() string {
	if c.ID == 0 {
		return string(c.Type)
	}
	return string(c.Type) + ":" + strconv.FormatUint(c.ID, 10)
}

// Validate reports whether the chain can be used to negotiate plugins.
func (c Chain) Validate() error {
	if c.Type == "" {
		return errors.New("chain type cannot be empty")
	}
	if strings.ContainsAny(string(c.Type), ": \t") {
		return fmt.Errorf("chain type %q contains invalid characters", c.Type)
	}
	return nil
}

// Parse reads the form produced by String.
func Parse(raw string) (Chain, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Chain{}, errors.New("chain cannot be empty")
	}
	name, idPart, hasID := strings.Cut(raw, ":")
	c := New(Type(name), 0)
	if hasID {
		id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return Chain{}, fmt.Errorf("parse chain id %q: %w", idPart, err)
		}
		c.ID = id
	}
	if err := c.Validate(); err != nil {
		return Chain{}, err
	}
	return c, nil
}

// UnmarshalJSON accepts both the object form and the compact "type:id" string.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var compact string
	if err := json.Unmarshal(data, &compact); err == nil {
		parsed, err := Parse(compact)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	type plain Chain
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = New(decoded.Type, decoded.ID)
	return nil
}
