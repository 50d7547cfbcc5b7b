package erc20

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
)

// Token is a configured ERC-20 token and its deployments keyed by chain id.
type Token struct {
	Symbol   string            `mapstructure:"symbol" json:"symbol"`
	Name     string            `mapstructure:"name" json:"name"`
	Decimals int               `mapstructure:"decimals" json:"decimals"`
	Chains   map[uint64]string `mapstructure:"chains" json:"chains"`
}

// Config is the plugin configuration block.
type Config struct {
	Tokens []Token `mapstructure:"tokens"`
}

// DefaultTokens is used when no tokens are configured.
func DefaultTokens() []Token {
	return []Token{
		{
			Symbol:   "USDC",
			Name:     "USDC",
			Decimals: 6,
			Chains: map[uint64]string{
				1:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				8453:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				84532:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				11155111: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			},
		},
		{
			Symbol:   "PEPE",
			Name:     "Pepe",
			Decimals: 18,
			Chains: map[uint64]string{
				1: "0x6982508145454Ce325dDbE47a25d4ec3d2311933",
			},
		},
	}
}

// DecodeConfig decodes a raw configuration map. Chain ids may be given as
// numbers or numeric strings.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decode erc20 config: %w", err)
	}
	for i, t := range cfg.Tokens {
		if err := t.validate(); err != nil {
			return cfg, fmt.Errorf("token %d: %w", i, err)
		}
	}
	return cfg, nil
}

func (t Token) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if t.Decimals < 0 || t.Decimals > maxDecimals {
		return fmt.Errorf("%s: decimals %d out of range", t.Symbol, t.Decimals)
	}
	if len(t.Chains) == 0 {
		return fmt.Errorf("%s: at least one chain deployment is required", t.Symbol)
	}
	for id, addr := range t.Chains {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q on chain %d", t.Symbol, addr, id)
		}
	}
	return nil
}

// deployment is a token resolved for one chain.
type deployment struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Address  string `json:"contractAddress"`
}

func deploymentsFor(tokens []Token, chainID uint64) []deployment {
	var out []deployment
	for _, t := range tokens {
		addr, ok := t.Chains[chainID]
		if !ok {
			continue
		}
		out = append(out, deployment{
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
			Address:  common.HexToAddress(addr).Hex(),
		})
	}
	return out
}
