// Package erc20 provides ERC-20 token tools for EVM wallets.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
)

// Name is the registry name of the plugin.
const Name = "erc20"

// Plugin contributes token tools for the tokens deployed on the wallet chain.
type Plugin struct {
	*plugin.TypedPlugin[wallet.EVMClient]

	mu     sync.RWMutex
	tokens []Token
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.Configurable = (*Plugin)(nil)
)

// New returns the plugin for tokens, or DefaultTokens when none are given.
func New(tokens ...Token) *Plugin {
	if len(tokens) == 0 {
		tokens = DefaultTokens()
	}
	p := &Plugin{tokens: tokens}
	p.TypedPlugin = plugin.Typed(plugin.NewBase(Name,
		plugin.ForChains(chain.TypeEVM),
		plugin.Requires(wallet.CapabilityEVMRead, wallet.CapabilityEVMSendTransaction),
		plugin.WithDescription("ERC-20 token balances, transfers and approvals"),
		plugin.WithVersion("1.0.0"),
	), p.tools)
	return p
}

// Configure replaces the token list when the block names tokens.
func (p *Plugin) Configure(cfg map[string]any) error {
	decoded, err := DecodeConfig(cfg)
	if err != nil {
		return err
	}
	if len(decoded.Tokens) == 0 {
		return nil
	}
	p.mu.Lock()
	p.tokens = decoded.Tokens
	p.mu.Unlock()
	return nil
}

// Tokens returns the configured token list.
func (p *Plugin) Tokens() []Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Token(nil), p.tokens...)
}

// SupportsChain additionally requires a chain id since deployments are
// resolved per network.
func (p *Plugin) SupportsChain(c chain.Chain) bool {
	return p.TypedPlugin.SupportsChain(c) && c.HasID()
}

type symbolParams struct {
	Symbol string `json:"symbol" jsonschema:"description=Token symbol such as USDC"`
}

type balanceParams struct {
	Wallet       string `json:"wallet" jsonschema:"description=Address whose balance is queried"`
	TokenAddress string `json:"tokenAddress" jsonschema:"description=Token contract address"`
}

type allowanceParams struct {
	TokenAddress string `json:"tokenAddress" jsonschema:"description=Token contract address"`
	Owner        string `json:"owner" jsonschema:"description=Owner of the tokens"`
	Spender      string `json:"spender" jsonschema:"description=Address allowed to spend"`
}

type transferParams struct {
	TokenAddress string `json:"tokenAddress" jsonschema:"description=Token contract address"`
	To           string `json:"to" jsonschema:"description=Recipient address"`
	Amount       string `json:"amount" jsonschema:"description=Amount in base units"`
}

type approveParams struct {
	TokenAddress string `json:"tokenAddress" jsonschema:"description=Token contract address"`
	Spender      string `json:"spender" jsonschema:"description=Address allowed to spend"`
	Amount       string `json:"amount" jsonschema:"description=Amount in base units"`
}

type convertParams struct {
	TokenAddress string `json:"tokenAddress" jsonschema:"description=Token contract address"`
	Amount       string `json:"amount" jsonschema:"description=Amount to convert"`
}

// TokenBalance is returned by get_token_balance.
type TokenBalance struct {
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	Value       string `json:"value"`
	InBaseUnits string `json:"inBaseUnits"`
}

func (p *Plugin) tools(_ context.Context, w wallet.EVMClient) ([]*tool.Tool, error) {
	c := w.Chain()
	tokens := deploymentsFor(p.Tokens(), c.ID)
	if len(tokens) == 0 {
		return nil, xerrors.New(xerrors.CodeToolBuild, fmt.Sprintf("no configured token is deployed on chain %s", c))
	}
	symbols := make([]string, len(tokens))
	for i, t := range tokens {
		symbols[i] = t.Symbol
	}
	r := &reader{w: w, tokens: tokens}

	var (
		out  []*tool.Tool
		errs []error
	)
	add := func(t *tool.Tool, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		out = append(out, t)
	}

	add(tool.New("get_token_info_by_symbol",
		fmt.Sprintf("Get the contract address and decimals of a token by symbol. Known tokens on this chain: %s.", strings.Join(symbols, ", ")),
		func(_ context.Context, params symbolParams) (any, error) {
			for _, t := range tokens {
				if strings.EqualFold(t.Symbol, params.Symbol) {
					return t, nil
				}
			}
			return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("token %s is not configured on chain %s", params.Symbol, c))
		}))

	add(tool.New("get_token_balance",
		"Get the balance of an ERC-20 token for an address. Use get_token_info_by_symbol first when only the symbol is known.",
		func(ctx context.Context, params balanceParams) (any, error) {
			token, err := hexAddress("tokenAddress", params.TokenAddress)
			if err != nil {
				return nil, err
			}
			owner, err := hexAddress("wallet", params.Wallet)
			if err != nil {
				return nil, err
			}
			raw, err := r.uint256(ctx, token, "balanceOf", owner)
			if err != nil {
				return nil, err
			}
			info, err := r.describe(ctx, token)
			if err != nil {
				return nil, err
			}
			return TokenBalance{
				Symbol:      info.Symbol,
				Decimals:    info.Decimals,
				Value:       FromBaseUnits(raw, info.Decimals),
				InBaseUnits: raw.String(),
			}, nil
		}))

	add(tool.New("get_token_allowance",
		"Get how many base units of a token a spender may transfer on behalf of an owner.",
		func(ctx context.Context, params allowanceParams) (any, error) {
			token, err := hexAddress("tokenAddress", params.TokenAddress)
			if err != nil {
				return nil, err
			}
			owner, err := hexAddress("owner", params.Owner)
			if err != nil {
				return nil, err
			}
			spender, err := hexAddress("spender", params.Spender)
			if err != nil {
				return nil, err
			}
			raw, err := r.uint256(ctx, token, "allowance", owner, spender)
			if err != nil {
				return nil, err
			}
			return raw.String(), nil
		}))

	add(tool.New("transfer_token",
		"Transfer an amount of an ERC-20 token, in base units, from the wallet to a recipient. Convert decimal amounts with convert_to_base_units before calling this {{tool}}.",
		func(ctx context.Context, params transferParams) (any, error) {
			return r.send(ctx, params.TokenAddress, "transfer", "to", params.To, params.Amount)
		}))

	add(tool.New("approve_token",
		"Approve a spender to transfer an amount of an ERC-20 token, in base units, on behalf of the wallet.",
		func(ctx context.Context, params approveParams) (any, error) {
			return r.send(ctx, params.TokenAddress, "approve", "spender", params.Spender, params.Amount)
		}))

	add(tool.New("convert_to_base_units",
		"Convert a decimal token amount such as 1.5 into base units using the token decimals.",
		func(ctx context.Context, params convertParams) (any, error) {
			token, err := hexAddress("tokenAddress", params.TokenAddress)
			if err != nil {
				return nil, err
			}
			info, err := r.describe(ctx, token)
			if err != nil {
				return nil, err
			}
			v, err := ToBaseUnits(params.Amount, info.Decimals)
			if err != nil {
				return nil, invalidField("amount", err.Error())
			}
			return v.String(), nil
		}))

	add(tool.New("convert_from_base_units",
		"Convert an amount in base units into a decimal token amount using the token decimals.",
		func(ctx context.Context, params convertParams) (any, error) {
			token, err := hexAddress("tokenAddress", params.TokenAddress)
			if err != nil {
				return nil, err
			}
			info, err := r.describe(ctx, token)
			if err != nil {
				return nil, err
			}
			v, err := ParseBaseUnits(params.Amount)
			if err != nil {
				return nil, invalidField("amount", err.Error())
			}
			return FromBaseUnits(v, info.Decimals), nil
		}))

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return out, nil
}

// reader wraps wallet calls against token contracts.
type reader struct {
	w      wallet.EVMClient
	tokens []deployment
}

func (r *reader) uint256(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	res, err := r.w.Read(ctx, wallet.EVMReadRequest{
		Address:      token.Hex(),
		ABI:          ABI,
		FunctionName: method,
		Args:         args,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, fmt.Sprintf("read %s on %s", method, token.Hex()))
	}
	v, ok := res.Value.(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeWalletFailure, fmt.Sprintf("unexpected %s result %T", method, res.Value))
	}
	return v, nil
}

// describe resolves symbol and decimals, preferring configuration over reads.
func (r *reader) describe(ctx context.Context, token common.Address) (deployment, error) {
	for _, t := range r.tokens {
		if t.Address == token.Hex() {
			return t, nil
		}
	}
	res, err := r.w.Read(ctx, wallet.EVMReadRequest{Address: token.Hex(), ABI: ABI, FunctionName: "decimals"})
	if err != nil {
		return deployment{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, fmt.Sprintf("read decimals on %s", token.Hex()))
	}
	decimals, ok := res.Value.(uint8)
	if !ok {
		return deployment{}, xerrors.New(xerrors.CodeWalletFailure, fmt.Sprintf("unexpected decimals result %T", res.Value))
	}
	info := deployment{Address: token.Hex(), Decimals: int(decimals)}
	if sym, err := r.w.Read(ctx, wallet.EVMReadRequest{Address: token.Hex(), ABI: ABI, FunctionName: "symbol"}); err == nil {
		info.Symbol, _ = sym.Value.(string)
	}
	return info, nil
}

func (r *reader) send(ctx context.Context, tokenAddr, method, counterpartyField, counterparty, amount string) (any, error) {
	token, err := hexAddress("tokenAddress", tokenAddr)
	if err != nil {
		return nil, err
	}
	to, err := hexAddress(counterpartyField, counterparty)
	if err != nil {
		return nil, err
	}
	value, err := ParseBaseUnits(amount)
	if err != nil {
		return nil, invalidField("amount", err.Error())
	}
	res, err := r.w.SendTransaction(ctx, wallet.EVMTransaction{
		To:           token.Hex(),
		ABI:          ABI,
		FunctionName: method,
		Args:         []any{to, value},
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, fmt.Sprintf("%s %s", method, token.Hex()))
	}
	return res, nil
}

func hexAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, invalidField(field, fmt.Sprintf("%q is not a hex address", raw))
	}
	return common.HexToAddress(raw), nil
}

func invalidField(field, message string) error {
	return xerrors.New(xerrors.CodeInvalidParameters, fmt.Sprintf("invalid %s: %s", field, message),
		xerrors.WithMetadata("field", field))
}
