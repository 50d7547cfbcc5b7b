// Package walletcore exposes the base wallet capability set as tools. It works
// on every chain because it only depends on wallet.Client.
package walletcore

import (
	"context"
	"encoding/json"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/schema"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
)

// Name is the registry name of the plugin.
const Name = "wallet"

type balanceParams struct {
	Address string `json:"address,omitempty" jsonschema:"description=Address to query; defaults to the wallet address"`
}

type signParams struct {
	Message string `json:"message" jsonschema:"description=Message to sign"`
}

// ChainInfo is returned by get_chain.
type ChainInfo struct {
	Type chain.Type `json:"type"`
	ID   uint64     `json:"id,omitempty"`
}

// Plugin provides get_address, get_chain, get_balance and sign_message.
type Plugin struct {
	plugin.Base
}

var _ plugin.Plugin = (*Plugin)(nil)

func New() *Plugin {
	return &Plugin{Base: plugin.NewBase(Name,
		plugin.ForAllChains(),
		plugin.WithDescription("Core wallet tools"),
		plugin.WithVersion("1.0.0"),
	)}
}

func (p *Plugin) GetTools(_ context.Context, w wallet.Client) ([]*tool.Tool, error) {
	getAddress, err := tool.NewRaw("get_address", "Get the address of the wallet. Call this {{tool}} before sending funds to the user.",
		schema.Empty(),
		func(ctx context.Context, _ json.RawMessage) (any, error) {
			addr, err := w.Address(ctx)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "get wallet address")
			}
			return addr, nil
		})
	if err != nil {
		return nil, err
	}

	getChain, err := tool.NewRaw("get_chain", "Get the chain the wallet is connected to.",
		schema.Empty(),
		func(context.Context, json.RawMessage) (any, error) {
			c := w.Chain()
			return ChainInfo{Type: c.Type, ID: c.ID}, nil
		})
	if err != nil {
		return nil, err
	}

	getBalance, err := tool.New("get_balance", "Get the native balance of an address. Without an address this {{tool}} returns the wallet balance.",
		func(ctx context.Context, params balanceParams) (any, error) {
			addr := params.Address
			if addr == "" {
				var err error
				if addr, err = w.Address(ctx); err != nil {
					return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "get wallet address")
				}
			}
			balance, err := w.BalanceOf(ctx, addr)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "get balance",
					xerrors.WithMetadata("address", addr))
			}
			return balance, nil
		})
	if err != nil {
		return nil, err
	}

	sign, err := tool.New("sign_message", "Sign a message with the wallet key.",
		func(ctx context.Context, params signParams) (any, error) {
			sig, err := w.SignMessage(ctx, params.Message)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "sign message")
			}
			return sig, nil
		})
	if err != nil {
		return nil, err
	}

	return []*tool.Tool{getAddress, getChain, getBalance, sign}, nil
}
