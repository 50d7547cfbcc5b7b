// Package signmessage is a minimal chain agnostic plugin: it prefixes a
// message with "BAAAA" and signs it with the wallet.
package signmessage

import (
	"context"

	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
)

const (
	// Name is the registry name of the plugin.
	Name = "Sign Message with BAAAA"
	// ToolName is the single tool the plugin contributes.
	ToolName = "sign_message_baaaa"
	// Prefix is prepended to every message before signing.
	Prefix = "BAAAA"
)

// Params is the tool input.
type Params struct {
	Message string `json:"message" jsonschema:"description=The message to sign"`
}

// Plugin contributes ToolName for EVM and Solana wallets.
type Plugin struct {
	plugin.Base
}

var _ plugin.Plugin = (*Plugin)(nil)

// New returns the plugin.
func New() *Plugin {
	return &Plugin{Base: plugin.NewBase(Name,
		plugin.ForChains(chain.TypeEVM, chain.TypeSolana),
		plugin.WithDescription("Signs messages prefixed with BAAAA"),
		plugin.WithVersion("1.0.0"),
	)}
}

// GetTools implements plugin.Plugin.
func (p *Plugin) GetTools(_ context.Context, w wallet.Client) ([]*tool.Tool, error) {
	sign, err := tool.New(ToolName, "Sign a message with the wallet after prefixing it with BAAAA. Use this {{tool}} when asked for a BAAAA signature.",
		func(ctx context.Context, params Params) (any, error) {
			sig, err := w.SignMessage(ctx, Prefix+params.Message)
			if err != nil {
				return nil, err
			}
			return sig.SignedMessage, nil
		})
	if err != nil {
		return nil, err
	}
	return []*tool.Tool{sign}, nil
}
