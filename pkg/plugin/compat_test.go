package plugin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
	"AgentWallet-Kit/pkg/wallet/wallettest"
)

func TestCheckCompatibilityReasons(t *testing.T) {
	evmOnly := plugin.Typed(plugin.NewBase("evm-only",
		plugin.ForChains(chain.TypeEVM),
		plugin.WithoutSmartWallets(),
		plugin.Requires(wallet.CapabilityEVMRead),
	), func(context.Context, wallet.EVMClient) ([]*tool.Tool, error) { return nil, nil })

	cases := []struct {
		name   string
		wallet wallet.Client
		reason plugin.Reason
	}{
		{"wrong chain", wallettest.NewSolana(), plugin.ReasonUnsupportedChain},
		{"smart wallet", func() wallet.Client {
			w := wallettest.NewEVM(1)
			w.Smart = true
			return w
		}(), plugin.ReasonSmartWallet},
		{"missing capability", wallettest.New(chain.EVM(1)), plugin.ReasonMissingCapabilities},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := plugin.CheckCompatibility(evmOnly, tc.wallet)
			require.ErrorIs(t, err, plugin.ErrIncompatible)
			inc, ok := plugin.IncompatibilityOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.reason, inc.Reason)
			assert.Equal(t, "evm-only", inc.Plugin)
		})
	}

	assert.NoError(t, plugin.CheckCompatibility(evmOnly, wallettest.NewEVM(8453)))
}

func TestTypedRejectsWalletTypeAtComposition(t *testing.T) {
	called := false
	solanaTools := plugin.Typed(plugin.NewBase("solana-tools", plugin.ForAllChains()),
		func(context.Context, wallet.SolanaClient) ([]*tool.Tool, error) {
			called = true
			return nil, nil
		})

	err := plugin.CheckCompatibility(solanaTools, wallettest.NewEVM(1))
	inc, ok := plugin.IncompatibilityOf(err)
	require.True(t, ok)
	assert.Equal(t, plugin.ReasonWalletType, inc.Reason)

	_, err = solanaTools.GetTools(context.Background(), wallettest.NewEVM(1))
	assert.ErrorIs(t, err, plugin.ErrIncompatible)
	assert.False(t, called)
}

func TestChainSpecificPluginPredicate(t *testing.T) {
	awesome := plugin.NewBase("my-awesome-chain-plugin", plugin.ForChains("my-awesome-chain"))
	assert.False(t, awesome.SupportsChain(chain.Chain{Type: chain.TypeEVM}))
	assert.True(t, awesome.SupportsChain(chain.Chain{Type: "my-awesome-chain"}))
	assert.False(t, awesome.SupportsChain(chain.Chain{}))
}

func TestNilArguments(t *testing.T) {
	base := plugin.NewBase("x", plugin.ForAllChains())
	p := plugin.Typed[wallet.Client](base, nil)
	assert.Error(t, plugin.CheckCompatibility(nil, wallettest.New(chain.EVM(1))))
	assert.Error(t, plugin.CheckCompatibility(p, nil))

	_, err := p.GetTools(context.Background(), wallettest.New(chain.EVM(1)))
	assert.ErrorIs(t, err, plugin.ErrToolBuild)
}
