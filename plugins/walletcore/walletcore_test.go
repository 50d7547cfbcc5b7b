package walletcore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/wallet"
	"AgentWallet-Kit/pkg/wallet/wallettest"
	"AgentWallet-Kit/plugins/walletcore"
)

func TestBaseWalletOnEveryChain(t *testing.T) {
	for _, c := range []chain.Chain{chain.EVM(1), chain.Solana(), chain.New("my-awesome-chain", 0)} {
		w := wallettest.New(c)
		set, err := plugin.Aggregate(context.Background(), w, []plugin.Plugin{walletcore.New()})
		require.NoError(t, err, c.String())
		assert.Equal(t, []string{"get_address", "get_chain", "get_balance", "sign_message"}, set.Names())

		got, err := set.Invoke(context.Background(), "get_chain", nil)
		require.NoError(t, err)
		assert.Equal(t, walletcore.ChainInfo{Type: c.Type, ID: c.ID}, got)
	}
}

func TestBalanceDefaultsToWalletAddress(t *testing.T) {
	w := wallettest.New(chain.EVM(1))
	w.Balances = map[string]wallet.Balance{
		w.Addr:   {Symbol: "ETH", Value: "1.5", InBaseUnits: "1500000000000000000", Decimals: 18},
		"0xbeef": {Symbol: "ETH", Value: "2", InBaseUnits: "2000000000000000000", Decimals: 18},
	}
	set, err := plugin.Aggregate(context.Background(), w, []plugin.Plugin{walletcore.New()})
	require.NoError(t, err)

	own, err := set.Invoke(context.Background(), "get_balance", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.5", own.(wallet.Balance).Value)

	other, err := set.Invoke(context.Background(), "get_balance", json.RawMessage(`{"address":"0xbeef"}`))
	require.NoError(t, err)
	assert.Equal(t, "2", other.(wallet.Balance).Value)
}

func TestSignFailureIsWalletFailure(t *testing.T) {
	w := wallettest.New(chain.Solana())
	w.SignFunc = func(string) (string, error) { return "", errors.New("user rejected") }
	set, err := plugin.Aggregate(context.Background(), w, []plugin.Plugin{walletcore.New()})
	require.NoError(t, err)

	_, err = set.Invoke(context.Background(), "sign_message", json.RawMessage(`{"message":"x"}`))
	assert.Equal(t, xerrors.CodeWalletFailure, xerrors.CodeOf(err))
}
