package plugin_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/schema"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
	"AgentWallet-Kit/pkg/wallet/wallettest"
	"AgentWallet-Kit/plugins/signmessage"
	"AgentWallet-Kit/plugins/walletcore"
)

// countingPlugin records how often GetTools runs.
type countingPlugin struct {
	plugin.Base
	calls   atomic.Int32
	names   []string
	fail    error
	cfg     map[string]any
	panicky bool
}

func newCounting(name string, types []chain.Type, tools ...string) *countingPlugin {
	return &countingPlugin{Base: plugin.NewBase(name, plugin.ForChains(types...)), names: tools}
}

func (p *countingPlugin) Configure(cfg map[string]any) error {
	p.cfg = cfg
	if _, bad := cfg["reject"]; bad {
		return errors.New("rejected configuration")
	}
	return nil
}

func (p *countingPlugin) GetTools(ctx context.Context, w wallet.Client) ([]*tool.Tool, error) {
	p.calls.Add(1)
	if p.panicky {
		panic("boom")
	}
	if p.fail != nil {
		return nil, p.fail
	}
	out := make([]*tool.Tool, 0, len(p.names))
	for _, n := range p.names {
		t, err := tool.NewRaw(n, "The {{tool}} "+n, schema.Empty(), func(context.Context, json.RawMessage) (any, error) {
			return n, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func TestToolsNeverCallsUnsupportedPlugins(t *testing.T) {
	evm := newCounting("evm", []chain.Type{chain.TypeEVM}, "evm_a", "evm_b")
	sol := newCounting("solana", []chain.Type{chain.TypeSolana}, "sol_a")
	awesome := newCounting("awesome", []chain.Type{"my-awesome-chain"}, "awesome_a")

	m := plugin.New()
	for _, p := range []plugin.Plugin{evm, sol, awesome} {
		require.NoError(t, m.Register(p))
	}

	set, err := m.Tools(context.Background(), wallettest.New(chain.EVM(8453)))
	require.NoError(t, err)
	assert.Equal(t, []string{"evm_a", "evm_b"}, set.Names())
	assert.EqualValues(t, 1, evm.calls.Load())
	assert.Zero(t, sol.calls.Load())
	assert.Zero(t, awesome.calls.Load())

	skipped := set.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, "solana", skipped[0].Plugin)
	assert.Equal(t, plugin.ReasonUnsupportedChain, skipped[0].Reason)
}

func TestToolsStrictFailsOnIncompatible(t *testing.T) {
	sol := newCounting("solana", []chain.Type{chain.TypeSolana}, "sol_a")
	m := plugin.New(plugin.WithStrictCompatibility())
	require.NoError(t, m.Register(sol))

	_, err := m.Tools(context.Background(), wallettest.NewEVM(1))
	assert.ErrorIs(t, err, plugin.ErrIncompatible)
	assert.Zero(t, sol.calls.Load())
}

func TestToolsOrderAndDeterminism(t *testing.T) {
	m := plugin.New()
	for i := range 8 {
		p := newCounting(fmt.Sprintf("p%d", i), []chain.Type{chain.TypeEVM},
			fmt.Sprintf("t%d_a", i), fmt.Sprintf("t%d_b", i))
		require.NoError(t, m.Register(p))
	}
	w := wallettest.NewEVM(1)

	first, err := m.Tools(context.Background(), w)
	require.NoError(t, err)
	second, err := m.Tools(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, first.Names(), second.Names())
	assert.Equal(t, first.Definitions("tool"), second.Definitions("tool"))
	assert.Equal(t, "t0_a", first.Names()[0])
	assert.Equal(t, "t7_b", first.Names()[15])

	a, _ := first.Get("t3_a")
	b, _ := second.Get("t3_a")
	assert.NotSame(t, a, b)
	assert.Equal(t, "p3", first.Owner("t3_a"))
}

func TestToolsFailsWholeAggregationOnBuildError(t *testing.T) {
	good := newCounting("good", []chain.Type{chain.TypeEVM}, "ok")
	bad := newCounting("bad", []chain.Type{chain.TypeEVM})
	bad.fail = errors.New("token metadata unavailable")

	m := plugin.New()
	require.NoError(t, m.Register(good))
	require.NoError(t, m.Register(bad))

	set, err := m.Tools(context.Background(), wallettest.NewEVM(1))
	assert.Nil(t, set)
	require.ErrorIs(t, err, plugin.ErrToolBuild)
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestToolsRecoversPanics(t *testing.T) {
	p := newCounting("panicky", []chain.Type{chain.TypeEVM})
	p.panicky = true
	_, err := plugin.Aggregate(context.Background(), wallettest.NewEVM(1), []plugin.Plugin{p})
	assert.ErrorIs(t, err, plugin.ErrToolBuild)
}

func TestDuplicateNames(t *testing.T) {
	m := plugin.New()
	require.NoError(t, m.Register(newCounting("a", []chain.Type{chain.TypeEVM}, "same")))
	err := m.Register(newCounting("a", []chain.Type{chain.TypeEVM}))
	assert.ErrorIs(t, err, plugin.ErrConflict)

	require.NoError(t, m.Register(newCounting("b", []chain.Type{chain.TypeEVM}, "same")))
	_, err = m.Tools(context.Background(), wallettest.NewEVM(1))
	assert.ErrorIs(t, err, plugin.ErrConflict)
}

func TestToolsetInvoke(t *testing.T) {
	set, err := plugin.Aggregate(context.Background(), wallettest.NewEVM(1),
		[]plugin.Plugin{newCounting("a", []chain.Type{chain.TypeEVM}, "ping")})
	require.NoError(t, err)

	out, err := set.Invoke(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	_, err = set.Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, plugin.ErrToolNotFound)

	_, err = set.Invoke(context.Background(), "ping", json.RawMessage(`{"unexpected":1}`))
	assert.Equal(t, xerrors.CodeInvalidParameters, xerrors.CodeOf(err))

	defs := set.Definitions("action")
	require.Len(t, defs, 1)
	assert.Equal(t, "The action ping", defs[0].Description)
}

func TestToolsetWrapsUncodedFailures(t *testing.T) {
	failing, err := tool.NewRaw("fail", "", schema.Empty(), func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("signature rejected")
	})
	require.NoError(t, err)
	set, err := plugin.NewToolset("test", failing)
	require.NoError(t, err)

	_, err = set.Invoke(context.Background(), "fail", nil)
	assert.Equal(t, xerrors.CodeWalletFailure, xerrors.CodeOf(err))
}

func TestRegisterAppliesConfigAndPolicy(t *testing.T) {
	disabled := false
	m, err := plugin.NewManager(plugin.ManagerConfig{
		Defaults: plugin.IsolationPolicy{DeniedCapabilities: []wallet.Capability{wallet.CapabilityEVMSendTransaction}},
		Plugins: map[string]plugin.PluginConfig{
			"configured": {Config: map[string]any{"limit": 3}},
			"off":        {Enabled: &disabled},
			"broken":     {Config: map[string]any{"reject": true}},
		},
	})
	require.NoError(t, err)

	configured := newCounting("configured", []chain.Type{chain.TypeEVM})
	require.NoError(t, m.Register(configured))
	assert.Equal(t, 3, configured.cfg["limit"])

	require.NoError(t, m.Register(newCounting("off", []chain.Type{chain.TypeEVM})))
	_, ok := m.Get("off")
	assert.False(t, ok)

	err = m.Register(newCounting("broken", []chain.Type{chain.TypeEVM}))
	assert.ErrorIs(t, err, plugin.ErrLoad)

	sender := plugin.Typed(plugin.NewBase("sender", plugin.ForChains(chain.TypeEVM),
		plugin.Requires(wallet.CapabilityEVMSendTransaction)),
		func(context.Context, wallet.EVMClient) ([]*tool.Tool, error) { return nil, nil })
	err = m.Register(sender)
	assert.ErrorIs(t, err, plugin.ErrIncompatible)

	infos := m.Plugins()
	require.Len(t, infos, 1)
	assert.Equal(t, "configured", infos[0].Name)
	assert.Equal(t, plugin.SourceManual, infos[0].Source)

	assert.True(t, m.Unregister("configured"))
	assert.False(t, m.Unregister("configured"))
	assert.Empty(t, m.Plugins())
}

func stubLoader(plugins map[string]plugin.Plugin) plugin.Loader {
	return plugin.LoaderFunc(func(path string) (plugin.Plugin, error) {
		p, ok := plugins[path]
		if !ok {
			return nil, fmt.Errorf("no plugin at %s", path)
		}
		return p, nil
	})
}

func TestNewManagerLoadsSharedObjects(t *testing.T) {
	loader := stubLoader(map[string]plugin.Plugin{
		"/plugins/awesome.so": newCounting("awesome", []chain.Type{"my-awesome-chain"}, "awesome_tool"),
	})
	m, err := plugin.NewManager(plugin.ManagerConfig{
		PluginDir: "/plugins",
		Plugins: map[string]plugin.PluginConfig{
			"awesome": {Path: "awesome.so"},
		},
	}, plugin.WithLoader(loader))
	require.NoError(t, err)

	infos := m.Plugins()
	require.Len(t, infos, 1)
	assert.Equal(t, plugin.SourceShared, infos[0].Source)

	set, err := m.Tools(context.Background(), wallettest.New(chain.New("my-awesome-chain", 0)))
	require.NoError(t, err)
	assert.Equal(t, []string{"awesome_tool"}, set.Names())

	_, err = plugin.NewManager(plugin.ManagerConfig{
		Plugins: map[string]plugin.PluginConfig{"other": {Path: "/plugins/awesome.so"}},
	}, plugin.WithLoader(loader))
	assert.ErrorIs(t, err, plugin.ErrLoad)

	err = m.Load("/missing.so")
	assert.ErrorIs(t, err, plugin.ErrLoad)
}

func TestDeniedBaseCapabilityRejectsPluginsThatSign(t *testing.T) {
	m, err := plugin.NewManager(plugin.ManagerConfig{
		Defaults: plugin.IsolationPolicy{DeniedCapabilities: []wallet.Capability{wallet.CapabilitySignMessage}},
	})
	require.NoError(t, err)

	for _, p := range []plugin.Plugin{walletcore.New(), signmessage.New()} {
		err := m.Register(p)
		require.ErrorIs(t, err, plugin.ErrIncompatible, p.Name())
		inc, ok := plugin.IncompatibilityOf(err)
		require.True(t, ok)
		assert.Equal(t, plugin.ReasonPolicy, inc.Reason)
	}

	w := wallettest.New(chain.EVM(8453))
	set, err := m.Tools(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, set.Names())
	_, err = set.Invoke(context.Background(), signmessage.ToolName, json.RawMessage(`{"message":"hi"}`))
	assert.ErrorIs(t, err, plugin.ErrToolNotFound)
	assert.Empty(t, w.Signed())
}

func TestTypedPluginCapabilitiesFollowWalletType(t *testing.T) {
	sender := plugin.Typed(plugin.NewBase("undeclared", plugin.ForChains(chain.TypeEVM)),
		func(context.Context, wallet.EVMClient) ([]*tool.Tool, error) { return nil, nil })

	info := plugin.Describe(sender)
	assert.Contains(t, info.Capabilities, wallet.CapabilityEVMSendTransaction)
	assert.Contains(t, info.Capabilities, wallet.CapabilitySignMessage)

	m, err := plugin.NewManager(plugin.ManagerConfig{
		Defaults: plugin.IsolationPolicy{AllowedCapabilities: []wallet.Capability{wallet.CapabilityEVMRead}},
	})
	require.NoError(t, err)
	err = m.Register(sender)
	inc, ok := plugin.IncompatibilityOf(err)
	require.True(t, ok, "expected policy rejection, got %v", err)
	assert.Equal(t, plugin.ReasonPolicy, inc.Reason)
}

func TestDuplicateRegistrationKeepsConfiguration(t *testing.T) {
	m, err := plugin.NewManager(plugin.ManagerConfig{
		Plugins: map[string]plugin.PluginConfig{"dup": {Config: map[string]any{"limit": 1}}},
	})
	require.NoError(t, err)

	first := newCounting("dup", []chain.Type{chain.TypeEVM})
	require.NoError(t, m.Register(first))

	second := newCounting("dup", []chain.Type{chain.TypeEVM})
	err = m.Register(second, plugin.WithConfig(map[string]any{"limit": 2}))
	assert.Equal(t, xerrors.CodeConflict, xerrors.CodeOf(err))
	assert.Nil(t, second.cfg)
	assert.Equal(t, 1, first.cfg["limit"])
}
