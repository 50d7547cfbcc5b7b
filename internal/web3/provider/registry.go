// Package provider 根据链配置构建宿主钱包，并维护默认链。
package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"AgentWallet-Kit/internal/config"
	"AgentWallet-Kit/internal/web3"
	"AgentWallet-Kit/internal/web3/evm"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/wallet"
)

// Wallet 是注册表管理的钱包，需支持健康快照与关闭。
type Wallet interface {
	wallet.Client
	Snapshot(ctx context.Context) (web3.ChainSnapshot, error)
	Close()
}

// DialFunc 根据链定义创建钱包，测试中可替换。
type DialFunc func(ctx context.Context, name string, def web3.ChainDefinition, key *ecdsa.PrivateKey, smart bool) (Wallet, error)

// Registry manages a set of wallets keyed by human readable chain names.
type Registry struct {
	defaultChain string
	wallets      map[string]Wallet
}

// Option 调整注册表的构建行为。
type Option func(*options)

type options struct {
	dial DialFunc
}

// WithDialer 替换默认的 RPC 拨号逻辑。
func WithDialer(dial DialFunc) Option {
	return func(o *options) {
		if dial != nil {
			o.dial = dial
		}
	}
}

// DialEVM 是默认的拨号实现，基于 go-ethereum ethclient。
func DialEVM(ctx context.Context, name string, def web3.ChainDefinition, key *ecdsa.PrivateKey, smart bool) (Wallet, error) {
	return evm.Dial(ctx, evm.Config{
		Name:       name,
		RPCURL:     def.RPCURL,
		ChainID:    def.ChainID,
		PrivateKey: key,
		Smart:      smart,
		Native:     def.NativeOrDefault(),
		Notes:      def.Description,
	})
}

// NewRegistry loads chain definitions and instantiates concrete wallets.
func NewRegistry(ctx context.Context, cfg config.Web3Config, opts ...Option) (*Registry, error) {
	o := options{dial: DialEVM}
	for _, opt := range opts {
		opt(&o)
	}

	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	defs = defs.Merge(cfg.Chains)
	if len(defs.Chains) == 0 {
		return nil, errors.New("未配置任何链")
	}

	rawKey := os.Getenv(cfg.PrivateKeyEnv)
	if strings.TrimSpace(rawKey) == "" {
		return nil, fmt.Errorf("环境变量 %s 未提供钱包私钥", cfg.PrivateKeyEnv)
	}
	key, err := evm.ParsePrivateKey(rawKey)
	if err != nil {
		return nil, err
	}

	r := &Registry{wallets: make(map[string]Wallet)}
	for _, name := range sortedNames(defs.Chains) {
		def := defs.Chains[name]
		if err := def.Validate(name); err != nil {
			r.Close()
			return nil, err
		}
		if !def.Chain().Is(chain.TypeEVM) {
			r.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
		w, err := o.dial(ctx, name, def, key, cfg.SmartWallet)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		r.wallets[name] = w
	}

	r.defaultChain = cfg.DefaultChain
	if r.defaultChain == "" {
		r.defaultChain = r.Chains()[0]
	}
	if _, ok := r.wallets[r.defaultChain]; !ok {
		r.Close()
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", r.defaultChain)
	}
	return r, nil
}

// Default returns the wallet configured as default chain.
func (r *Registry) Default() (Wallet, error) {
	if r == nil {
		return nil, errors.New("未初始化的钱包注册表")
	}
	w, ok := r.wallets[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return w, nil
}

// DefaultChain 返回默认链名称。
func (r *Registry) DefaultChain() string { return r.defaultChain }

// Wallet returns the wallet identified by chain name.
func (r *Registry) Wallet(name string) (Wallet, bool) {
	if r == nil {
		return nil, false
	}
	w, ok := r.wallets[name]
	return w, ok
}

// Snapshots 收集所有链的快照，失败的链以 Notes 记录错误。
func (r *Registry) Snapshots(ctx context.Context) []web3.ChainSnapshot {
	out := make([]web3.ChainSnapshot, 0, len(r.wallets))
	for _, name := range r.Chains() {
		snap, err := r.wallets[name].Snapshot(ctx)
		if err != nil {
			snap = web3.ChainSnapshot{Name: name, Notes: err.Error()}
		}
		if snap.Name == "" {
			snap.Name = name
		}
		out = append(out, snap)
	}
	return out
}

// Close releases all wallets managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, w := range r.wallets {
		if w != nil {
			w.Close()
		}
		delete(r.wallets, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.wallets)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
