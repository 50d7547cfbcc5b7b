package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"AgentWallet-Kit/pkg/chain"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition.
type ChainDefinition struct {
	Type        chain.Type     `yaml:"type"`
	ChainID     uint64         `yaml:"chain_id"`
	RPCURL      string         `yaml:"rpc_url"`
	Description string         `yaml:"description"`
	Native      NativeCurrency `yaml:"native"`
}

// Chain 返回定义对应的链标识，类型缺省为 evm。
func (d ChainDefinition) Chain() chain.Chain {
	t := d.Type
	if strings.TrimSpace(string(t)) == "" {
		t = chain.TypeEVM
	}
	return chain.New(t, d.ChainID)
}

// NativeOrDefault 返回配置的原生代币，未配置时使用 ETH。
func (d ChainDefinition) NativeOrDefault() NativeCurrency {
	if d.Native.Symbol == "" {
		return DefaultNativeCurrency
	}
	n := d.Native
	if n.Decimals == 0 {
		n.Decimals = DefaultNativeCurrency.Decimals
	}
	return n
}

// Validate 校验单条链定义。
func (d ChainDefinition) Validate(name string) error {
	c := d.Chain()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("链 %s 配置无效: %w", name, err)
	}
	if c.Is(chain.TypeEVM) && strings.TrimSpace(d.RPCURL) == "" {
		return fmt.Errorf("链 %s 缺少 rpc_url", name)
	}
	return nil
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}
	return ParseChainDefinitions(content)
}

// ParseChainDefinitions 解析 YAML 格式的链定义并逐条校验。
func ParseChainDefinitions(content []byte) (ChainDefinitions, error) {
	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if err := def.Validate(name); err != nil {
			return ChainDefinitions{}, err
		}
	}
	return defs, nil
}

// Merge 将 other 中的定义合并进来，同名条目以 other 为准。
func (d ChainDefinitions) Merge(other map[string]ChainDefinition) ChainDefinitions {
	out := ChainDefinitions{Chains: make(map[string]ChainDefinition, len(d.Chains)+len(other))}
	for name, def := range d.Chains {
		out.Chains[name] = def
	}
	for name, def := range other {
		out.Chains[name] = def
	}
	return out
}
