package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"AgentWallet-Kit/internal/web3"
	"AgentWallet-Kit/pkg/logger"
	"AgentWallet-Kit/pkg/plugin"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "AGENTWALLET_CONFIG"

// DefaultPath 为未设置环境变量时使用的配置文件。
var DefaultPath = filepath.Join("configs", "agentwallet.yaml")

// Config 描述了 agentwallet 守护进程启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Logging    logger.Config        `yaml:"logging"`
	Web3       Web3Config           `yaml:"web3"`
	Plugins    plugin.ManagerConfig `yaml:"plugins"`
	Invocation InvocationConfig     `yaml:"invocation"`
	Alerting   AlertingConfig       `yaml:"alerting"`
	Metrics    MetricsConfig        `yaml:"metrics"`
}

// ServerConfig 控制 API 服务的监听地址与访问令牌。
type ServerConfig struct {
	Address         string        `yaml:"address"`
	AuthToken       string        `yaml:"auth_token"`
	AuthTokenEnv    string        `yaml:"auth_token_env"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// DescriptionWord 替换工具描述中的 {{tool}} 占位符。
	DescriptionWord string `yaml:"description_word"`
}

// Web3Config 描述宿主钱包所在的链以及私钥来源。
type Web3Config struct {
	ChainConfig   string                          `yaml:"chain_config"`
	Chains        map[string]web3.ChainDefinition `yaml:"chains"`
	DefaultChain  string                          `yaml:"default_chain"`
	PrivateKeyEnv string                          `yaml:"private_key_env"`
	SmartWallet   bool                            `yaml:"smart_wallet"`
}

// InvocationConfig 描述排队调用的存储、队列与工作协程。
type InvocationConfig struct {
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig 目前支持 memory 与 mysql 两种驱动。
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// QueueConfig 支持 memory、redis 与 rabbitmq 三种驱动。
type QueueConfig struct {
	Driver   string         `yaml:"driver"`
	Buffer   int            `yaml:"buffer"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address    string        `yaml:"address"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	Queue      string        `yaml:"queue"`
	BlockWait  time.Duration `yaml:"block_wait"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// AlertingConfig 控制终态失败时的告警输出。
type AlertingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinSeverity string `yaml:"min_severity"`
}

// MetricsConfig 控制 Prometheus 指标端点。
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled 未配置时默认开启。
func (m MetricsConfig) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// Path 返回需要加载的配置文件路径。
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse 解析 YAML 内容并补全默认值。
func Parse(content []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.DescriptionWord == "" {
		c.Server.DescriptionWord = "tool"
	}
	if c.Server.AuthToken == "" && c.Server.AuthTokenEnv != "" {
		c.Server.AuthToken = os.Getenv(c.Server.AuthTokenEnv)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Web3.PrivateKeyEnv == "" {
		c.Web3.PrivateKeyEnv = "AGENTWALLET_PRIVATE_KEY"
	}

	if c.Plugins.Plugins == nil {
		c.Plugins.Plugins = map[string]plugin.PluginConfig{}
	}

	if c.Invocation.Store.Driver == "" {
		c.Invocation.Store.Driver = "memory"
	}
	if c.Invocation.Store.DSN == "" && c.Invocation.Store.DSNEnv != "" {
		c.Invocation.Store.DSN = os.Getenv(c.Invocation.Store.DSNEnv)
	}
	if c.Invocation.Queue.Driver == "" {
		c.Invocation.Queue.Driver = "memory"
	}
	if c.Invocation.Queue.Buffer <= 0 {
		c.Invocation.Queue.Buffer = 1024
	}
	if c.Invocation.Workers <= 0 {
		c.Invocation.Workers = 4
	}
	if c.Invocation.Timeout <= 0 {
		c.Invocation.Timeout = 2 * time.Minute
	}

	if c.Alerting.MinSeverity == "" {
		c.Alerting.MinSeverity = "warning"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// resolvePaths 将相对路径解析为相对于配置文件所在目录。
func (c *Config) resolvePaths(baseDir string) {
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}
	if c.Plugins.PluginDir != "" && !filepath.IsAbs(c.Plugins.PluginDir) {
		c.Plugins.PluginDir = filepath.Join(baseDir, c.Plugins.PluginDir)
	}
}

// Validate 检查驱动名称等枚举字段。
func (c *Config) Validate() error {
	switch c.Invocation.Store.Driver {
	case "memory":
	case "mysql":
		if c.Invocation.Store.DSN == "" {
			return errors.New("mysql 存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Invocation.Store.Driver)
	}
	switch c.Invocation.Queue.Driver {
	case "memory":
	case "redis":
		if c.Invocation.Queue.Redis.Address == "" {
			return errors.New("redis 队列需要配置 address")
		}
	case "rabbitmq":
		if c.Invocation.Queue.RabbitMQ.URL == "" {
			return errors.New("rabbitmq 队列需要配置 url")
		}
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Invocation.Queue.Driver)
	}
	if err := c.Plugins.Validate(); err != nil {
		return fmt.Errorf("插件配置无效: %w", err)
	}
	return nil
}
