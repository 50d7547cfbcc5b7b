package main

import (
	"context"
	"errors"
	"log/slog"

	"AgentWallet-Kit/internal/config"
	"AgentWallet-Kit/internal/observability/metrics"
	"AgentWallet-Kit/internal/web3/provider"
	"AgentWallet-Kit/pkg/logger"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/wallet"
	"AgentWallet-Kit/plugins/erc20"
	"AgentWallet-Kit/plugins/signmessage"
	"AgentWallet-Kit/plugins/walletcore"
)

// app 汇总一次命令执行期间共享的组件。
type app struct {
	cfg     *config.Config
	chains  *provider.Registry
	wallet  wallet.Client
	toolset *plugin.Toolset
	manager *plugin.Manager
	logger  *slog.Logger
}

func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.Named("agentwallet")

	chains, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return nil, err
	}
	w, err := chains.Default()
	if err != nil {
		chains.Close()
		return nil, err
	}

	manager, toolset, err := buildToolset(ctx, cfg.Plugins, w, opts.strict)
	if err != nil {
		chains.Close()
		return nil, err
	}
	log.Info("工具集已就绪",
		slog.String("chain", chains.DefaultChain()),
		slog.Int("tools", toolset.Len()),
		slog.Int("skipped", len(toolset.Skipped())),
	)
	return &app{cfg: cfg, chains: chains, wallet: w, toolset: toolset, manager: manager, logger: log}, nil
}

// buildToolset 注册内置插件，加载配置中的共享对象插件，并针对钱包聚合工具。
func buildToolset(ctx context.Context, cfg plugin.ManagerConfig, w wallet.Client, strict bool) (*plugin.Manager, *plugin.Toolset, error) {
	var opts []plugin.Option
	if strict {
		opts = append(opts, plugin.WithStrictCompatibility())
	}
	manager, err := plugin.NewManager(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	var errs []error
	for _, p := range []plugin.Plugin{signmessage.New(), walletcore.New(), erc20.New()} {
		errs = append(errs, manager.Register(p))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}

	toolset, err := manager.Tools(ctx, w)
	if err != nil {
		return nil, nil, err
	}
	for _, skipped := range toolset.Skipped() {
		metrics.ObservePluginSkipped(skipped.Plugin, string(skipped.Reason))
	}
	return manager, toolset, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	a.chains.Close()
	_ = logger.Sync()
}
