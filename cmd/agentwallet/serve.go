package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"AgentWallet-Kit/internal/api"
	"AgentWallet-Kit/internal/config"
	"AgentWallet-Kit/internal/invocation"
	"AgentWallet-Kit/internal/observability/alerting"
	"AgentWallet-Kit/internal/storage/mysql"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST daemon with the queued invocation processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	store, err := openStore(ctx, cfg.Invocation.Store)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg.Invocation.Queue)
	if err != nil {
		_ = store.Close()
		return err
	}

	service := invocation.NewService(a.toolset, store, queue)
	defer func() {
		if err := service.Close(); err != nil {
			a.logger.Warn("关闭调用服务失败", slog.Any("error", err))
		}
	}()
	processorOpts := []invocation.ProcessorOption{
		invocation.WithWorkerCount(cfg.Invocation.Workers),
		invocation.WithTimeout(cfg.Invocation.Timeout),
	}
	if cfg.Alerting.Enabled {
		dispatcher := alerting.NewFanout(
			[]alerting.Notifier{&alerting.LogNotifier{}},
			alerting.WithMinSeverity(alerting.ParseSeverity(cfg.Alerting.MinSeverity)),
		)
		processorOpts = append(processorOpts, invocation.WithAlertDispatcher(dispatcher))
	}
	processor := invocation.NewProcessor(a.toolset, store, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("调用处理器异常退出", slog.Any("error", err))
		}
	}()

	apiOpts := api.Options{
		Address:         cfg.Server.Address,
		AuthToken:       cfg.Server.AuthToken,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DescriptionWord: cfg.Server.DescriptionWord,
	}
	if cfg.Metrics.IsEnabled() {
		apiOpts.MetricsPath = cfg.Metrics.Path
	}
	server := api.NewServer(apiOpts, a.toolset, service, a.chains)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (invocation.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return invocation.NewMemoryStore(), nil
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, err
		}
		store, err := invocation.NewMySQLStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (invocation.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return invocation.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		queue, err := invocation.NewRedisQueue(ctx, invocation.RedisQueueConfig{
			Address:    cfg.Redis.Address,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Queue:      cfg.Redis.Queue,
			BlockWait:  cfg.Redis.BlockWait,
			RetryDelay: cfg.Redis.RetryDelay,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	case "rabbitmq":
		queue, err := invocation.NewRabbitMQQueue(invocation.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
