package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"AgentWallet-Kit/internal/invocation"
	"AgentWallet-Kit/internal/observability/metrics"
	"AgentWallet-Kit/internal/web3"
	"AgentWallet-Kit/pkg/logger"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/tool"
)

// Tools 是 API 依赖的工具集能力，plugin.Toolset 满足该接口。
type Tools interface {
	invocation.Toolbox
	Definitions(word string) []tool.Definition
	Skipped() []plugin.Incompatibility
	Owner(name string) string
}

// ChainReporter 提供链状态快照，provider.Registry 满足该接口。
type ChainReporter interface {
	Snapshots(ctx context.Context) []web3.ChainSnapshot
}

// Options 控制 HTTP 服务行为。
type Options struct {
	Address         string
	AuthToken       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	DescriptionWord string
	MetricsPath     string
}

// Server 负责暴露 REST 接口。
type Server struct {
	opts        Options
	tools       Tools
	invocations *invocation.Service
	chains      ChainReporter
	logger      *slog.Logger
}

// NewServer 构造 API 服务实例。invocations 与 chains 可以为空，对应端点返回 503。
func NewServer(opts Options, tools Tools, invocations *invocation.Service, chains ChainReporter) *Server {
	if opts.DescriptionWord == "" {
		opts.DescriptionWord = "tool"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		opts:        opts,
		tools:       tools,
		invocations: invocations,
		chains:      chains,
		logger:      logger.Named("api"),
	}
}

// Handler 返回带有中间件的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, metrics.Handler())
	}
	mux.HandleFunc("GET /api/v1/tools", s.handleListTools)
	mux.HandleFunc("POST /api/v1/tools/{name}/invoke", s.handleInvokeTool)
	mux.HandleFunc("POST /api/v1/invocations", s.handleSubmitInvocation)
	mux.HandleFunc("GET /api/v1/invocations", s.handleListInvocations)
	mux.HandleFunc("GET /api/v1/invocations/stats", s.handleInvocationStats)
	mux.HandleFunc("GET /api/v1/invocations/{id}", s.handleInvocationDetail)
	mux.HandleFunc("GET /api/v1/chains", s.handleChains)

	public := map[string]bool{"/healthz": true}
	if s.opts.MetricsPath != "" {
		public[s.opts.MetricsPath] = true
	}
	return s.observe(requireToken(s.opts.AuthToken, public, mux))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务启动", slog.String("address", s.opts.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
