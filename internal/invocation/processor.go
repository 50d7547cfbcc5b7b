package invocation

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strconv"
	"time"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/observability/alerting"
	"AgentWallet-Kit/internal/observability/metrics"
	"AgentWallet-Kit/pkg/logger"
)

// Processor 从队列消费调用并通过工具集执行。工具失败即为终态，不在本层重试。
type Processor struct {
	tools       Toolbox
	store       Store
	consumer    Consumer
	workerCount int
	timeout     time.Duration
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithTimeout 限制单次工具调用的执行时间。
func WithTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = timeout
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(tools Toolbox, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		tools:       tools,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
		logger:      logger.Named("invocation"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动消费循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置调用消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, id string) error {
	if p.store == nil || p.tools == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	inv, err := p.store.Claim(ctx, id)
	if err != nil {
		if stdErrors.Is(err, ErrNotFound) || stdErrors.Is(err, ErrFinished) || stdErrors.Is(err, ErrConflict) {
			p.logger.Debug("跳过调用", slog.String("invocation_id", id), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取调用失败", slog.Any("error", err), slog.String("invocation_id", id))
		return err
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	result, invokeErr := p.tools.Invoke(runCtx, inv.Tool, inv.Params)
	if invokeErr == nil {
		var encoded []byte
		encoded, invokeErr = json.Marshal(result)
		if invokeErr != nil {
			invokeErr = xerrors.Wrap(CodeInvocationProcessing, invokeErr, "编码调用结果失败")
		} else {
			metrics.ObserveToolInvocation(inv.Tool, metrics.ModeQueued, metrics.OutcomeOK, time.Since(start))
			return p.succeed(ctx, inv, encoded)
		}
	}
	if runCtx.Err() == context.DeadlineExceeded && stdErrors.Is(invokeErr, context.DeadlineExceeded) {
		invokeErr = xerrors.Wrap(xerrors.CodeTimeout, invokeErr, "工具调用超时")
	}
	metrics.ObserveToolInvocation(inv.Tool, metrics.ModeQueued, string(xerrors.CodeOf(invokeErr)), time.Since(start))
	return p.fail(ctx, inv, invokeErr)
}

func (p *Processor) succeed(ctx context.Context, inv *Invocation, result json.RawMessage) error {
	if err := p.store.MarkSucceeded(ctx, inv.ID, result); err != nil {
		p.logger.Error("标记调用成功状态失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
		return err
	}
	logger.Audit().Info("调用执行成功",
		slog.String("invocation_id", inv.ID),
		slog.String("tool", inv.Tool),
		slog.Int("attempts", inv.Attempts),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, inv *Invocation, cause error) error {
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = CodeInvocationProcessing
	}
	if err := p.store.MarkFailed(ctx, inv.ID, code, cause.Error()); err != nil {
		p.logger.Error("标记调用失败状态出错", slog.Any("error", err), slog.String("invocation_id", inv.ID))
		return err
	}
	logger.Audit().Warn("调用执行失败",
		slog.String("invocation_id", inv.ID),
		slog.String("tool", inv.Tool),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", inv.Attempts),
	)
	p.emitAlert(ctx, inv, code, cause)
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, inv *Invocation, code xerrors.Code, cause error) {
	if p.alerter == nil {
		return
	}
	severity := xerrors.SeverityOf(cause)
	alert := xerrors.ShouldAlert(cause)
	if _, coded := xerrors.From(cause); !coded {
		attr := xerrors.AttributesOf(code)
		severity, alert = attr.Severity, attr.Alert
	}
	if !alert {
		return
	}
	event := alerting.Event{
		Code:         code,
		Message:      cause.Error(),
		Severity:     severity,
		InvocationID: inv.ID,
		Tool:         inv.Tool,
		Attempts:     inv.Attempts,
		Metadata: map[string]string{
			"stage":    "terminal",
			"attempts": strconv.Itoa(inv.Attempts),
		},
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
	}
}
