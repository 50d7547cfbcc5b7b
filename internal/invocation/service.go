package invocation

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/logger"
)

// Service 负责调用的创建与查询。
type Service struct {
	tools    Toolbox
	store    Store
	producer Producer
}

// NewService 构造调用服务。
func NewService(tools Toolbox, store Store, producer Producer) *Service {
	return &Service{tools: tools, store: store, producer: producer}
}

// Submit 校验工具与参数后创建调用并推送到队列。参数不合法的请求不会落库，
// 也不会到达钱包。
func (s *Service) Submit(ctx context.Context, req Request) (*Invocation, error) {
	if s.tools == nil || s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "调用服务未初始化")
	}
	name := strings.TrimSpace(req.Tool)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
	}
	id := strings.TrimSpace(req.ID)
	if n := utf8.RuneCountInString(id); n > MaxIDLength {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("调用 ID 长度 %d 超过上限 %d", n, MaxIDLength))
	}
	t, ok := s.tools.Get(name)
	if !ok {
		return nil, xerrors.New(xerrors.CodeToolNotFound, fmt.Sprintf("tool %q not found", name),
			xerrors.WithMetadata("tool", name))
	}
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := t.CheckParameters(params); err != nil {
		return nil, err
	}

	if id != "" {
		existing, err := s.store.Get(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrNotFound) {
			return nil, err
		}
	} else {
		id = uuid.NewString()
	}

	inv := &Invocation{
		ID:     id,
		Tool:   name,
		Params: cloneRaw(params),
		Status: StatusPending,
	}
	if err := s.store.Create(ctx, inv); err != nil {
		if stdErrors.Is(err, ErrConflict) {
			if existing, getErr := s.store.Get(ctx, id); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, id); err != nil {
		logger.L().Error("调用入队失败", slog.Any("error", err), slog.String("invocation_id", id))
		wrapped := xerrors.Wrap(CodeInvocationPublish, err, "发布调用到队列失败")
		_ = s.store.MarkFailed(ctx, id, CodeInvocationPublish, wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("调用入队成功",
		slog.String("invocation_id", id),
		slog.String("tool", name),
	)
	return inv, nil
}

// Get 返回指定调用的状态。
func (s *Service) Get(ctx context.Context, id string) (*Invocation, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "调用存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的调用列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Invocation, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "调用存储未初始化")
	}
	return s.store.List(ctx, BuildListOptions(opts...))
}

// Stats 返回符合过滤条件的统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "调用存储未初始化")
	}
	return s.store.Stats(ctx, BuildListOptions(opts...))
}

// WaitUntilCompleted 轮询直到调用结束或 ctx 取消。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Invocation, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		inv, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.Status.Terminal() {
			return inv, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
