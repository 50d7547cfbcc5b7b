package invocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	xerrors "AgentWallet-Kit/internal/errors"
)

const (
	defaultRedisQueue     = "agentwallet:invocations"
	defaultRedisBlockWait = 5 * time.Second
	defaultRedisRetryWait = time.Second
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address    string
	Password   string
	DB         int
	Queue      string
	BlockWait  time.Duration
	// RetryDelay 是可重试失败的调用放回队列前的等待时间。
	RetryDelay time.Duration
}

// listClient 是队列用到的 Redis 命令子集。
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// RedisQueue 以 Redis list 作为调用队列：LPUSH 投递，BRPOP 消费。
type RedisQueue struct {
	client     listClient
	queue      string
	wait       time.Duration
	retryDelay time.Duration
}

// NewRedisQueue 建立连接并 PING 一次。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis 地址不能为空")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败",
			xerrors.WithMetadata("address", cfg.Address))
	}
	q := NewRedisQueueWithClient(client, cfg.Queue, cfg.BlockWait)
	if cfg.RetryDelay > 0 {
		q.retryDelay = cfg.RetryDelay
	}
	return q, nil
}

// NewRedisQueueWithClient 复用已有客户端，便于共享连接池。
func NewRedisQueueWithClient(client redis.UniversalClient, queue string, wait time.Duration) *RedisQueue {
	q := &RedisQueue{client: client, queue: queue, wait: wait, retryDelay: defaultRedisRetryWait}
	if q.queue == "" {
		q.queue = defaultRedisQueue
	}
	if q.wait <= 0 {
		q.wait = defaultRedisBlockWait
	}
	return q
}

// Publish 将调用 ID 压入队列头部。
func (q *RedisQueue) Publish(ctx context.Context, invocationID string) error {
	if err := q.client.LPush(ctx, q.queue, invocationID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 投递调用失败",
			xerrors.WithMetadata("invocation_id", invocationID))
	}
	return nil
}

// Consume 运行 workerCount 个 BRPOP 循环。任一协程遇到不可恢复错误时其余协程随之退出。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for range max(workerCount, 1) {
		g.Go(func() error { return q.work(gctx, handler) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (q *RedisQueue) work(ctx context.Context, handler Handler) error {
	for ctx.Err() == nil {
		id, err := q.pop(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			continue
		}
		if xerrors.RetryableError(handler(ctx, id)) {
			q.requeue(ctx, id)
		}
	}
	return ctx.Err()
}

// requeue 等待 retryDelay 后把调用放回队尾。退出时跳过等待，但仍然放回。
func (q *RedisQueue) requeue(ctx context.Context, id string) {
	timer := time.NewTimer(q.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	_ = q.client.RPush(context.WithoutCancel(ctx), q.queue, id).Err()
}

// pop 阻塞等待一个调用 ID，超时返回空串。
func (q *RedisQueue) pop(ctx context.Context) (string, error) {
	values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
			return "", err
		}
		return "", xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 读取调用失败")
	case len(values) != 2:
		return "", nil
	}
	return values[1], nil
}

// Close 关闭底层客户端。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
