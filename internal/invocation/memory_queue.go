package invocation

import (
	"context"
	"sync"

	xerrors "AgentWallet-Kit/internal/errors"
)

const defaultMemoryQueueSize = 64

// MemoryQueue 是基于缓冲 channel 的进程内队列，仅用于单实例部署与测试。
type MemoryQueue struct {
	ids  chan string
	done chan struct{}
	once sync.Once
}

// NewMemoryQueue 创建容量为 size 的队列，size 非正时使用默认容量。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryQueue{ids: make(chan string, size), done: make(chan struct{})}
}

// Publish 在队列满时阻塞，直到有空位、ctx 结束或队列关闭。
func (q *MemoryQueue) Publish(ctx context.Context, invocationID string) error {
	select {
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "内存队列已关闭")
	default:
	}
	select {
	case q.ids <- invocationID:
		return nil
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "内存队列已关闭")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume 启动 workerCount 个协程处理调用，返回时所有协程均已退出。
// 处理结果由调用记录承载，这里不做重投。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	var wg sync.WaitGroup
	for range max(workerCount, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, handler)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) work(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case id := <-q.ids:
			_ = handler(ctx, id)
		}
	}
}

// Close 停止投递与消费，尚未处理的调用保留在存储中。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
