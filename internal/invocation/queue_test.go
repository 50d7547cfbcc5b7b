package invocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "AgentWallet-Kit/internal/errors"
)

func TestMemoryQueueDeliversToWorkers(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]bool{}
	got := make(chan struct{}, 3)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 2, func(_ context.Context, id string) error {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			got <- struct{}{}
			return nil
		})
	}()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	for range 3 {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("unexpected deliveries %v", seen)
	}
}

func TestMemoryQueueRejectsPublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := q.Publish(context.Background(), "late"); xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
		t.Fatalf("expected queue failure, got %v", err)
	}
	if err := q.Consume(context.Background(), 1, func(context.Context, string) error { return nil }); err != nil {
		t.Fatalf("consume on closed queue should return immediately, got %v", err)
	}
}

func TestMemoryQueuePublishHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), "first"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, "second"); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded on full queue, got %v", err)
	}
}

func TestRedisQueueDefaults(t *testing.T) {
	if _, err := NewRedisQueue(context.Background(), RedisQueueConfig{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	q := NewRedisQueueWithClient(client, "", 0)
	defer q.Close()
	if q.queue != defaultRedisQueue || q.wait != defaultRedisBlockWait || q.retryDelay != defaultRedisRetryWait {
		t.Fatalf("unexpected defaults %q %s %s", q.queue, q.wait, q.retryDelay)
	}
}

// fakeList 以切片模拟 Redis list，下标 0 为队头。
type fakeList struct {
	mu      sync.Mutex
	items   []string
	requeue []time.Time
}

func (f *fakeList) LPush(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.items = append([]string{v.(string)}, f.items...)
	}
	return redis.NewIntResult(int64(len(f.items)), nil)
}

func (f *fakeList) RPush(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.items = append(f.items, v.(string))
		f.requeue = append(f.requeue, time.Now())
	}
	return redis.NewIntResult(int64(len(f.items)), nil)
}

func (f *fakeList) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		if n := len(f.items); n > 0 {
			id := f.items[n-1]
			f.items = f.items[:n-1]
			f.mu.Unlock()
			return redis.NewStringSliceResult([]string{keys[0], id}, nil)
		}
		f.mu.Unlock()
		if ctx.Err() != nil {
			return redis.NewStringSliceResult(nil, ctx.Err())
		}
		if time.Now().After(deadline) {
			return redis.NewStringSliceResult(nil, redis.Nil)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (f *fakeList) Close() error { return nil }

func (f *fakeList) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.items...), len(f.requeue)
}

func newFakeRedisQueue(retryDelay time.Duration) (*RedisQueue, *fakeList) {
	list := &fakeList{}
	return &RedisQueue{client: list, queue: "test", wait: 20 * time.Millisecond, retryDelay: retryDelay}, list
}

func TestRedisQueueConsumeDeliversInPublishOrder(t *testing.T) {
	q, list := newFakeRedisQueue(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	var mu sync.Mutex
	var order []string
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 1, func(_ context.Context, id string) error {
			mu.Lock()
			order = append(order, id)
			if len(order) == 3 {
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order %v", order)
	}
	if items, requeued := list.snapshot(); len(items) != 0 || requeued != 0 {
		t.Fatalf("queue should be drained without requeue, items=%v requeued=%d", items, requeued)
	}
}

func TestRedisQueueRequeueWaitsBeforeRetry(t *testing.T) {
	const delay = 80 * time.Millisecond
	q, list := newFakeRedisQueue(delay)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Publish(ctx, "flaky"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var attempts []time.Time
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 1, func(context.Context, string) error {
			attempts = append(attempts, time.Now())
			if len(attempts) == 1 {
				return xerrors.New(CodeInvocationPublish, "broker unavailable")
			}
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry never arrived")
	}
	if len(attempts) != 2 {
		t.Fatalf("expected two attempts, got %d", len(attempts))
	}
	if gap := attempts[1].Sub(attempts[0]); gap < delay {
		t.Fatalf("requeued after %s, want at least %s", gap, delay)
	}
	if _, requeued := list.snapshot(); requeued != 1 {
		t.Fatalf("expected one requeue, got %d", requeued)
	}
}

func TestRedisQueueDropsNonRetryableFailures(t *testing.T) {
	q, list := newFakeRedisQueue(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Publish(ctx, "bad"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 1, func(context.Context, string) error {
			cancel()
			return xerrors.New(xerrors.CodeInvalidParameters, "bad params")
		})
	}()
	<-done
	if items, requeued := list.snapshot(); len(items) != 0 || requeued != 0 {
		t.Fatalf("non-retryable failure must not be requeued, items=%v requeued=%d", items, requeued)
	}
}

func TestRedisQueueRequeuesOnShutdown(t *testing.T) {
	q, list := newFakeRedisQueue(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Publish(ctx, "pending"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 1, func(context.Context, string) error {
			cancel()
			return xerrors.New(CodeInvocationPublish, "broker unavailable")
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown waited for the retry delay")
	}
	if items, _ := list.snapshot(); len(items) != 1 || items[0] != "pending" {
		t.Fatalf("invocation lost on shutdown, items=%v", items)
	}
}
