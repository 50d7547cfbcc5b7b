package invocation

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	xerrors "AgentWallet-Kit/internal/errors"
)

// MemoryStore 以内存方式保存调用状态，适用于单实例部署与测试。
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Invocation
	now   func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Invocation), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, inv *Invocation) error {
	if inv == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation 不能为空")
	}
	if inv.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "调用 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[inv.ID]; ok {
		return ErrConflict
	}
	now := m.now().Unix()
	if inv.CreatedAt == 0 {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	m.items[inv.ID] = cloneInvocation(inv)
	return nil
}

// Get 返回调用。
func (m *MemoryStore) Get(_ context.Context, id string) (*Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInvocation(inv), nil
}

// Claim 将调用状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch inv.Status {
	case StatusSucceeded, StatusFailed:
		return cloneInvocation(inv), ErrFinished
	case StatusRunning:
		return cloneInvocation(inv), ErrConflict
	}
	inv.Status = StatusRunning
	inv.Attempts++
	inv.UpdatedAt = m.now().Unix()
	return cloneInvocation(inv), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = StatusSucceeded
	inv.Result = cloneRaw(result)
	inv.LastError = ""
	inv.ErrorCode = ""
	inv.UpdatedAt = m.now().Unix()
	return nil
}

// MarkFailed 标记调用失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = StatusFailed
	inv.LastError = lastError
	inv.ErrorCode = string(code)
	inv.UpdatedAt = m.now().Unix()
	return nil
}

// List 返回符合过滤条件的调用。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Invocation, 0, len(m.items))
	for _, inv := range m.items {
		if opts.matches(inv) {
			results = append(results, cloneInvocation(inv))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if opts.Order == SortByUpdatedAsc {
			a, b = b, a
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return results[i].ID < results[j].ID
	})

	if opts.Offset >= len(results) {
		return []*Invocation{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的调用数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := Stats{}
	for _, inv := range m.items {
		if opts.matches(inv) {
			stats.add(inv.Status, inv.UpdatedAt)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
