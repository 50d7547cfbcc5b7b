// Package invocation 负责排队执行的工具调用：参数在入队前完成校验，
// 工作协程领取后通过工具集执行并回写结果。
package invocation

import (
	"context"
	"encoding/json"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/tool"
)

// Status 表示调用在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal 判断状态是否已结束。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Invocation 描述一次排队的工具调用。
type Invocation struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Params    json.RawMessage `json:"params"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Request 是提交调用时的输入。ID 可选，用于幂等提交。
type Request struct {
	ID     string          `json:"id,omitempty"`
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Toolbox 是服务与处理器依赖的工具集能力，plugin.Toolset 满足该接口。
type Toolbox interface {
	Get(name string) (*tool.Tool, bool)
	Invoke(ctx context.Context, name string, params json.RawMessage) (any, error)
}

// MaxIDLength 是调用 ID 的最大字符数，与 invocations.id 列宽一致。
const MaxIDLength = 64

const (
	CodeInvocationNotFound   xerrors.Code = "INVOCATION_NOT_FOUND"
	CodeInvocationConflict   xerrors.Code = "INVOCATION_CONFLICT"
	CodeInvocationFinished   xerrors.Code = "INVOCATION_FINISHED"
	CodeInvocationPublish    xerrors.Code = "INVOCATION_PUBLISH_FAILED"
	CodeInvocationProcessing xerrors.Code = "INVOCATION_PROCESSING_FAILED"
)

var (
	// ErrNotFound 表示指定的调用不存在。
	ErrNotFound = xerrors.New(CodeInvocationNotFound, "")
	// ErrConflict 表示调用在当前状态下无法进行所请求的操作。
	ErrConflict = xerrors.New(CodeInvocationConflict, "")
	// ErrFinished 表示调用已经结束，不会再次执行。
	ErrFinished = xerrors.New(CodeInvocationFinished, "")
)

func init() {
	xerrors.Register(CodeInvocationNotFound, xerrors.Attributes{
		Message:  "invocation not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvocationConflict, xerrors.Attributes{
		Message:  "invocation conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeInvocationFinished, xerrors.Attributes{
		Message:  "invocation already finished",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvocationPublish, xerrors.Attributes{
		Message:   "failed to publish invocation",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeInvocationProcessing, xerrors.Attributes{
		Message:  "invocation processing failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// IsValidStatus 检查给定的状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneInvocation(inv *Invocation) *Invocation {
	clone := *inv
	clone.Params = cloneRaw(inv.Params)
	clone.Result = cloneRaw(inv.Result)
	return &clone
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
