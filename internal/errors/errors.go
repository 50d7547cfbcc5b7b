// Package errors 定义全局统一的错误码体系。每个错误码在注册表中携带默认的
// 提示语、严重程度、是否可重试与是否告警，单个错误可以通过 Option 覆盖。
package errors

import (
	stdErrors "errors"
	"maps"
	"sync"
)

// Code 是稳定的机器可读错误码，会出现在 HTTP 响应与工具调用结果中。
type Code string

// Severity 用于告警分级与审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// 通用错误码。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// 插件协商与工具调用错误码。
const (
	CodeIncompatiblePlugin Code = "INCOMPATIBLE_PLUGIN"
	CodePluginLoad         Code = "PLUGIN_LOAD_FAILED"
	CodeToolBuild          Code = "TOOL_BUILD_FAILED"
	CodeToolNotFound       Code = "TOOL_NOT_FOUND"
	CodeInvalidParameters  Code = "INVALID_PARAMETERS"
	CodeWalletFailure      Code = "WALLET_FAILURE"
)

// Attributes 是错误码的默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{}
)

func init() {
	for code, attr := range map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, false, true},
		CodeInvalidArgument:       {"invalid argument", SeverityInfo, false, false},
		CodeNotFound:              {"resource not found", SeverityInfo, false, false},
		CodeConflict:              {"resource conflict", SeverityWarning, false, false},
		CodeInitializationFailure: {"service not initialized", SeverityWarning, true, true},
		CodeStorageFailure:        {"storage failure", SeverityCritical, true, true},
		CodeQueueFailure:          {"queue failure", SeverityCritical, true, true},
		CodeTimeout:               {"operation timed out", SeverityWarning, false, true},
		CodeIncompatiblePlugin:    {"plugin is not compatible with wallet", SeverityInfo, false, false},
		CodePluginLoad:            {"failed to load plugin", SeverityCritical, false, true},
		CodeToolBuild:             {"failed to build plugin tools", SeverityCritical, false, true},
		CodeToolNotFound:          {"tool not found", SeverityInfo, false, false},
		CodeInvalidParameters:     {"invalid tool parameters", SeverityInfo, false, false},
		CodeWalletFailure:         {"wallet operation failed", SeverityWarning, false, true},
	} {
		registry[code] = attr
	}
}

// Register 注册或覆盖错误码的默认行为，应在包初始化阶段调用。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	registry[code] = attr
	registryMu.Unlock()
}

// AttributesOf 返回错误码的默认行为，未注册的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	attr, ok := registry[code]
	if !ok {
		attr = registry[CodeUnknown]
	}
	return attr
}

// overrides 标记单个错误显式覆盖的属性。
type overrides uint8

const (
	overrideRetryable overrides = 1 << iota
	overrideAlert
	overrideSeverity
)

// Error 是携带错误码的错误。未覆盖的属性在读取时查询注册表，
// 因此包级哨兵错误可以早于其错误码注册而创建。
type Error struct {
	code     Code
	message  string
	cause    error
	details  any
	metadata map[string]string
	own      Attributes
	set      overrides
}

// Option 调整单个错误的属性。
type Option func(*Error)

// WithMetadata 附加一条键值信息，用于日志与告警。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = map[string]string{}
		}
		e.metadata[key] = value
	}
}

// WithDetails 附加返回给调用方的结构化详情，例如参数校验失败的字段列表。
func WithDetails(details any) Option {
	return func(e *Error) { e.details = details }
}

func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.own.Retryable, e.set = retryable, e.set|overrideRetryable }
}

func WithAlert(alert bool) Option {
	return func(e *Error) { e.own.Alert, e.set = alert, e.set|overrideAlert }
}

func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.own.Severity, e.set = sev, e.set|overrideSeverity }
}

// New 创建错误，message 为空时使用错误码的默认提示语。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// attributes 合并注册表默认值与本错误的覆盖项。
func (e *Error) attributes() Attributes {
	a := AttributesOf(e.code)
	if e.message != "" {
		a.Message = e.message
	}
	if e.set&overrideRetryable != 0 {
		a.Retryable = e.own.Retryable
	}
	if e.set&overrideAlert != 0 {
		a.Alert = e.own.Alert
	}
	if e.set&overrideSeverity != 0 {
		a.Severity = e.own.Severity
	}
	return a
}

// Wrap 与 New 相同，并记录底层原因。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 的格式为 "[CODE] message" 或 "[CODE] message: cause"。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := "[" + string(e.code) + "] " + e.Message()
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 使 errors.Is 按错误码比较。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.attributes().Message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Retryable() bool { return e != nil && e.attributes().Retryable }

func (e *Error) ShouldAlert() bool { return e != nil && e.attributes().Alert }

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.attributes().Severity
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误链中第一个错误码，没有则为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 报告错误链是否携带可重试的错误码。nil 与普通错误均不可重试。
func RetryableError(err error) bool {
	e, ok := From(err)
	return ok && e.Retryable()
}

// ShouldAlert 报告错误链是否需要告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	return ok && e.ShouldAlert()
}

// SeverityOf 返回严重程度，普通错误按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
