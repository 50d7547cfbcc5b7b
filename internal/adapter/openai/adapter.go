// Package openai 将插件工具集适配为 go-openai 的函数调用格式。
package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/observability/metrics"
	"AgentWallet-Kit/pkg/logger"
	"AgentWallet-Kit/pkg/tool"
)

const (
	// ToolWord 是 OpenAI 函数调用场景下替换描述占位符的词。
	ToolWord = "tool"
	// ActionWord 供以 action 命名可调用单元的框架使用。
	ActionWord = "action"

	modeAdapter = "openai"
)

// Toolbox 是适配器依赖的工具集能力，plugin.Toolset 满足该接口。
type Toolbox interface {
	Get(name string) (*tool.Tool, bool)
	Definitions(word string) []tool.Definition
	Invoke(ctx context.Context, name string, params json.RawMessage) (any, error)
}

// Adapter 负责渲染工具定义并执行模型返回的工具调用。
type Adapter struct {
	tools       Toolbox
	logger      *slog.Logger
	concurrency int
}

// Option 定义适配器的可选配置。
type Option func(*Adapter)

// WithLogger 指定日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConcurrency 限制 ExecuteAll 并发执行的工具调用数量。
func WithConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New 创建适配器。
func New(tools Toolbox, opts ...Option) *Adapter {
	a := &Adapter{tools: tools, logger: logger.Named("adapter.openai"), concurrency: 4}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Tools 返回可直接放入 ChatCompletionRequest.Tools 的函数定义。
func (a *Adapter) Tools() []goopenai.Tool {
	defs := a.tools.Definitions(ToolWord)
	out := make([]goopenai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// ActionDefinitions 以 action 作为占位符替换词渲染工具定义。
func (a *Adapter) ActionDefinitions() []tool.Definition {
	return a.tools.Definitions(ActionWord)
}

// ResultPayload 是成功调用时回传给模型的内容。
type ResultPayload struct {
	Result any `json:"result"`
}

// ErrorPayload 是失败调用时回传给模型的内容。
type ErrorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details,omitempty"`
	} `json:"error"`
}

// Execute 执行单个工具调用，并返回 role=tool 的回复消息。
// 失败不会被吞掉，而是以结构化错误写入消息内容。
func (a *Adapter) Execute(ctx context.Context, call goopenai.ToolCall) goopenai.ChatCompletionMessage {
	name := call.Function.Name
	args := strings.TrimSpace(call.Function.Arguments)
	if args == "" {
		args = "{}"
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	if call.Type != "" && call.Type != goopenai.ToolTypeFunction {
		err = xerrors.New(xerrors.CodeInvalidArgument, "unsupported tool call type "+string(call.Type))
	} else if !json.Valid([]byte(args)) {
		err = xerrors.New(xerrors.CodeInvalidParameters, "arguments are not valid JSON")
	} else {
		result, err = a.tools.Invoke(ctx, name, json.RawMessage(args))
	}

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
		a.logger.Warn("工具调用失败",
			slog.String("tool", name),
			slog.String("call_id", call.ID),
			slog.String("code", outcome),
			slog.Any("error", err),
		)
	}
	label := metrics.UnknownTool
	if _, ok := a.tools.Get(name); ok {
		label = name
	}
	metrics.ObserveToolInvocation(label, modeAdapter, outcome, time.Since(start))

	return goopenai.ChatCompletionMessage{
		Role:       goopenai.ChatMessageRoleTool,
		Name:       name,
		ToolCallID: call.ID,
		Content:    encode(result, err),
	}
}

// ExecuteAll 并发执行一轮中的全部工具调用，返回的消息顺序与输入一致。
func (a *Adapter) ExecuteAll(ctx context.Context, calls []goopenai.ToolCall) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(calls))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = a.Execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func encode(result any, err error) string {
	if err != nil {
		var payload ErrorPayload
		payload.Error.Code = string(xerrors.CodeOf(err))
		payload.Error.Message = err.Error()
		if coded, ok := xerrors.From(err); ok {
			payload.Error.Message = coded.Message()
			if cause := coded.Unwrap(); cause != nil {
				payload.Error.Message += ": " + cause.Error()
			}
			payload.Error.Details = coded.Details()
		}
		data, _ := json.Marshal(payload)
		return string(data)
	}
	data, marshalErr := json.Marshal(ResultPayload{Result: result})
	if marshalErr != nil {
		return encode(nil, xerrors.Wrap(xerrors.CodeUnknown, marshalErr, "encode tool result"))
	}
	return string(data)
}
