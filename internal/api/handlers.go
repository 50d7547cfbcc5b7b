package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/invocation"
	"AgentWallet-Kit/internal/observability/metrics"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/tool"
)

const maxBodyBytes = 1 << 20

// ToolList 是 GET /api/v1/tools 的响应。
type ToolList struct {
	Tools   []ToolView               `json:"tools"`
	Skipped []plugin.Incompatibility `json:"skipped,omitempty"`
}

// ToolView 是带有所属插件的工具定义。
type ToolView struct {
	tool.Definition
	Plugin string `json:"plugin,omitempty"`
}

// InvokeResult 是同步调用的响应。
type InvokeResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// InvocationList 是 GET /api/v1/invocations 的响应。
type InvocationList struct {
	Invocations []*invocation.Invocation `json:"invocations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "工具集未初始化"))
		return
	}
	word := strings.TrimSpace(r.URL.Query().Get("word"))
	if word == "" {
		word = s.opts.DescriptionWord
	}
	defs := s.tools.Definitions(word)
	views := make([]ToolView, 0, len(defs))
	for _, def := range defs {
		views = append(views, ToolView{Definition: def, Plugin: s.tools.Owner(def.Name)})
	}
	writeJSON(w, http.StatusOK, ToolList{Tools: views, Skipped: s.tools.Skipped()})
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "工具集未初始化"))
		return
	}
	name := r.PathValue("name")
	params, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	result, err := s.tools.Invoke(r.Context(), name, params)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
	}
	label := metrics.UnknownTool
	if _, ok := s.tools.Get(name); ok {
		label = name
	}
	metrics.ObserveToolInvocation(label, metrics.ModeSync, outcome, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvokeResult{Tool: name, Result: result})
}

func (s *Server) handleSubmitInvocation(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "调用服务未初始化"))
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req invocation.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	inv, err := s.invocations.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait <= 0 {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "wait 参数无效"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		done, err := s.invocations.WaitUntilCompleted(ctx, inv.ID, 100*time.Millisecond)
		if err == nil {
			writeJSON(w, http.StatusOK, done)
			return
		}
		if ctx.Err() == nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, inv)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "调用服务未初始化"))
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := s.invocations.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvocationList{Invocations: items})
}

func (s *Server) handleInvocationStats(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "调用服务未初始化"))
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.invocations.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleInvocationDetail(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "调用服务未初始化"))
		return
	}
	inv, err := s.invocations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if s.chains == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "未配置链"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": s.chains.Snapshots(r.Context())})
}

func readBody(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败")
	}
	if len(body) > maxBodyBytes {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请求体过大")
	}
	return body, nil
}

func listOptions(r *http.Request) ([]invocation.ListOption, error) {
	q := r.URL.Query()
	var opts []invocation.ListOption
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "limit 参数无效")
		}
		opts = append(opts, invocation.WithLimit(n))
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "offset 参数无效")
		}
		opts = append(opts, invocation.WithOffset(n))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []invocation.Status
		for _, part := range strings.Split(raw, ",") {
			status := invocation.Status(strings.TrimSpace(part))
			if !invocation.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "status 参数无效: "+part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, invocation.WithStatuses(statuses...))
	}
	if raw := q.Get("tool"); raw != "" {
		opts = append(opts, invocation.WithTool(raw))
	}
	for key, apply := range map[string]func(time.Time) invocation.ListOption{
		"since": invocation.WithUpdatedSince,
		"until": invocation.WithUpdatedUntil,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, key+" 参数必须是 Unix 秒")
		}
		opts = append(opts, apply(time.Unix(unix, 0)))
	}
	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
	case "asc":
		opts = append(opts, invocation.WithSortOrder(invocation.SortByUpdatedAsc))
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "order 参数只支持 asc/desc")
	}
	return opts, nil
}
