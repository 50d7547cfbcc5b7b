package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AgentWallet-Kit/internal/invocation"
	"AgentWallet-Kit/internal/web3"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/plugin"
	"AgentWallet-Kit/pkg/wallet/wallettest"
	"AgentWallet-Kit/plugins/signmessage"
)

type staticChains []web3.ChainSnapshot

func (s staticChains) Snapshots(context.Context) []web3.ChainSnapshot { return s }

type fixture struct {
	wallet  *wallettest.Wallet
	server  *httptest.Server
	service *invocation.Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	w := wallettest.New(chain.EVM(8453))
	tools, err := plugin.Aggregate(context.Background(), w, []plugin.Plugin{signmessage.New()})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	store := invocation.NewMemoryStore()
	queue := invocation.NewMemoryQueue(16)
	service := invocation.NewService(tools, store, queue)
	processor := invocation.NewProcessor(tools, store, queue)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = processor.Start(ctx) }()
	t.Cleanup(cancel)

	opts.MetricsPath = "/metrics"
	srv := NewServer(opts, tools, service, staticChains{{Name: "base", ChainID: "0x2105"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{wallet: w, server: ts, service: service}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func decodeError(t *testing.T, body []byte) ErrorPayload {
	t.Helper()
	var out ErrorBody
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return out.Error
}

func TestListToolsRendersPlaceholder(t *testing.T) {
	f := newFixture(t, Options{})

	resp, body := f.do(t, http.MethodGet, "/api/v1/tools?word=action", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var list ToolList
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Tools) != 1 || list.Tools[0].Name != signmessage.ToolName || list.Tools[0].Plugin != signmessage.Name {
		t.Fatalf("unexpected tools %+v", list.Tools)
	}
	if !strings.Contains(list.Tools[0].Description, "this action") || strings.Contains(list.Tools[0].Description, "{{tool}}") {
		t.Fatalf("placeholder not substituted: %q", list.Tools[0].Description)
	}
}

func TestInvokeTool(t *testing.T) {
	f := newFixture(t, Options{})

	resp, body := f.do(t, http.MethodPost, "/api/v1/tools/sign_message_baaaa/invoke", `{"message":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var out InvokeResult
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != "SIG(BAAAAhi)" {
		t.Fatalf("unexpected result %v", out.Result)
	}
}

func TestInvokeToolErrors(t *testing.T) {
	f := newFixture(t, Options{})

	t.Run("invalid parameters", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/v1/tools/sign_message_baaaa/invoke", `{"message":1}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		payload := decodeError(t, body)
		if payload.Code != "INVALID_PARAMETERS" || payload.Details == nil {
			t.Fatalf("unexpected payload %+v", payload)
		}
		if len(f.wallet.Signed()) != 0 {
			t.Fatalf("wallet must not be touched on invalid input")
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/v1/tools/nope/invoke", `{}`)
		if resp.StatusCode != http.StatusNotFound || decodeError(t, body).Code != "TOOL_NOT_FOUND" {
			t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
		}
	})

	t.Run("wallet failure", func(t *testing.T) {
		f.wallet.SignFunc = func(string) (string, error) { return "", errors.New("device locked") }
		defer func() { f.wallet.SignFunc = func(m string) (string, error) { return "SIG(" + m + ")", nil } }()

		resp, body := f.do(t, http.MethodPost, "/api/v1/tools/sign_message_baaaa/invoke", `{"message":"x"}`)
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", resp.StatusCode)
		}
		if payload := decodeError(t, body); payload.Code != "WALLET_FAILURE" || !strings.Contains(payload.Message, "device locked") {
			t.Fatalf("unexpected payload %+v", payload)
		}
	})
}

func TestQueuedInvocationLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	resp, body := f.do(t, http.MethodPost, "/api/v1/invocations?wait=5s",
		`{"id":"inv-1","tool":"sign_message_baaaa","params":{"message":"q"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var inv invocation.Invocation
	if err := json.Unmarshal(body, &inv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inv.Status != invocation.StatusSucceeded || string(inv.Result) != `"SIG(BAAAAq)"` {
		t.Fatalf("unexpected invocation %+v", inv)
	}

	resp, body = f.do(t, http.MethodPost, "/api/v1/invocations", `{"tool":"sign_message_baaaa","params":{}}`)
	if resp.StatusCode != http.StatusBadRequest || decodeError(t, body).Code != "INVALID_PARAMETERS" {
		t.Fatalf("expected rejected submission, got %d %s", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/invocations/inv-1", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"succeeded"`) {
		t.Fatalf("unexpected detail %d %s", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/invocations/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/invocations?status=succeeded&tool=sign_message_baaaa&order=asc", "")
	var list InvocationList
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &list) != nil || len(list.Invocations) != 1 {
		t.Fatalf("unexpected list %d %s", resp.StatusCode, body)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v1/invocations?status=bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid status to be rejected, got %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/invocations/stats", "")
	var stats invocation.Stats
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &stats) != nil || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats %d %s", resp.StatusCode, body)
	}
}

func TestAuthTokenAndPublicEndpoints(t *testing.T) {
	f := newFixture(t, Options{AuthToken: "s3cret"})

	resp, _ := f.do(t, http.MethodGet, "/api/v1/tools", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/v1/tools", "", "Authorization", "Bearer wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/v1/chains", "", "Authorization", "Bearer s3cret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz must be public, got %d", resp.StatusCode)
	}
	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "agentwallet_http_requests_total") {
		t.Fatalf("metrics must be public and populated, got %d", resp.StatusCode)
	}
}

func TestSubmitWithoutServiceIsUnavailable(t *testing.T) {
	srv := NewServer(Options{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invocations", strings.NewReader(`{}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec = httptest.NewRecorder()
	withContext(ctx, srv.Handler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", rec.Code)
	}
}

func TestUnknownToolNamesDoNotGrowMetrics(t *testing.T) {
	f := newFixture(t, Options{})
	for i := range 20 {
		resp, _ := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tools/missing_%d/invoke", i), `{}`)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	}
	_, body := f.do(t, http.MethodGet, "/metrics", "")
	text := string(body)
	if strings.Contains(text, `tool="missing_`) {
		t.Fatalf("unknown tool names leaked into metric labels")
	}
	if !strings.Contains(text, `agentwallet_tool_invocations_total{mode="sync",outcome="TOOL_NOT_FOUND",tool="unknown"}`) {
		t.Fatalf("expected shared unknown series in metrics output")
	}
}
