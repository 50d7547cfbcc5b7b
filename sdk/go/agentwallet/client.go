// Package agentwallet is a Go client for the AgentWallet-Kit daemon REST API.
package agentwallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/tool"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the daemon.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Tool is a tool definition together with the plugin that contributed it.
type Tool struct {
	tool.Definition
	Plugin string `json:"plugin,omitempty"`
}

// SkippedPlugin describes a plugin left out of the daemon's toolset.
type SkippedPlugin struct {
	Plugin  string      `json:"plugin"`
	Chain   chain.Chain `json:"chain"`
	Reason  string      `json:"reason"`
	Missing []string    `json:"missing,omitempty"`
}

// ToolList is the response of ListTools.
type ToolList struct {
	Tools   []Tool          `json:"tools"`
	Skipped []SkippedPlugin `json:"skipped,omitempty"`
}

// Submission queues a tool invocation. ID is optional and makes the
// submission idempotent.
type Submission struct {
	ID     string          `json:"id,omitempty"`
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Invocation is the daemon's view of a queued tool invocation.
type Invocation struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Params    json.RawMessage `json:"params"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Terminal reports whether the invocation finished.
func (i Invocation) Terminal() bool {
	return i.Status == "succeeded" || i.Status == "failed"
}

// Stats summarises invocations by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ChainSnapshot reports the head of a configured chain.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chainId"`
	BlockNumber string `json:"blockNumber"`
	Notes       string `json:"notes,omitempty"`
}

// ListFilter narrows ListInvocations and Stats.
type ListFilter struct {
	Limit     int
	Offset    int
	Statuses  []string
	Tool      string
	Since     time.Time
	Until     time.Time
	Ascending bool
}

func (f ListFilter) query() url.Values {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if len(f.Statuses) > 0 {
		q.Set("status", strings.Join(f.Statuses, ","))
	}
	if f.Tool != "" {
		q.Set("tool", f.Tool)
	}
	if !f.Since.IsZero() {
		q.Set("since", strconv.FormatInt(f.Since.Unix(), 10))
	}
	if !f.Until.IsZero() {
		q.Set("until", strconv.FormatInt(f.Until.Unix(), 10))
	}
	if f.Ascending {
		q.Set("order", "asc")
	}
	return q
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentwallet api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentwallet api error (%d): %s", e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewClient instantiates a client. When httpClient is nil a client with
// DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the stored bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Health checks the daemon liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

// ListTools returns the daemon's tools with descriptions rendered for word.
// An empty word uses the daemon default.
func (c *Client) ListTools(ctx context.Context, word string) (ToolList, error) {
	q := url.Values{}
	if word != "" {
		q.Set("word", word)
	}
	var out ToolList
	err := c.get(ctx, "/api/v1/tools", q, &out)
	return out, err
}

// Invoke calls a tool synchronously and decodes its result into out.
func (c *Client) Invoke(ctx context.Context, name string, params any, out any) error {
	var resp struct {
		Tool   string          `json:"tool"`
		Result json.RawMessage `json:"result"`
	}
	endpoint := "/api/v1/tools/" + url.PathEscape(name) + "/invoke"
	if err := c.post(ctx, endpoint, nil, params, &resp); err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Submit queues an invocation. When wait is positive the daemon holds the
// request until the invocation finishes or wait elapses.
func (c *Client) Submit(ctx context.Context, sub Submission, wait time.Duration) (Invocation, error) {
	q := url.Values{}
	if wait > 0 {
		q.Set("wait", wait.String())
	}
	var out Invocation
	err := c.post(ctx, "/api/v1/invocations", q, sub, &out)
	return out, err
}

// GetInvocation fetches an invocation by id.
func (c *Client) GetInvocation(ctx context.Context, id string) (Invocation, error) {
	var out Invocation
	err := c.get(ctx, "/api/v1/invocations/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListInvocations lists invocations matching filter.
func (c *Client) ListInvocations(ctx context.Context, filter ListFilter) ([]Invocation, error) {
	var out struct {
		Invocations []Invocation `json:"invocations"`
	}
	err := c.get(ctx, "/api/v1/invocations", filter.query(), &out)
	return out.Invocations, err
}

// Stats returns invocation counts matching filter.
func (c *Client) Stats(ctx context.Context, filter ListFilter) (Stats, error) {
	var out Stats
	err := c.get(ctx, "/api/v1/invocations/stats", filter.query(), &out)
	return out, err
}

// Chains returns snapshots of the daemon's configured chains.
func (c *Client) Chains(ctx context.Context) ([]ChainSnapshot, error) {
	var out struct {
		Chains []ChainSnapshot `json:"chains"`
	}
	err := c.get(ctx, "/api/v1/chains", nil, &out)
	return out.Chains, err
}

// WaitForInvocation polls until the invocation is terminal or ctx is done.
func (c *Client) WaitForInvocation(ctx context.Context, id string, interval time.Duration) (Invocation, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		inv, err := c.GetInvocation(ctx, id)
		if err != nil {
			return Invocation{}, err
		}
		if inv.Terminal() {
			return inv, nil
		}
		select {
		case <-ctx.Done():
			return inv, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, q url.Values, payload any, out any) error {
	var body []byte
	switch p := payload.(type) {
	case nil:
		body = []byte("{}")
	case json.RawMessage:
		body = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, q, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, q, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
