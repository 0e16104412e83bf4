// Package plannerapi is the typed client for the planner backend: the
// idea collection, the strategy singleton and the assistant endpoints.
//
// Every call is a single attempt. Failures are classified into
// ErrNetworkUnavailable, ErrServerRejected and ErrMalformedResponse so
// the caller can tell the user what happened.
package plannerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/vibeplanner/internal/config"
	"github.com/nugget/vibeplanner/internal/httpkit"
	"github.com/nugget/vibeplanner/internal/idea"
	"github.com/nugget/vibeplanner/internal/strategy"
)

// streamHeaderTimeout bounds the wait for the chat endpoint's response
// headers. Retrieval runs before the first byte is sent.
const streamHeaderTimeout = 2 * time.Minute

// Client talks to the planner backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// NewClient creates a client for the backend at baseURL. token is sent
// as a bearer credential when non-empty. timeout bounds every
// non-streaming call.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(httpkit.Options{Timeout: timeout, Token: token}),
		// The stream is bounded by the caller's context only.
		streamClient: httpkit.NewClient(httpkit.Options{HeaderTimeout: streamHeaderTimeout, Token: token}),
		logger:       logger.With("component", "plannerapi"),
	}
}

// ListIdeas returns every idea in the remote store.
func (c *Client) ListIdeas(ctx context.Context) ([]idea.Idea, error) {
	var ideas []idea.Idea
	if err := c.get(ctx, "/planner/ideas", &ideas); err != nil {
		return nil, err
	}
	if ideas == nil {
		ideas = []idea.Idea{}
	}
	return ideas, nil
}

// CreateIdea persists a new idea and returns the server's copy, which
// carries the assigned id.
func (c *Client) CreateIdea(ctx context.Context, body idea.Body) (*idea.Idea, error) {
	var created idea.Idea
	if err := c.post(ctx, "/planner/ideas", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateIdea applies patch to the idea with the given id and returns
// the server's copy.
func (c *Client) UpdateIdea(ctx context.Context, id int64, patch idea.Patch) (*idea.Idea, error) {
	var updated idea.Idea
	if err := c.do(ctx, http.MethodPatch, ideaPath(id), patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteIdea removes the idea with the given id.
func (c *Client) DeleteIdea(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, ideaPath(id), nil, nil)
}

// GetStrategy fetches the strategy profile as stored.
func (c *Client) GetStrategy(ctx context.Context) (*strategy.Profile, error) {
	var p strategy.Profile
	if err := c.get(ctx, "/planner/strategy", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveStrategy replaces the stored profile.
func (c *Client) SaveStrategy(ctx context.Context, p strategy.Profile) error {
	return c.post(ctx, "/planner/strategy", p, nil)
}

// EnhanceIdea asks the assistant to restructure a draft.
func (c *Client) EnhanceIdea(ctx context.Context, req idea.EnhanceRequest) (*idea.Enhancement, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out idea.Enhancement
	if err := c.post(ctx, "/api/enhance-idea", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrendIdeas asks for topic suggestions. An empty topic lets the
// backend pick.
func (c *Client) TrendIdeas(ctx context.Context, topic string) ([]idea.TrendCandidate, error) {
	var out struct {
		Ideas []idea.TrendCandidate `json:"ideas"`
	}
	if err := c.post(ctx, "/api/trend-ideas", map[string]string{"topic": topic}, &out); err != nil {
		return nil, err
	}
	return out.Ideas, nil
}

// GraphNode is one knowledge chunk.
type GraphNode struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Val     float64 `json:"val"`
	Content string  `json:"content"`
	Color   string  `json:"color"`
}

// GraphLink connects two chunks that share a source.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the knowledge graph snapshot.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// KnowledgeGraph fetches up to limit recent knowledge chunks and their
// links.
func (c *Client) KnowledgeGraph(ctx context.Context, limit int) (*Graph, error) {
	path := "/api/knowledge/graph"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var g Graph
	if err := c.get(ctx, path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Health is the backend's health report.
type Health struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	LLMModel    string `json:"llm_model"`
}

// Ping checks that the backend is up.
func (c *Client) Ping(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	if h.Status != "healthy" {
		return &h, &RejectedError{StatusCode: http.StatusOK, Detail: "status " + strconv.Quote(h.Status)}
	}
	return &h, nil
}

// ChatRequest is the body of a streamed chat turn.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// StreamChat starts a chat turn and returns the event stream body once
// the backend has accepted the request. The caller must close it.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	const path = "/api/test-rag"
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(c.streamClient, httpReq, path)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func ideaPath(id int64) string {
	return "/planner/ideas/" + strconv.FormatInt(id, 10)
}

// get performs a GET request against the backend.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post performs a POST request against the backend.
func (c *Client) post(ctx context.Context, path string, data, result any) error {
	return c.do(ctx, http.MethodPost, path, data, result)
}

func (c *Client) do(ctx context.Context, method, path string, data, result any) error {
	req, err := c.newRequest(ctx, method, path, data)
	if err != nil {
		return err
	}
	resp, err := c.send(c.httpClient, req, path)
	if err != nil {
		return err
	}
	defer httpkit.Discard(resp)

	if result == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("read %s: %w", path, ctx.Err())
		}
		if httpkit.IsUnreachable(err) {
			return &networkError{path: path, err: err}
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	c.logger.Log(ctx, config.LevelTrace, "response payload", "path", path, "json", string(body))

	// The whole body arrived, so anything that fails to decode is the
	// backend's fault.
	if err := json.Unmarshal(body, result); err != nil {
		return &MalformedError{Path: path, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, data any) (*http.Request, error) {
	var body io.Reader
	if data != nil {
		reqBody, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		c.logger.Log(ctx, config.LevelTrace, "request payload", "method", method, "path", path, "json", string(reqBody))
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send executes req and converts transport failures and non-success
// statuses into classified errors. On success the caller owns the body.
func (c *Client) send(hc *http.Client, req *http.Request, path string) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if httpkit.IsUnreachable(err) {
			c.logger.Debug("backend unreachable", "method", req.Method, "path", path, "error", err)
			return nil, &networkError{path: path, err: err}
		}
		return nil, fmt.Errorf("request %s: %w", path, err)
	}

	c.logger.Debug("backend response",
		"method", req.Method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Detail: errorDetail(httpkit.ErrorBody(resp))}
	}
	return resp, nil
}
