// Package client talks to the board API over HTTP. Client implements
// board.Gateway so a Dispatcher can persist moves against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

const (
	maxResponseSize = 8 << 20
	// Request bodies at least this large are sent gzip-encoded.
	gzipThreshold = 4 << 10
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// Token is sent as a bearer token on every request.
	Token string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client is a typed client for the board API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{baseURL: base, token: cfg.Token, httpClient: hc, logger: logger}, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("board api: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the domain error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		return domain.ErrValidation
	}
	return domain.ErrGateway
}

type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
}

// do sends body (when non-nil) as JSON and decodes the "data" member of the
// response into out (when non-nil).
func do[T any](ctx context.Context, c *Client, method, path string, body any, header http.Header, out *T) error {
	var reader io.Reader
	compressed := false
	if body != nil {
		// encoding/json honors omitzero, which keeps absent patch fields off the wire.
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		if len(data) >= gzipThreshold {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(data); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			data = buf.Bytes()
			compressed = true
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrGateway, method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", domain.ErrGateway, method, path, err)
	}
	c.logger.WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("board api call")

	var env envelope[T]
	if len(raw) > 0 {
		if err := sonic.ConfigStd.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: decode %s %s: %v", domain.ErrGateway, method, path, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil {
		*out = env.Data
	}
	return nil
}

// LoadBoard fetches a board snapshot suitable for Session.LoadBoard.
func (c *Client) LoadBoard(ctx context.Context, boardID string) (domain.BoardSnapshot, error) {
	var snap domain.BoardSnapshot
	err := do(ctx, c, http.MethodGet, "/api/boards/"+url.PathEscape(boardID), nil, nil, &snap)
	return snap, err
}

func (c *Client) UpdateCard(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var t domain.Task
	err := do(ctx, c, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, nil, &t)
	return t, err
}

func (c *Client) CreateCard(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	var t domain.Task
	err := do(ctx, c, http.MethodPost, "/api/tasks", draft, nil, &t)
	return t, err
}

func (c *Client) DeleteCard(ctx context.Context, id string) error {
	return do[domain.Task](ctx, c, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) UpdateColumnOrder(ctx context.Context, boardID string, columns []domain.Column) error {
	body := struct {
		Columns []domain.Column `json:"columns"`
	}{Columns: columns}
	return do[domain.Board](ctx, c, http.MethodPut, "/api/boards/"+url.PathEscape(boardID)+"/columns", body, nil, nil)
}

// UpdateStatus moves a task to the column named by status.
func (c *Client) UpdateStatus(ctx context.Context, id, status string) (domain.Task, error) {
	var t domain.Task
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	err := do(ctx, c, http.MethodPut, "/api/tasks/"+url.PathEscape(id)+"/status", body, nil, &t)
	return t, err
}

// Assign sets the agent of a task; nil clears it.
func (c *Client) Assign(ctx context.Context, id string, agentID *string) (domain.Task, error) {
	var t domain.Task
	body := struct {
		AssignedAgentID *string `json:"assigned_agent_id"`
	}{AssignedAgentID: agentID}
	err := do(ctx, c, http.MethodPut, "/api/tasks/"+url.PathEscape(id)+"/assign", body, nil, &t)
	return t, err
}

// Bulk submits a batch. idempotencyKey may be empty.
func (c *Client) Bulk(ctx context.Context, ops []domain.BulkOperation, idempotencyKey string) (domain.BulkResult, error) {
	var res domain.BulkResult
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	body := struct {
		Operations []domain.BulkOperation `json:"operations"`
	}{Operations: ops}
	err := do(ctx, c, http.MethodPost, "/api/tasks/bulk", body, header, &res)
	return res, err
}
