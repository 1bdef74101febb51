// Package client talks to the mailroom HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.io/infrasutra/mailroom/internal/pagination"
	"github.io/infrasutra/mailroom/internal/store"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx reply decoded from the error envelope.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Kind)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Kind, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type ListParams struct {
	Page   int
	Limit  int
	Filter string
	// ForceRefresh bypasses the session cache.
	ForceRefresh bool
}

type ListResult struct {
	Records    []store.Message       `json:"data"`
	Pagination pagination.Pagination `json:"pagination"`
}

type CreateResult struct {
	Message   store.Message `json:"data"`
	EmailSent bool          `json:"emailSent"`
	Notice    string        `json:"message"`
	MessageID string        `json:"messageId"`
	SendError string        `json:"sendError"`
}

type TestResult struct {
	Success   bool   `json:"success"`
	Sent      bool   `json:"sent"`
	Notice    string `json:"message"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

type SMTPStatus struct {
	Configured bool `json:"smtpConfigured"`
	Connected  bool `json:"smtpConnected"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API rooted at baseURL. A nil httpClient gets a
// client with a 15 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) ListEmails(ctx context.Context, p ListParams) (ListResult, error) {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	var out ListResult
	err := c.do(ctx, http.MethodGet, "/api/emails", q, nil, &out)
	return out, err
}

func (c *Client) GetEmail(ctx context.Context, id int64) (store.Message, error) {
	var out struct {
		Data store.Message `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, emailPath(id), nil, nil, &out)
	return out.Data, err
}

func (c *Client) Search(ctx context.Context, term string, page, limit int) (ListResult, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out ListResult
	err := c.do(ctx, http.MethodGet, "/api/emails/search/"+url.PathEscape(term), q, nil, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, fields store.Fields) (CreateResult, error) {
	var out CreateResult
	err := c.do(ctx, http.MethodPost, "/api/emails", nil, fields, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id int64, patch store.Patch) (store.Message, error) {
	var out struct {
		Data store.Message `json:"data"`
	}
	err := c.do(ctx, http.MethodPut, emailPath(id), nil, patch, &out)
	return out.Data, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, emailPath(id), nil, nil, nil)
}

func (c *Client) BulkUpdate(ctx context.Context, ids []int64, patch store.BulkPatch) (int, error) {
	body := map[string]any{"ids": ids, "updateData": patch}
	var out struct {
		Updated int `json:"updated"`
	}
	err := c.do(ctx, http.MethodPut, "/api/emails/bulk-update", nil, body, &out)
	return out.Updated, err
}

func (c *Client) BulkDelete(ctx context.Context, ids []int64) (int, error) {
	body := map[string]any{"ids": ids}
	var out struct {
		Deleted int `json:"deleted"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/emails/bulk-delete", nil, body, &out)
	return out.Deleted, err
}

func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	var out struct {
		Data store.Stats `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &out)
	return out.Data, err
}

func (c *Client) TestEmail(ctx context.Context) (TestResult, error) {
	var out TestResult
	err := c.do(ctx, http.MethodPost, "/api/test-email", nil, nil, &out)
	return out, err
}

func (c *Client) SMTPStatus(ctx context.Context) (SMTPStatus, error) {
	var out SMTPStatus
	err := c.do(ctx, http.MethodGet, "/api/smtp-status", nil, nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Kind = envelope.Error
			apiErr.Message = envelope.Message
		}
		if apiErr.Kind == "" {
			apiErr.Kind = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func emailPath(id int64) string {
	return "/api/emails/" + strconv.FormatInt(id, 10)
}
