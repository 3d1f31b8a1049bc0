package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// RequestIDHeader carries the per-call request id.
const RequestIDHeader = "X-Request-ID"

// HTTPClient is a Service backed by the reference server's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for the server at baseURL. An empty
// apiKey sends no Authorization header.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type upsertResponse struct {
	ID string `json:"id"`
}

type selectResponse struct {
	Rows []types.Row `json:"rows"`
}

type problemResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *HTTPClient) rowsPath(table string) string {
	return c.baseURL + "/api/v1/tables/" + url.PathEscape(table) + "/rows"
}

// Ping checks connectivity to the server.
func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.sendRequest(ctx, "health", http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Upsert implements Service.
func (c *HTTPClient) Upsert(ctx context.Context, table string, row types.Row) (string, error) {
	resp, err := c.sendRequest(ctx, "upsert", http.MethodPost, c.rowsPath(table), row)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upsert response: %w", err)
	}
	return out.ID, nil
}

// Update implements Service.
func (c *HTTPClient) Update(ctx context.Context, table string, patch types.Row, filter Filter) error {
	q := url.Values{}
	q.Set("column", filter.Column)
	q.Set("value", types.Row{"v": filter.Value}.String("v"))

	resp, err := c.sendRequest(ctx, "update", http.MethodPatch, c.rowsPath(table)+"?"+q.Encode(), patch)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Select implements Service.
func (c *HTTPClient) Select(ctx context.Context, table string, query Query) ([]types.Row, error) {
	q := url.Values{}
	if query.UpdatedAfter != nil {
		q.Set("updated_after", types.FormatTime(*query.UpdatedAfter))
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	for _, f := range query.Filters {
		q.Add("eq."+f.Column, types.Row{"v": f.Value}.String("v"))
	}

	target := c.rowsPath(table)
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	resp, err := c.sendRequest(ctx, "select", http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out selectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode select response: %w", err)
	}
	return out.Rows, nil
}

// sendRequest sends an authenticated request and converts non-2xx
// responses into *Error.
func (c *HTTPClient) sendRequest(ctx context.Context, op, method, target string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Detail: err.Error()}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	rerr := &Error{Op: op, Status: resp.StatusCode}
	var p problemResponse
	if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(data) > 0 {
		if json.Unmarshal(data, &p) == nil && p.Detail != "" {
			rerr.Detail = p.Detail
		} else {
			rerr.Detail = strings.TrimSpace(string(data))
		}
	}
	return nil, rerr
}

var _ Service = (*HTTPClient)(nil)
