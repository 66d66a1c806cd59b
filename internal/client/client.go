package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hperssn/cadence/internal/domain"
	"github.com/hperssn/cadence/internal/stats"
)

// Client talks to the cadence HTTP API. It satisfies tracker.Saver, so a
// device-side tracker can hand finished sessions straight to a server.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cadence api: %d %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Create posts a finished session.
func (c *Client) Create(ctx context.Context, in domain.SessionInput) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := c.do(ctx, http.MethodPost, "/api/cadence", in, &rec)
	return rec, err
}

func (c *Client) Summary(ctx context.Context) (stats.Summary, error) {
	var s stats.Summary
	err := c.do(ctx, http.MethodGet, "/api/cadence/stats/summary", nil, &s)
	return s, err
}
