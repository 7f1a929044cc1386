package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPError is returned for non-2xx responses, carrying the status plus the
// server's error envelope when one was provided.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is the HTTP implementation of RemoteAPI for one entity type.
//
// The client performs no retries and no backoff: a failed call leaves the
// local queue intact and a later trigger (new mutation, timer tick,
// connectivity restoration) drives the retry.
type Client[R, C, U, D any] struct {
	baseURL    string
	entity     string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for one entity type.
//
// If httpClient is nil a default with a 15 second timeout is used.
func NewClient[R, C, U, D any](baseURL, entity, token string, httpClient *http.Client) *Client[R, C, U, D] {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client[R, C, U, D]{
		baseURL:    baseURL,
		entity:     entity,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// BulkSync implements RemoteAPI.BulkSync via POST /api/sync/{entity}.
func (c *Client[R, C, U, D]) BulkSync(ctx context.Context, req BulkRequest[C, U, D]) (*BulkResult[R], error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bulk request: %w", err)
	}

	var result BulkResult[R]
	if err := c.do(ctx, http.MethodPost, bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchAll implements RemoteAPI.FetchAll via GET /api/sync/{entity}.
func (c *Client[R, C, U, D]) FetchAll(ctx context.Context) ([]R, error) {
	var items []R
	if err := c.do(ctx, http.MethodGet, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client[R, C, U, D]) do(ctx context.Context, method string, body io.Reader, out any) error {
	url := fmt.Sprintf("%s/api/sync/%s", c.baseURL, c.entity)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope errorEnvelope
		if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
			httpErr.Code = envelope.Code
			httpErr.Message = envelope.Message
		}
		return httpErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
