package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StatusError is a non-2xx HTTP response
type StatusError struct {
	Provider   string
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		http.StatusInternalServerError:
		return true
	}
	return false
}

// Client issues guarded JSON requests
type Client struct {
	guard  *Guard
	http   *http.Client
	header http.Header
}

// NewClient creates a JSON client. header is added to every request.
func NewClient(g *Guard, httpClient *http.Client, header http.Header) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{guard: g, http: httpClient, header: header}
}

// Guard returns the call guard
func (c *Client) Guard() *Guard { return c.guard }

// GetJSON performs a GET and decodes the response body into out
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	return c.DoJSON(ctx, http.MethodGet, url, nil, out)
}

// DoJSON sends body (when non-nil) as JSON and decodes the response into out
// (when non-nil). 4xx responses other than 429 are not retried.
func (c *Client) DoJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return c.guard.Do(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		for k, vs := range c.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			se := &StatusError{Provider: c.guard.Name(), Code: resp.StatusCode, Body: string(data)}
			if s := resp.Header.Get("Retry-After"); s != "" {
				if secs, err := strconv.Atoi(s); err == nil {
					se.RetryAfter = time.Duration(secs) * time.Second
				}
			}
			if !se.Retryable() {
				return Permanent(se)
			}
			return se
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Permanent(fmt.Errorf("%s: failed to decode response: %w", c.guard.Name(), err))
		}
		return nil
	})
}
