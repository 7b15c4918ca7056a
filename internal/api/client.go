package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport marks failures where the server was not reachable or did not
// answer sanely: dial errors, timeouts, and 5xx responses. Ambiguous errors
// classify as transport; retrying is the safe direction.
var ErrTransport = errors.New("transport error")

// AppError is an application-level rejection: the server was reachable and
// refused the order's content. Never retried automatically.
type AppError struct {
	StatusCode int
	Message    string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("order rejected (%d): %s", e.StatusCode, e.Message)
}

// IsTransport reports whether err is recoverable by enqueueing and retrying.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Client submits orders to the remote POS API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client bound to baseURL. Every submission is bounded by
// timeout; an expired timeout is a transport failure.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateOrder relays the opaque order payload to the remote order-creation
// endpoint. idempotencyKey is sent as the Idempotency-Key header so a replay
// of an order the server already accepted is not double-created. On success
// the raw server response body is returned.
func (c *Client) CreateOrder(ctx context.Context, payload json.RawMessage, idempotencyKey string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error covers refused connections, DNS failures and client
		// timeouts alike; all of them mean "server not reached".
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &AppError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	default:
		// 5xx: the server answered but is broken; treated like unreachable.
		return nil, fmt.Errorf("%w: server returned %d", ErrTransport, resp.StatusCode)
	}
}

// errorMessage extracts a human-readable message from an error response body.
func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "request rejected"
	}
	return msg
}
