package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faqbot/faqbot/internal/domain"
)

// ConnectivityErrorMessage is shown in place of an answer when the server
// cannot be reached. No retry is attempted.
const ConnectivityErrorMessage = "Sorry, I'm having trouble reaching the server right now. Please try again."

// DefaultTimeout bounds the outbound chat request
const DefaultTimeout = 10 * time.Second

// TransportError wraps a connectivity or server failure on the chat request
type TransportError struct {
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat request failed: %v", e.Err)
	}
	return fmt.Sprintf("chat request failed: HTTP %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the faqbot /chat endpoint
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a chat client for the given server URL. A non-positive
// timeout falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ask sends one query and returns the resolution. Connectivity failures and
// non-2xx statuses come back as *TransportError.
func (c *Client) Ask(ctx context.Context, query string, tags []string) (*domain.Resolution, error) {
	body, err := json.Marshal(map[string]any{"query": query, "tags": tags})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Status: resp.StatusCode}
	}

	var res domain.Resolution
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}

	return &res, nil
}
