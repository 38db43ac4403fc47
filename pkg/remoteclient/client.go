// Package remoteclient implements the Remote Session Client (C12): a thin
// HTTP client that opens a /chat SSE stream against a remoteserver.Server
// and reassembles the token stream into a single response, mirroring
// callbacks to session and agent events along the way. The SSE scanner is
// grounded on the OpenAI chat adapter's consumeSSE helper (pkg/model/openai
// in this module), which itself follows the sibling agent SDK's line-based
// data: frame parsing.
package remoteclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	UserID  string
}

// Client sends chat turns to a remoteserver.Server and streams the result.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userID     string

	mu        sync.Mutex
	sessionID string
}

// New constructs a Client from Options.
func New(opts Options) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		userID:     opts.UserID,
	}
}

func (c *Client) sessionIDSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Reset clears the cached session server-side, and forgets it locally so the
// next Send allocates a fresh one.
func (c *Client) Reset(ctx context.Context) error {
	sessionID := c.sessionIDSnapshot()
	if sessionID == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"sessionId": sessionID})
	if err != nil {
		return fmt.Errorf("remoteclient: encode reset request: %w", err)
	}
	resp, err := c.do(ctx, "/reset", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remoteclient: reset failed with status %d", resp.StatusCode)
	}
	c.setSessionID("")
	return nil
}

// SendOptions carries the observers a Send call reports to as the stream
// arrives, matching the shape of createRemoteSession's send(...) callbacks.
type SendOptions struct {
	OnToken func(token string)
	OnAgent func(name, content string)
}

// sseEvent mirrors the wire shape event.Event marshals on the server side.
type sseEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	Message   string `json:"message"`
}

// Send posts message to /chat, streaming session/token/agent events to the
// matching callbacks in opts, and returns the concatenated, trimmed token
// text once a "done" event closes the stream. An "error" event is returned
// as an error. Cancelling ctx aborts the underlying HTTP request.
func (c *Client) Send(ctx context.Context, message string, opts SendOptions) (string, error) {
	payload := map[string]string{"message": message}
	if sessionID := c.sessionIDSnapshot(); sessionID != "" {
		payload["sessionId"] = sessionID
	}
	if c.userID != "" {
		payload["userId"] = c.userID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("remoteclient: encode chat request: %w", err)
	}

	resp, err := c.do(ctx, "/chat", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remoteclient: chat request failed with status %d", resp.StatusCode)
	}

	var tokens strings.Builder
	var streamErr error
	done := false

	scanErr := consumeSSE(ctx, resp.Body, func(data string) error {
		var evt sseEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return fmt.Errorf("remoteclient: decode event: %w", err)
		}
		switch evt.Type {
		case "session":
			c.setSessionID(evt.SessionID)
		case "token":
			tokens.WriteString(evt.Token)
			if opts.OnToken != nil {
				opts.OnToken(evt.Token)
			}
		case "agent":
			if opts.OnAgent != nil {
				opts.OnAgent(evt.Name, evt.Content)
			}
		case "error":
			streamErr = fmt.Errorf("remoteclient: %s", evt.Message)
			return streamErr
		case "done":
			done = true
			return io.EOF
		}
		return nil
	})
	if streamErr != nil {
		return "", streamErr
	}
	if scanErr != nil && scanErr != io.EOF {
		return "", fmt.Errorf("remoteclient: stream: %w", scanErr)
	}
	if !done {
		return "", fmt.Errorf("remoteclient: stream ended without a done event")
	}

	return strings.TrimSpace(tokens.String()), nil
}

func (c *Client) do(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remoteclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remoteclient: %w", err)
	}
	return resp, nil
}

// consumeSSE parses a Server-Sent Events stream, invoking fn for each
// "data:" payload until fn returns a non-nil error or the stream ends.
func consumeSSE(ctx context.Context, r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
