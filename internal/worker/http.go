package worker

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

// maxResponseBytes bounds how much of a host response is read; transcripts
// past this size indicate a misbehaving host, not a bigger buffer.
const maxResponseBytes = 2 * 1024 * 1024

// HTTPClient talks JSON-RPC 2.0 to a session host over a single HTTP
// endpoint. It implements Client.
type HTTPClient struct {
	url   string
	token string
	httpc *http.Client
}

// NewHTTPClient returns a client for the host at url. token may be empty
// when the host does not require auth. A non-positive timeout disables the
// client-side deadline.
func NewHTTPClient(url, token string, timeout time.Duration) *HTTPClient {
	httpc := &http.Client{}
	if timeout > 0 {
		httpc.Timeout = timeout
	}
	return &HTTPClient{url: url, token: token, httpc: httpc}
}

// CreateSession creates or reuses a session for the persona.
func (c *HTTPClient) CreateSession(ctx context.Context, persona string) (string, error) {
	var result struct {
		SessionID string `json:"sessionId"`
	}
	err := c.call(ctx, "session/create", map[string]any{"persona": persona}, &result)
	if err != nil {
		return "", fmt.Errorf("failed to create session for %s: %w", persona, err)
	}
	if result.SessionID == "" {
		return "", fmt.Errorf("host returned no session id for %s", persona)
	}
	return result.SessionID, nil
}

// SendMessage submits a prompt to the session.
func (c *HTTPClient) SendMessage(ctx context.Context, sessionID, prompt string) error {
	params := map[string]any{"sessionId": sessionID, "prompt": prompt}
	if err := c.call(ctx, "session/prompt", params, nil); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", sessionID, err)
	}
	return nil
}

// ListMessages returns the session transcript.
func (c *HTTPClient) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var result struct {
		Messages []Message `json:"messages"`
	}
	params := map[string]any{"sessionId": sessionID}
	if err := c.call(ctx, "session/messages", params, &result); err != nil {
		return nil, fmt.Errorf("failed to list messages for %s: %w", sessionID, err)
	}
	return result.Messages, nil
}

// call performs one JSON-RPC request and decodes its result into out when
// out is non-nil.
func (c *HTTPClient) call(ctx context.Context, method string, params any, out any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("drover-%d", time.Now().UnixNano()),
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBuf, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBuf)))
	}

	var payload struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBuf, &payload); err != nil {
		return fmt.Errorf("malformed rpc response: %w", err)
	}
	if payload.Error != nil {
		return fmt.Errorf("rpc %d: %s", payload.Error.Code, payload.Error.Message)
	}
	if out != nil && len(payload.Result) > 0 {
		if err := json.Unmarshal(payload.Result, out); err != nil {
			return fmt.Errorf("malformed rpc result: %w", err)
		}
	}
	return nil
}
