package pushhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/push-relay/api"
)

// ResponseError is returned by Client when the relay answered with a
// non-200 status.
type ResponseError struct {
	StatusCode int
	Response   api.Response
}

func (e *ResponseError) Error() string {
	if e.Response.Details != "" {
		return fmt.Sprintf("relay returned %d: %s (%s)", e.StatusCode, e.Response.Message, e.Response.Details)
	}
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Response.Message)
}

// Client calls the relay endpoints of a remote server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the relay at baseURL (e.g.
// "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Register stores token under phone.
func (c *Client) Register(ctx context.Context, phone, token string) (*api.Response, error) {
	return c.post(ctx, RegisterPath, api.RegisterRequest{Phone: phone, Token: token})
}

// Broadcast sends message to every registered device. An empty message sends
// the server's default text.
func (c *Client) Broadcast(ctx context.Context, message string) (*api.Response, error) {
	return c.post(ctx, BroadcastPath, api.BroadcastRequest{Message: message})
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*api.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}

	var parsed api.Response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("could not parse response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &parsed, &ResponseError{StatusCode: resp.StatusCode, Response: parsed}
	}
	return &parsed, nil
}
