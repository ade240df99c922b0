package friendreq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/addfriend/retry"
)

// AddRequest is the JSON body of POST /api/friend-requests.
type AddRequest struct {
	From  string `json:"from"`
	Email string `json:"email"`
}

// AddResponse is the JSON reply of POST /api/friend-requests.
type AddResponse struct {
	Message string `json:"message"`
}

// Client sends friend requests to a remote addfriend service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per call, including retries; default 10s
	Policy  retry.Policy  // zero value uses retry defaults
}

// NewClient returns a Client that retries 429/5xx and connection errors.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    retry.Client(cfg.Policy, cfg.Timeout),
	}
}

// Add posts one request and returns the remote message.
func (c *Client) Add(ctx context.Context, requesterID, email string) (string, error) {
	body, err := json.Marshal(AddRequest{From: requesterID, Email: email})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/friend-requests", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("friend service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("friend service: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("friend service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out AddResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("friend service: decode: %w", err)
	}
	return out.Message, nil
}

// For binds the client to a requester.
func (c *Client) For(requesterID string) *RemoteBound {
	return &RemoteBound{c: c, requesterID: requesterID}
}

// RemoteBound is a Client call site fixed to one requester.
type RemoteBound struct {
	c           *Client
	requesterID string
}

func (b *RemoteBound) SendFriendRequest(ctx context.Context, email string) (string, error) {
	return b.c.Add(ctx, b.requesterID, email)
}
