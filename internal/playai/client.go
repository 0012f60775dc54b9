// Package playai is a small client for the hosted agent API: it creates agents
// and opens conversation sessions whose socket URL the chat layer dials.
package playai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/autopdf/internal/config"
	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("agent api not configured")

// UpstreamError carries a non-2xx reply from the agent API so callers can
// propagate status and body unchanged.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("agent api error %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// CreatedAgent is the upstream reply to an agent creation.
type CreatedAgent struct {
	ID  string
	Raw json.RawMessage
}

// Client talks to the agent-hosting API.
type Client struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	userID  string
}

// NewClient creates a client from configuration.
func NewClient(cfg config.PlayAIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")

	return &Client{
		http:    client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		userID:  cfg.UserID,
	}
}

// APIKey returns the key the chat socket expects in its setup frame.
func (c *Client) APIKey() string {
	return c.apiKey
}

type createAgentBody struct {
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Voice       string `json:"voice"`
}

// CreateAgent registers a new agent upstream.
func (c *Client) CreateAgent(ctx context.Context, name, description, voice string) (*CreatedAgent, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.apiKey).
		SetHeader("X-USER-ID", c.userID).
		SetBody(createAgentBody{DisplayName: name, Description: description, Voice: voice}).
		Post("/api/v1/agents")
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	if resp.IsError() {
		return nil, &UpstreamError{Status: resp.StatusCode(), Body: resp.Body()}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return nil, fmt.Errorf("parse create agent response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create agent response has no id")
	}

	return &CreatedAgent{ID: created.ID, Raw: json.RawMessage(resp.Body())}, nil
}

type sessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type startSessionBody struct {
	Messages []sessionMessage `json:"messages"`
}

// StartSession opens a conversation session for agentID and returns the
// socket URL for it. A non-empty question is passed as the first user message.
// The API key is not embedded in the URL; it is sent in the setup frame.
func (c *Client) StartSession(ctx context.Context, agentID, question string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if agentID == "" {
		return "", fmt.Errorf("agent id is required")
	}

	body := startSessionBody{Messages: []sessionMessage{}}
	if q := strings.TrimSpace(question); q != "" {
		body.Messages = append(body.Messages, sessionMessage{Role: "user", Content: q})
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(body).
		Post("/v1/agents/" + url.PathEscape(agentID) + "/sessions")
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if resp.IsError() {
		return "", &UpstreamError{Status: resp.StatusCode(), Body: resp.Body()}
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &session); err != nil {
		return "", fmt.Errorf("parse session response: %w", err)
	}
	if session.ID == "" {
		return "", fmt.Errorf("session response has no id")
	}

	return streamURL(c.baseURL, agentID, session.ID)
}

// streamURL maps the REST base URL onto the websocket stream endpoint.
func streamURL(baseURL, agentID, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") +
		"/v1/agents/" + agentID + "/sessions/" + sessionID + "/stream"
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}
