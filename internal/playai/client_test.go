package playai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/autopdf/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.PlayAIConfig{
		BaseURL: srv.URL,
		APIKey:  "key-123",
		UserID:  "user-9",
		Timeout: 5 * time.Second,
	})
}

func TestCreateAgent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/agents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "key-123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-USER-ID"); got != "user-9" {
			t.Errorf("X-USER-ID = %q", got)
		}
		var body createAgentBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.DisplayName != "Reader" || body.Voice != "v1" {
			t.Errorf("unexpected body %#v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"agent-42","displayName":"Reader"}`))
	})

	created, err := client.CreateAgent(context.Background(), "Reader", "reads pdfs", "v1")
	if err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	if created.ID != "agent-42" {
		t.Errorf("ID = %q", created.ID)
	}
	if string(created.Raw) != `{"id":"agent-42","displayName":"Reader"}` {
		t.Errorf("Raw = %s", created.Raw)
	}
}

func TestCreateAgentUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"voice not found"}`))
	})

	_, err := client.CreateAgent(context.Background(), "Reader", "", "bad")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d", upErr.Status)
	}
	if string(upErr.Body) != `{"error":"voice not found"}` {
		t.Errorf("Body = %s", upErr.Body)
	}
}

func TestStartSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/agent-42/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("Authorization = %q", got)
		}
		var body startSessionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Messages) != 1 || body.Messages[0].Content != "what is on page 2?" {
			t.Errorf("unexpected messages %#v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sess-7"}`))
	})

	wsURL, err := client.StartSession(context.Background(), "agent-42", "what is on page 2?")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	want := "ws://" + client.baseURL[len("http://"):] + "/v1/agents/agent-42/sessions/sess-7/stream"
	if wsURL != want {
		t.Errorf("wsURL = %q, want %q", wsURL, want)
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient(config.PlayAIConfig{BaseURL: "https://api.play.ai"})

	if _, err := client.CreateAgent(context.Background(), "a", "b", "c"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("CreateAgent: expected ErrNotConfigured, got %v", err)
	}
	if _, err := client.StartSession(context.Background(), "a", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("StartSession: expected ErrNotConfigured, got %v", err)
	}
}

func TestStreamURL(t *testing.T) {
	got, err := streamURL("https://api.play.ai/", "a b", "s1")
	if err != nil {
		t.Fatalf("streamURL failed: %v", err)
	}
	if got != "wss://api.play.ai/v1/agents/a%20b/sessions/s1/stream" {
		t.Errorf("streamURL = %q", got)
	}

	if _, err := streamURL("ftp://example.com", "a", "s"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
