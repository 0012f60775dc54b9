package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/autopdf/internal/domain"
)

func TestSessionSendWithoutAgent(t *testing.T) {
	t.Parallel()

	initiator := &fakeInitiator{url: "ws://unused"}
	s := NewSession(SessionConfig{Initiator: initiator})

	if err := s.Send(context.Background(), "hi"); !errors.Is(err, ErrNoAgentSelected) {
		t.Fatalf("Send() error = %v, want ErrNoAgentSelected", err)
	}
	if s.Transcript().Len() != 0 {
		t.Fatal("no message should be appended without an agent")
	}
	if initiator.callCount() != 0 {
		t.Fatal("no session should be initiated without an agent")
	}
}

func TestSessionSendOpensOneSocketAndAppendsUserMessage(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newFakeAgentServer(t, func(ctx context.Context, conn *websocket.Conn, f Frame) {
		if f.Type != FrameTextIn {
			return
		}
		<-release
		sendFrame(ctx, conn, Frame{Type: FrameTextOut, Data: "hello back"})
	})
	initiator := &fakeInitiator{url: srv.wsURL()}
	events := newEventRecorder()

	s := NewSession(SessionConfig{Initiator: initiator, APIKey: "secret", OnEvent: events.record})
	defer s.Close()
	s.SelectAgent("agent-1")

	if err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	setup := srv.nextFrame(t)
	if setup.Type != FrameSetup || setup.APIKey != "secret" {
		t.Fatalf("first frame = %+v, want setup with api key", setup)
	}
	textIn := srv.nextFrame(t)
	if textIn.Type != FrameTextIn || textIn.Data != "hello" {
		t.Fatalf("second frame = %+v, want textIn hello", textIn)
	}

	got := s.Messages()
	if len(got) != 1 || got[0] != (domain.Message{Role: domain.RoleUser, Text: "hello"}) {
		t.Fatalf("transcript before reply = %+v, want one user message", got)
	}
	if srv.connCount() != 1 || initiator.callCount() != 1 {
		t.Fatalf("sockets = %d, initiations = %d, want 1 and 1", srv.connCount(), initiator.callCount())
	}

	close(release)
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventMessage && ev.Update.Message.Role == domain.RoleAgent
	})

	got = s.Messages()
	if len(got) != 2 || got[1].Text != "hello back" || got[1].Role != domain.RoleAgent {
		t.Fatalf("transcript after reply = %+v", got)
	}

	if err := s.Send(context.Background(), "again"); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if f := srv.nextFrame(t); f.Type != FrameTextIn {
		t.Fatalf("frame = %+v, want textIn", f)
	}
	if srv.connCount() != 1 {
		t.Fatalf("sockets = %d after second send, want 1", srv.connCount())
	}
}

func TestSessionStreamsIntoPendingMessage(t *testing.T) {
	t.Parallel()

	srv := newFakeAgentServer(t, func(ctx context.Context, conn *websocket.Conn, f Frame) {
		if f.Type != FrameTextIn {
			return
		}
		sendFrame(ctx, conn, Frame{Type: FrameTextStream, Data: "Hel"})
		sendFrame(ctx, conn, Frame{Type: FrameTextStream, Data: "lo"})
		sendFrame(ctx, conn, Frame{Type: FrameTextOut, Data: "!"})
		sendFrame(ctx, conn, Frame{Type: FrameTextOut, Data: "Separate"})
	})
	events := newEventRecorder()
	s := NewSession(SessionConfig{Initiator: &fakeInitiator{url: srv.wsURL()}, OnEvent: events.record})
	defer s.Close()
	s.SelectAgent("agent-1")

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventMessage && ev.Update.Message.Text == "Separate"
	})

	want := []domain.Message{
		{Role: domain.RoleUser, Text: "hi"},
		{Role: domain.RoleAgent, Text: "Hello!"},
		{Role: domain.RoleAgent, Text: "Separate"},
	}
	got := s.Messages()
	if len(got) != len(want) {
		t.Fatalf("transcript = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSessionAudio(t *testing.T) {
	t.Parallel()

	srv := newFakeAgentServer(t, func(ctx context.Context, conn *websocket.Conn, f Frame) {
		if f.Type != FrameAudioIn {
			return
		}
		sendFrame(ctx, conn, Frame{Type: FrameAudioStream, Data: "!!not base64!!"})
		sendFrame(ctx, conn, Frame{Type: FrameAudioStream, Data: base64.StdEncoding.EncodeToString([]byte("pcm"))})
	})

	audio := make(chan []byte, 4)
	s := NewSession(SessionConfig{
		Initiator: &fakeInitiator{url: srv.wsURL()},
		OnAudio:   func(b []byte) { audio <- b },
	})
	defer s.Close()
	s.SelectAgent("agent-1")

	if err := s.SendAudio(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}

	srv.nextFrame(t) // setup
	in := srv.nextFrame(t)
	if in.Type != FrameAudioIn || in.Data != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Fatalf("frame = %+v, want base64 audioIn", in)
	}

	var got []byte
	waitUntil(t, func() bool {
		select {
		case got = <-audio:
			return true
		default:
			return false
		}
	})
	if string(got) != "pcm" {
		t.Fatalf("audio = %q, want pcm (invalid chunk dropped)", got)
	}
	if s.Transcript().Len() != 0 {
		t.Fatal("audio must not add transcript entries")
	}
}

func TestSessionDoesNotReconnectUntilNextSend(t *testing.T) {
	t.Parallel()

	srv := newFakeAgentServer(t, func(ctx context.Context, conn *websocket.Conn, f Frame) {
		if f.Type == FrameTextIn && f.Data == "bye" {
			_ = conn.Close(websocket.StatusNormalClosure, "done")
		}
	})
	initiator := &fakeInitiator{url: srv.wsURL()}
	events := newEventRecorder()
	s := NewSession(SessionConfig{Initiator: initiator, OnEvent: events.record})
	defer s.Close()
	s.SelectAgent("agent-1")

	if err := s.Send(context.Background(), "bye"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventStatus && ev.Status == StatusDisconnected
	})
	if s.Connected() {
		t.Fatal("session should be disconnected")
	}
	if initiator.callCount() != 1 {
		t.Fatalf("initiations = %d, want 1 (no automatic reconnect)", initiator.callCount())
	}

	if err := s.Send(context.Background(), "hello again"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if initiator.callCount() != 2 {
		t.Fatalf("initiations = %d, want 2", initiator.callCount())
	}
	waitUntil(t, func() bool { return srv.connCount() == 2 })
}

func TestSessionSelectAgentClosesSocket(t *testing.T) {
	t.Parallel()

	srv := newFakeAgentServer(t, nil)
	initiator := &fakeInitiator{url: srv.wsURL()}
	s := NewSession(SessionConfig{Initiator: initiator})
	defer s.Close()
	s.SelectAgent("agent-1")

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	s.SelectAgent("agent-1")
	if !s.Connected() {
		t.Fatal("reselecting the same agent must keep the socket")
	}

	s.SelectAgent("agent-2")
	if s.Connected() {
		t.Fatal("selecting another agent must close the socket")
	}
	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if initiator.agents[len(initiator.agents)-1] != "agent-2" {
		t.Fatalf("initiated agents = %v, want last agent-2", initiator.agents)
	}
}

func TestSessionInitiateFailure(t *testing.T) {
	t.Parallel()

	srv := newFakeAgentServer(t, nil)
	initiator := &fakeInitiator{err: errors.New("boom")}
	events := newEventRecorder()
	s := NewSession(SessionConfig{Initiator: initiator, OnEvent: events.record})
	defer s.Close()
	s.SelectAgent("agent-1")

	err := s.Send(context.Background(), "hi")
	if err == nil {
		t.Fatal("Send() should fail when the session cannot be initiated")
	}
	if s.Connected() {
		t.Fatal("session must stay disconnected")
	}
	if n := s.Transcript().Len(); n != 0 {
		t.Fatalf("transcript has %d messages after a failed send, want 0", n)
	}
	select {
	case ev := <-events.ch:
		t.Fatalf("unexpected event after failed send: %+v", ev)
	default:
	}

	// The user resends once the upstream recovers.
	initiator.mu.Lock()
	initiator.err = nil
	initiator.url = srv.wsURL()
	initiator.mu.Unlock()

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("resend error = %v", err)
	}
	got := s.Messages()
	if len(got) != 1 || got[0] != (domain.Message{Role: domain.RoleUser, Text: "hi"}) {
		t.Fatalf("transcript after resend = %+v, want one user message", got)
	}
}

func TestSessionCloseIsNotLoggedAsReadError(t *testing.T) {
	t.Parallel()

	srv := newFakeAgentServer(t, nil)
	logs := &recordingHandler{}
	events := newEventRecorder()
	s := NewSession(SessionConfig{
		Initiator: &fakeInitiator{url: srv.wsURL()},
		OnEvent:   events.record,
		Logger:    slog.New(logs),
	})
	s.SelectAgent("agent-1")

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	s.Close()
	events.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventStatus && ev.Status == StatusDisconnected
	})
	waitUntil(t, func() bool { return srv.connCount() == 1 })
	time.Sleep(100 * time.Millisecond)

	if warns := logs.atLeast(slog.LevelWarn); len(warns) != 0 {
		t.Fatalf("Close() produced warnings: %v", warns)
	}
}

// recordingHandler keeps the messages of every log record.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler           { return h }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) atLeast(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var msgs []string
	for _, r := range h.records {
		if r.Level >= level {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}
