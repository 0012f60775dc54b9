package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeAgentServer stands in for the hosted agent socket.
type fakeAgentServer struct {
	srv    *httptest.Server
	frames chan Frame

	mu    sync.Mutex
	conns int

	// onFrame is called for each received frame on the server goroutine.
	onFrame func(ctx context.Context, conn *websocket.Conn, f Frame)
}

func newFakeAgentServer(t *testing.T, onFrame func(ctx context.Context, conn *websocket.Conn, f Frame)) *fakeAgentServer {
	t.Helper()
	s := &fakeAgentServer{frames: make(chan Frame, 64), onFrame: onFrame}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		s.mu.Lock()
		s.conns++
		s.mu.Unlock()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			s.frames <- f
			if s.onFrame != nil {
				s.onFrame(r.Context(), conn, f)
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeAgentServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeAgentServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *fakeAgentServer) nextFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func sendFrame(ctx context.Context, conn *websocket.Conn, f Frame) {
	data, _ := json.Marshal(f)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// fakeInitiator returns a fixed socket URL and counts calls.
type fakeInitiator struct {
	url string
	err error

	mu     sync.Mutex
	calls  int
	agents []string
}

func (f *fakeInitiator) StartSession(_ context.Context, agentID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.agents = append(f.agents, agentID)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeInitiator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// eventRecorder collects session events.
type eventRecorder struct {
	ch chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 64)}
}

func (r *eventRecorder) record(ev Event) {
	r.ch <- ev
}

// waitFor returns the first event matching match.
func (r *eventRecorder) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
