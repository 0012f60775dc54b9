package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/autopdf/internal/domain"
	"github.com/ashureev/autopdf/internal/metrics"
)

var (
	// ErrNoAgentSelected is returned by Send when no agent has been chosen.
	ErrNoAgentSelected = errors.New("no agent selected")
	// ErrNotConnected is returned when the socket closed before a frame could be written.
	ErrNotConnected = errors.New("agent socket not connected")
)

// maxFrameBytes bounds inbound frames; audio chunks arrive base64 encoded.
const maxFrameBytes = 8 << 20

// Initiator starts a hosted agent conversation and returns its socket URL.
type Initiator interface {
	StartSession(ctx context.Context, agentID, question string) (string, error)
}

// EventKind classifies session events.
type EventKind string

// Session event kinds.
const (
	EventMessage EventKind = "message"
	EventAudio   EventKind = "audio"
	EventStatus  EventKind = "status"
	EventError   EventKind = "error"
)

// Connection states reported with EventStatus.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Event is reported to SessionConfig.OnEvent.
type Event struct {
	Kind    EventKind
	AgentID string
	Update  Update
	Audio   []byte
	Status  string
	Err     string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Initiator Initiator
	APIKey    string
	// OnEvent is called from the caller of Send and from the read loop. It
	// must not call back into the Session.
	OnEvent func(Event)
	// OnAudio receives decoded agent audio.
	OnAudio func([]byte)
	Logger  *slog.Logger
}

// Session is one chat conversation with a hosted agent over a single socket.
// A dropped socket is not reconnected; the next Send opens a new one.
type Session struct {
	cfg        SessionConfig
	log        *slog.Logger
	transcript *Transcript

	mu      sync.Mutex
	agentID string
	conn    *websocket.Conn
	cancel  context.CancelFunc
}

// NewSession creates a disconnected session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}
	if cfg.OnAudio == nil {
		cfg.OnAudio = func([]byte) {}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, log: log, transcript: NewTranscript()}
}

// Transcript returns the session transcript.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// AgentID returns the selected agent.
func (s *Session) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// Connected reports whether a socket is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SelectAgent chooses the agent for future sends. An open socket to a
// different agent is closed.
func (s *Session) SelectAgent(agentID string) {
	s.mu.Lock()
	if agentID == s.agentID {
		s.mu.Unlock()
		return
	}
	s.agentID = agentID
	conn, cancel := s.detachLocked()
	s.mu.Unlock()

	s.shutdown(conn, cancel, "agent changed")
}

// Send opens the socket if needed, then appends a user message and sends it
// as a textIn frame. Nothing is appended when the socket cannot be opened.
func (s *Session) Send(ctx context.Context, text string) error {
	agentID := s.AgentID()
	if agentID == "" {
		return ErrNoAgentSelected
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	update := s.transcript.AddUser(text)
	s.cfg.OnEvent(Event{Kind: EventMessage, AgentID: agentID, Update: update})

	return s.writeTo(ctx, conn, Frame{Type: FrameTextIn, Data: text})
}

// SendAudio sends captured microphone audio as an audioIn frame.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	if s.AgentID() == "" {
		return ErrNoAgentSelected
	}
	return s.write(ctx, Frame{Type: FrameAudioIn, Data: base64.StdEncoding.EncodeToString(audio)})
}

func (s *Session) write(ctx context.Context, f Frame) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	return s.writeTo(ctx, conn, f)
}

func (s *Session) writeTo(ctx context.Context, conn *websocket.Conn, f Frame) error {
	if err := writeFrame(ctx, conn, f); err != nil {
		s.drop(conn)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// connect returns the open socket or establishes one. Establishing holds the
// session lock so concurrent senders share a single socket.
func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}
	if s.agentID == "" {
		return nil, ErrNoAgentSelected
	}

	wsURL, err := s.cfg.Initiator.StartSession(ctx, s.agentID, "")
	if err != nil {
		return nil, fmt.Errorf("initiate agent session: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent socket: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)

	if err := writeFrame(ctx, conn, Frame{Type: FrameSetup, APIKey: s.cfg.APIKey}); err != nil {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("send setup frame: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	metrics.AgentSessions.Inc()
	s.log.Info("Agent socket connected", "agent_id", s.agentID)
	s.cfg.OnEvent(Event{Kind: EventStatus, AgentID: s.agentID, Status: StatusConnected})

	go s.readLoop(readCtx, conn)
	return conn, nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.drop(conn)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if s.detached(conn) || websocket.CloseStatus(err) != -1 ||
				errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
				s.log.Debug("Agent socket closed", "error", err)
			} else {
				s.log.Warn("Agent socket read error", "error", err)
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) dispatch(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		s.log.Warn("Dropping malformed agent frame", "error", err)
		return
	}
	metrics.AgentFrames.WithLabelValues("in", f.Type).Inc()
	agentID := s.AgentID()

	switch f.Type {
	case FrameTextStream:
		s.cfg.OnEvent(Event{Kind: EventMessage, AgentID: agentID, Update: s.transcript.Stream(f.Data)})
	case FrameTextOut:
		s.cfg.OnEvent(Event{Kind: EventMessage, AgentID: agentID, Update: s.transcript.Finish(f.Data)})
	case FrameAudioStream:
		audio, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			s.log.Warn("Dropping agent audio chunk with invalid base64", "error", err)
			return
		}
		s.cfg.OnAudio(audio)
		s.cfg.OnEvent(Event{Kind: EventAudio, AgentID: agentID, Audio: audio})
	case FrameError:
		s.log.Error("Agent reported error", "agent_id", agentID, "data", f.Data)
		s.cfg.OnEvent(Event{Kind: EventError, AgentID: agentID, Err: f.Data})
	default:
		s.log.Debug("Ignoring agent frame", "type", f.Type)
	}
}

// detached reports whether conn was already taken off the session, i.e. it is
// being closed on purpose.
func (s *Session) detached(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != conn
}

// drop forgets conn if it is still the current socket.
func (s *Session) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	cur, cancel := s.detachLocked()
	s.mu.Unlock()

	s.shutdown(cur, cancel, "socket dropped")
}

// Close closes the socket, if any.
func (s *Session) Close() {
	s.mu.Lock()
	conn, cancel := s.detachLocked()
	s.mu.Unlock()

	s.shutdown(conn, cancel, "session closed")
}

func (s *Session) detachLocked() (*websocket.Conn, context.CancelFunc) {
	conn, cancel := s.conn, s.cancel
	s.conn, s.cancel = nil, nil
	return conn, cancel
}

// shutdown closes a detached socket outside the session lock; the close
// handshake may block while the peer answers.
func (s *Session) shutdown(conn *websocket.Conn, cancel context.CancelFunc, reason string) {
	if conn == nil {
		return
	}
	if err := conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		s.log.Debug("Failed to close agent socket", "error", err)
	}
	cancel()
	metrics.AgentSessions.Dec()
	agentID := s.AgentID()
	s.log.Info("Agent socket disconnected", "agent_id", agentID, "reason", reason)
	s.cfg.OnEvent(Event{Kind: EventStatus, AgentID: agentID, Status: StatusDisconnected})
}

// Messages returns a transcript snapshot.
func (s *Session) Messages() []domain.Message {
	return s.transcript.Snapshot()
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	metrics.AgentFrames.WithLabelValues("out", f.Type).Inc()
	return conn.Write(ctx, websocket.MessageText, data)
}
