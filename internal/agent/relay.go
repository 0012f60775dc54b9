package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/autopdf/internal/domain"
	"github.com/ashureev/autopdf/internal/identity"
)

// Browser-facing frame types. Inbound frames reuse textIn and audioIn.
const (
	relaySelectAgent = "selectAgent"
	relayPing        = "ping"
	relayPong        = "pong"
	relayMessage     = "message"
	relayAudio       = "audio"
	relayStatus      = "status"
	relayError       = "error"
)

const relayWriteTimeout = 10 * time.Second

// relayFrame is a frame exchanged with the browser.
type relayFrame struct {
	Type    string      `json:"type"`
	Data    string      `json:"data,omitempty"`
	Role    domain.Role `json:"role,omitempty"`
	Text    string      `json:"text,omitempty"`
	Index   *int        `json:"index,omitempty"`
	Pending bool        `json:"pending,omitempty"`
}

// Relay bridges a browser socket to an upstream agent Session.
type Relay struct {
	initiator     Initiator
	apiKey        string
	relays        *RelayManager
	convLog       ConversationLogger
	allowedOrigin string
	isDev         bool
}

// NewRelay creates the /ws/agent handler.
func NewRelay(initiator Initiator, apiKey string, relays *RelayManager, convLog ConversationLogger, allowedOrigin string, isDev bool) *Relay {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	return &Relay{
		initiator:     initiator,
		apiKey:        apiKey,
		relays:        relays,
		convLog:       convLog,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	agentID := r.URL.Query().Get("agentId")
	log := slog.With("user_id", userID, "session_id", sessionID)
	log.Info("Agent relay request", "agent_id", agentID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.relays.Register(userID, sessionID, ws)
	defer h.relays.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := NewSession(SessionConfig{
		Initiator: h.initiator,
		APIKey:    h.apiKey,
		Logger:    log,
		OnEvent: func(ev Event) {
			h.forward(ctx, ws, ev)
			h.logEvent(userID, sessionID, ev)
		},
	})
	defer session.Close()
	session.SelectAgent(agentID)

	h.inputLoop(ctx, ws, session, log)
	log.Info("Agent relay ended", "messages", session.Transcript().Len())
}

func (h *Relay) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Relay) inputLoop(ctx context.Context, ws *websocket.Conn, session *Session, log *slog.Logger) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("WebSocket closed by client")
			} else if !errors.Is(err, context.Canceled) {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg relayFrame
		if err := json.Unmarshal(message, &msg); err != nil {
			h.writeJSON(ctx, ws, relayFrame{Type: relayError, Data: "invalid frame"})
			continue
		}

		switch msg.Type {
		case FrameTextIn:
			if err := session.Send(ctx, msg.Data); err != nil {
				log.Warn("Failed to send text to agent", "error", err)
				h.writeJSON(ctx, ws, relayFrame{Type: relayError, Data: err.Error()})
			}
		case FrameAudioIn:
			audio, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				h.writeJSON(ctx, ws, relayFrame{Type: relayError, Data: "invalid audio encoding"})
				continue
			}
			if err := session.SendAudio(ctx, audio); err != nil {
				log.Warn("Failed to send audio to agent", "error", err)
				h.writeJSON(ctx, ws, relayFrame{Type: relayError, Data: err.Error()})
			}
		case relaySelectAgent:
			session.SelectAgent(msg.Data)
		case relayPing:
			h.writeJSON(ctx, ws, relayFrame{Type: relayPong})
		default:
			log.Debug("Ignoring relay frame", "type", msg.Type)
		}
	}
}

func (h *Relay) forward(ctx context.Context, ws *websocket.Conn, ev Event) {
	switch ev.Kind {
	case EventMessage:
		idx := ev.Update.Index
		h.writeJSON(ctx, ws, relayFrame{
			Type:    relayMessage,
			Role:    ev.Update.Message.Role,
			Text:    ev.Update.Message.Text,
			Index:   &idx,
			Pending: ev.Update.Pending,
		})
	case EventAudio:
		h.writeJSON(ctx, ws, relayFrame{Type: relayAudio, Data: base64.StdEncoding.EncodeToString(ev.Audio)})
	case EventStatus:
		h.writeJSON(ctx, ws, relayFrame{Type: relayStatus, Data: ev.Status})
	case EventError:
		h.writeJSON(ctx, ws, relayFrame{Type: relayError, Data: ev.Err})
	}
}

func (h *Relay) logEvent(userID, sessionID string, ev Event) {
	if ev.Kind != EventMessage || ev.Update.Pending {
		return
	}
	direction, eventType := "inbound", "agent_message"
	if ev.Update.Message.Role == domain.RoleUser {
		direction, eventType = "outbound", "user_message"
	}
	h.convLog.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		AgentID:    ev.AgentID,
		Channel:    "agent_ws",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: ev.Update.Message.Text,
		Meta:       map[string]any{"index": ev.Update.Index},
	})
}

func (h *Relay) writeJSON(ctx context.Context, ws *websocket.Conn, v relayFrame) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal relay frame", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, relayWriteTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("Relay write failed", "error", err, "type", v.Type)
	}
}
