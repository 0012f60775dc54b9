package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// RelayManager tracks the browser relay socket of each user/tab.
type RelayManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRelayManager creates an empty manager.
func NewRelayManager() *RelayManager {
	return &RelayManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a user/session, closing the one it replaces.
func (m *RelayManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[userID][sessionID] = conn
	slog.Info("Agent relay registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the registered connection.
func (m *RelayManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Agent relay unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Count returns the number of registered relays.
func (m *RelayManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// CloseAll closes every relay, used on shutdown.
func (m *RelayManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, sessions := range m.active {
		for sid, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Agent relay closed", "user_id", userID, "session_id", sid)
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
}
