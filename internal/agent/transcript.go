package agent

import (
	"sync"

	"github.com/ashureev/autopdf/internal/domain"
)

// Transcript is the ordered message list of one chat session.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message
	pending  int
}

// Update describes the entry a transcript operation touched.
type Update struct {
	Index   int            `json:"index"`
	Message domain.Message `json:"message"`
	Pending bool           `json:"pending"`
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{pending: -1}
}

// AddUser appends a user message and closes any pending agent message.
func (t *Transcript) AddUser(text string) Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = -1
	return t.appendLocked(domain.RoleUser, text, false)
}

// Stream appends a partial agent chunk. It extends the pending agent message
// or starts a new pending one.
func (t *Transcript) Stream(chunk string) Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending >= 0 {
		t.messages[t.pending].Text += chunk
		return Update{Index: t.pending, Message: t.messages[t.pending], Pending: true}
	}
	u := t.appendLocked(domain.RoleAgent, chunk, true)
	t.pending = u.Index
	return u
}

// Finish appends a complete agent text. It closes the pending agent message
// if there is one, otherwise a new closed message is added.
func (t *Transcript) Finish(text string) Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending >= 0 {
		i := t.pending
		t.pending = -1
		t.messages[i].Text += text
		return Update{Index: i, Message: t.messages[i]}
	}
	return t.appendLocked(domain.RoleAgent, text, false)
}

func (t *Transcript) appendLocked(role domain.Role, text string, pending bool) Update {
	t.messages = append(t.messages, domain.Message{Role: role, Text: text})
	i := len(t.messages) - 1
	return Update{Index: i, Message: t.messages[i], Pending: pending}
}

// Pending reports whether an agent message is still streaming.
func (t *Transcript) Pending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending >= 0
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Snapshot returns a copy of the messages.
func (t *Transcript) Snapshot() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
