package narration

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a narration replaced by a newer one.
var ErrSuperseded = errors.New("narration superseded")

// Narrator tracks the in-flight narration per key (one key per browser tab).
type Narrator struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]flight
}

type flight struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// NewNarrator creates an empty narrator.
func NewNarrator() *Narrator {
	return &Narrator{inflight: make(map[string]flight)}
}

// Begin cancels any narration in flight under key and registers a new one.
// The returned release func must be called when the narration ends.
func (n *Narrator) Begin(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	n.mu.Lock()
	if prev, ok := n.inflight[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	n.seq++
	id := n.seq
	n.inflight[key] = flight{id: id, cancel: cancel}
	n.mu.Unlock()

	release := func() {
		n.mu.Lock()
		if cur, ok := n.inflight[key]; ok && cur.id == id {
			delete(n.inflight, key)
		}
		n.mu.Unlock()
		cancel(context.Canceled)
	}
	return ctx, release
}

// InFlight reports how many narrations are currently registered.
func (n *Narrator) InFlight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inflight)
}

// Superseded reports whether ctx was cancelled because a newer narration began.
func Superseded(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSuperseded)
}
