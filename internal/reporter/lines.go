package reporter

import (
	"context"
	"sync"
	"time"

	"trainbot/internal/transport"
)

type lineState int

const (
	lineAbsent lineState = iota
	lineSent
)

// line is the finite-state record for one logical progress line:
// Absent → Sent → Sent (edited repeatedly) → Absent (after close).
type line struct {
	state lineState
	msgID string
}

// tracker is the per-key message-identity cache. Best-effort and
// self-healing: a stale id degrades the next write into a fresh send.
type tracker struct {
	mu    sync.Mutex
	lines map[string]line
}

func newTracker() *tracker {
	return &tracker{lines: map[string]line{}}
}

func (t *tracker) id(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lines[key].msgID
}

func (t *tracker) store(key, msgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if msgID == "" {
		delete(t.lines, key)
		return
	}
	t.lines[key] = line{state: lineSent, msgID: msgID}
}

func (t *tracker) drop(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lines, key)
}

// write updates the live message for key, sending a new one when the line is
// absent or its message vanished. The stored id always reflects the last
// message known to exist.
func (t *tracker) write(ctx context.Context, n Notifier, key, text string) error {
	prev := t.id(key)
	id, err := n.UpdateOrSend(ctx, prev, transport.Patch{Text: &text})
	if err != nil {
		return err
	}
	t.store(key, id)
	return nil
}

// close schedules deletion of the line's message (with grace delay) and
// returns the key to Absent.
func (t *tracker) close(ctx context.Context, n Notifier, key string, grace time.Duration) {
	id := t.id(key)
	t.drop(key)
	if id == "" {
		return
	}
	n.DeleteAfterDelay(ctx, id, grace)
}
