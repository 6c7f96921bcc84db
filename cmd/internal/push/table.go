package push

import (
	"context"
	"log/slog"
	"sync"
)

// Table holds the streams open on this process, keyed by session ID.
//
// Concurrency guarantees:
// - Open/Remove are safe under concurrent DeliverLocal.
// - DeliverLocal never blocks (drops under backpressure) and never closes
//   Stream.Send, so concurrent deliverers cannot panic.
// - Delivery iterates a snapshot: streams opened mid-delivery are not seen,
//   streams removed mid-delivery are skipped by their Done check.
type Table struct {
	log      *slog.Logger
	registry Registry
	metrics  *Metrics

	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewTable constructs an empty stream table.
func NewTable(log *slog.Logger, registry Registry, metrics *Metrics) *Table {
	if log == nil {
		log = slog.Default()
	}
	return &Table{
		log:      log,
		registry: registry,
		metrics:  metrics,
		streams:  make(map[string]*Stream),
	}
}

// Open installs a stream, last write wins: a prior handle under the same
// session ID is assumed dead (reconnect raced its cleanup) and is closed.
func (t *Table) Open(s *Stream) {
	if s == nil || s.SessionID == "" {
		return
	}

	t.mu.Lock()
	prior := t.streams[s.SessionID]
	t.streams[s.SessionID] = s
	t.mu.Unlock()

	if prior != nil && prior != s {
		prior.Close()
		t.log.Info("push.stream.replaced", "session_id", s.SessionID)
	} else {
		t.metrics.streamOpened()
	}

	t.log.Info("push.stream.open", "session_id", s.SessionID, "user_id", s.UserID)
}

// Remove drops s from the table and signals it to close. Identity-checked:
// if a reconnect already replaced this session ID, the replacement stays.
func (t *Table) Remove(s *Stream) {
	if s == nil {
		return
	}

	t.mu.Lock()
	removed := t.streams[s.SessionID] == s
	if removed {
		delete(t.streams, s.SessionID)
	}
	t.mu.Unlock()

	// Close after removal so a concurrent deliverer holding the pointer
	// observes Done instead of racing teardown.
	s.Close()

	if removed {
		t.metrics.streamClosed()
		t.log.Info("push.stream.close", "session_id", s.SessionID, "user_id", s.UserID)
	}
}

// Len reports how many streams are open.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.streams)
}

// Snapshot returns a copy of the current streams for lock-free iteration.
func (t *Table) Snapshot() []*Stream {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Stream, 0, len(t.streams))
	for _, s := range t.streams {
		out = append(out, s)
	}
	return out
}

// DeliverLocal fans an event out to this process's streams for ev.UserID,
// skipping ev.ExcludeSessionID. Ownership is confirmed against the registry;
// a registry read failure skips that candidate only. A full or closing
// stream is treated as disconnected and torn down. Returns the number of
// streams the frame was enqueued to.
func (t *Table) DeliverLocal(ctx context.Context, ev Event) int {
	frame := Frame{Kind: ev.Kind, Data: ev.Payload}

	delivered := 0
	for _, s := range t.Snapshot() {
		if s.UserID != ev.UserID || s.SessionID == ev.ExcludeSessionID {
			continue
		}

		entry, found, err := t.registry.Lookup(ctx, s.SessionID)
		if err != nil {
			// Degrade to skipping this candidate; the next event (or the
			// store check on its next request) will catch it.
			t.log.Warn("push.deliver.lookup.fail", "session_id", s.SessionID, "err", err)
			continue
		}
		if !found || entry.UserID != ev.UserID {
			continue
		}

		select {
		case <-s.Done():
			continue
		default:
		}

		select {
		case s.Send <- frame:
			delivered++
			t.metrics.frameDelivered()
		default:
			// Queue full: the reader is gone or hopelessly behind. Drop the
			// stream rather than block delivery to its siblings.
			t.metrics.frameDropped()
			t.log.Info("push.deliver.backpressure", "session_id", s.SessionID, "user_id", s.UserID)
			t.disconnect(ctx, s)
		}
	}
	return delivered
}

// CloseAll tears down every local stream and best-effort unregisters each,
// for graceful shutdown.
func (t *Table) CloseAll(ctx context.Context) {
	for _, s := range t.Snapshot() {
		t.disconnect(ctx, s)
	}
}

func (t *Table) disconnect(ctx context.Context, s *Stream) {
	t.Remove(s)
	if err := t.registry.Unregister(ctx, s.SessionID, s.UserID); err != nil {
		t.log.Warn("push.unregister.fail", "session_id", s.SessionID, "err", err)
	}
}
