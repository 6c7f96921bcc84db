package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestTable(t *testing.T) (*Table, *MemoryRegistry) {
	t.Helper()

	reg := NewMemoryRegistry("server-test")
	return NewTable(discardLogger(), reg, nil), reg
}

func openStream(t *testing.T, table *Table, reg Registry, userID, sessionID string) *Stream {
	t.Helper()

	s := NewStream(userID, sessionID, 8)
	if err := reg.Register(context.Background(), sessionID, userID); err != nil {
		t.Fatalf("Register: %v", err)
	}
	table.Open(s)
	return s
}

func drain(s *Stream) []Frame {
	var out []Frame
	for {
		select {
		case f := <-s.Send:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestDeliverLocal(t *testing.T) {
	ctx := context.Background()
	table, reg := newTestTable(t)

	s1 := openStream(t, table, reg, "u1", "sess-1")
	s2 := openStream(t, table, reg, "u1", "sess-2")
	other := openStream(t, table, reg, "u2", "sess-3")

	ev := Event{
		UserID:           "u1",
		ExcludeSessionID: "sess-1",
		Kind:             KindLogoutAll,
		Payload:          json.RawMessage(`{"message":"bye"}`),
	}

	if n := table.DeliverLocal(ctx, ev); n != 1 {
		t.Fatalf("DeliverLocal = %d, want 1", n)
	}

	if got := drain(s1); len(got) != 0 {
		t.Fatalf("excluded stream received %d frames", len(got))
	}
	if got := drain(other); len(got) != 0 {
		t.Fatalf("other user's stream received %d frames", len(got))
	}

	got := drain(s2)
	if len(got) != 1 {
		t.Fatalf("target stream received %d frames, want 1", len(got))
	}
	if got[0].Kind != KindLogoutAll || string(got[0].Data) != `{"message":"bye"}` {
		t.Fatalf("frame = %+v", got[0])
	}
}

func TestDeliverLocalSkipsUnregistered(t *testing.T) {
	ctx := context.Background()
	table, reg := newTestTable(t)

	s := openStream(t, table, reg, "u1", "sess-1")

	// Registry entry gone (expired or cleaned up elsewhere): the stream is
	// not a confirmed owner anymore and must be skipped.
	if err := reg.Unregister(ctx, "sess-1", "u1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	if n := table.DeliverLocal(ctx, Event{UserID: "u1", Kind: KindLogoutAll}); n != 0 {
		t.Fatalf("DeliverLocal = %d, want 0", n)
	}
	if got := drain(s); len(got) != 0 {
		t.Fatalf("unregistered stream received %d frames", len(got))
	}
}

func TestDeliverLocalBackpressureDisconnects(t *testing.T) {
	ctx := context.Background()
	table, reg := newTestTable(t)

	slow := NewStream("u1", "sess-slow", minSendQueueSize)
	if err := reg.Register(ctx, slow.SessionID, slow.UserID); err != nil {
		t.Fatalf("Register: %v", err)
	}
	table.Open(slow)

	// Fill the queue with nobody reading.
	ev := Event{UserID: "u1", Kind: KindLogoutAll}
	for i := 0; i < minSendQueueSize; i++ {
		if n := table.DeliverLocal(ctx, ev); n != 1 {
			t.Fatalf("DeliverLocal = %d, want 1 (i=%d)", n, i)
		}
	}

	// The overflowing delivery tears the stream down.
	if n := table.DeliverLocal(ctx, ev); n != 0 {
		t.Fatalf("overflow DeliverLocal = %d, want 0", n)
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("overflowed stream not closed")
	}
	if table.Len() != 0 {
		t.Fatalf("table still holds %d streams", table.Len())
	}
	if _, found, _ := reg.Lookup(ctx, "sess-slow"); found {
		t.Fatal("overflowed stream still registered")
	}

	// Later broadcasts see an empty table.
	if n := table.DeliverLocal(ctx, ev); n != 0 {
		t.Fatalf("post-disconnect DeliverLocal = %d, want 0", n)
	}
}

func TestOpenLastWriteWins(t *testing.T) {
	table, reg := newTestTable(t)

	first := openStream(t, table, reg, "u1", "sess-1")
	second := openStream(t, table, reg, "u1", "sess-1")

	select {
	case <-first.Done():
	default:
		t.Fatal("replaced stream not closed")
	}

	// The stale handle's cleanup must not evict the replacement.
	table.Remove(first)
	if table.Len() != 1 {
		t.Fatalf("table holds %d streams, want 1", table.Len())
	}

	if n := table.DeliverLocal(context.Background(), Event{UserID: "u1", Kind: KindLogoutAll}); n != 1 {
		t.Fatalf("DeliverLocal = %d, want 1", n)
	}
	if got := drain(second); len(got) != 1 {
		t.Fatalf("replacement received %d frames, want 1", len(got))
	}
}

func TestCloseAll(t *testing.T) {
	ctx := context.Background()
	table, reg := newTestTable(t)

	streams := []*Stream{
		openStream(t, table, reg, "u1", "sess-1"),
		openStream(t, table, reg, "u1", "sess-2"),
		openStream(t, table, reg, "u2", "sess-3"),
	}

	table.CloseAll(ctx)

	if table.Len() != 0 {
		t.Fatalf("table holds %d streams after CloseAll", table.Len())
	}
	for _, s := range streams {
		select {
		case <-s.Done():
		default:
			t.Fatalf("stream %s not closed", s.SessionID)
		}
		if _, found, _ := reg.Lookup(ctx, s.SessionID); found {
			t.Fatalf("stream %s still registered", s.SessionID)
		}
	}
}
