package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"deadbolt/cmd/internal/auth/session"
)

func TestRevokeEverywhereAcrossProcesses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, rdb := newTestRedis(t)
	p1 := startBridgeProcess(t, ctx, rdb, "server-1")
	p2 := startBridgeProcess(t, ctx, rdb, "server-2")
	waitSubscribers(t, rdb, 2)

	// u1 is signed in on two devices: sess-1 streaming from process 1,
	// sess-2 from process 2. The sign-out-everywhere request arrives at
	// process 1 from the sess-1 device.
	store := session.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dev := session.Device{Info: "Linux PC", IPAddress: "203.0.113.7", UserAgent: "curl/8.5"}

	sess1, err := store.Create(ctx, now, "u1", dev)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess2, err := store.Create(ctx, now, "u1", dev)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s1 := openStream(t, p1.table, p1.reg, "u1", sess1.ID)
	s2 := openStream(t, p2.table, p2.reg, "u1", sess2.ID)

	revoker := NewRevoker(discardLogger(), store, p1.bridge)
	n, err := revoker.RevokeEverywhere(ctx, now.Add(time.Minute), "u1", sess1.ID)
	if err != nil {
		t.Fatalf("RevokeEverywhere: %v", err)
	}
	if n != 2 {
		t.Fatalf("RevokeEverywhere = %d, want 2", n)
	}

	// Both sessions are durably dead regardless of push delivery.
	for _, id := range []string{sess1.ID, sess2.ID} {
		if active, _ := store.IsActive(ctx, "u1", id); active {
			t.Fatalf("session %s still active", id)
		}
	}

	// The other device gets the logout-all push with the documented body.
	f := recvFrame(t, s2)
	if f.Kind != KindLogoutAll {
		t.Fatalf("frame kind = %q, want %q", f.Kind, KindLogoutAll)
	}
	var body LogoutAllPayload
	if err := json.Unmarshal(f.Data, &body); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if body.Message == "" {
		t.Fatal("payload message is empty")
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Fatalf("payload timestamp %q not RFC3339: %v", body.Timestamp, err)
	}

	// The requesting device is excluded; it learns from the HTTP response.
	assertNoFrame(t, s1, 200*time.Millisecond)
}

type failingDeactivator struct{ err error }

func (f failingDeactivator) DeactivateAll(context.Context, time.Time, string) (int64, error) {
	return 0, f.err
}

type failingBridge struct {
	table *Table
	err   error
}

func (b *failingBridge) Publish(ctx context.Context, ev Event) error {
	ev.Origin = "server-1"
	b.table.DeliverLocal(ctx, ev)
	return b.err
}

func TestRevokeEverywhereStoreFailureStopsBroadcast(t *testing.T) {
	ctx := context.Background()
	table, _ := newTestTable(t)

	boom := errors.New("db down")
	bridge := &failingBridge{table: table}
	revoker := NewRevoker(discardLogger(), failingDeactivator{err: boom}, bridge)

	if _, err := revoker.RevokeEverywhere(ctx, time.Now(), "u1", ""); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want store failure", err)
	}
}

func TestRevokeEverywhereBroadcastFailureNotSurfaced(t *testing.T) {
	ctx := context.Background()
	table, reg := newTestTable(t)
	s := openStream(t, table, reg, "u1", "sess-1")

	store := session.NewMemoryStore()
	now := time.Now().UTC()
	if _, err := store.Create(ctx, now, "u1", session.Device{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Broker down: revocation still succeeds and local delivery happened.
	bridge := &failingBridge{table: table, err: errors.New("broker unreachable")}
	revoker := NewRevoker(discardLogger(), store, bridge)

	n, err := revoker.RevokeEverywhere(ctx, now, "u1", "")
	if err != nil {
		t.Fatalf("RevokeEverywhere: %v", err)
	}
	if n != 1 {
		t.Fatalf("RevokeEverywhere = %d, want 1", n)
	}
	if got := drain(s); len(got) != 1 {
		t.Fatalf("local stream received %d frames, want 1", len(got))
	}
}
