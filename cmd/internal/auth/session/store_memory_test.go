package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testDevice() Device {
	return Device{Info: "Linux PC", IPAddress: "203.0.113.7", UserAgent: "curl/8.5"}
}

func TestMemoryStoreCreateAndIsActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sess, err := store.Create(ctx, now, "user-1", testDevice())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Create returned empty session id")
	}
	if !sess.Active {
		t.Fatal("new session must be active")
	}

	active, err := store.IsActive(ctx, "user-1", sess.ID)
	if err != nil {
		t.Fatalf("IsActive: %v", err)
	}
	if !active {
		t.Fatal("IsActive = false for fresh session")
	}

	// Unknown session and wrong owner both read inactive, not errored.
	active, err = store.IsActive(ctx, "user-1", "no-such-session")
	if err != nil || active {
		t.Fatalf("IsActive(unknown) = (%v, %v), want (false, nil)", active, err)
	}
	active, err = store.IsActive(ctx, "user-2", sess.ID)
	if err != nil || active {
		t.Fatalf("IsActive(wrong owner) = (%v, %v), want (false, nil)", active, err)
	}
}

func TestMemoryStoreDeactivateTouchesExactlyOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, _ := store.Create(ctx, now, "user-1", testDevice())
	b, _ := store.Create(ctx, now.Add(time.Second), "user-1", testDevice())

	if err := store.Deactivate(ctx, now.Add(time.Minute), "user-1", a.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if active, _ := store.IsActive(ctx, "user-1", a.ID); active {
		t.Fatal("deactivated session still reads active")
	}
	if active, _ := store.IsActive(ctx, "user-1", b.ID); !active {
		t.Fatal("sibling session was deactivated")
	}

	// Idempotent, and a no-op for the wrong owner.
	if err := store.Deactivate(ctx, now, "user-1", a.ID); err != nil {
		t.Fatalf("repeat Deactivate: %v", err)
	}
	if err := store.Deactivate(ctx, now, "user-2", b.ID); err != nil {
		t.Fatalf("Deactivate wrong owner: %v", err)
	}
	if active, _ := store.IsActive(ctx, "user-1", b.ID); !active {
		t.Fatal("wrong-owner Deactivate flipped the session")
	}
}

func TestMemoryStoreDeactivateAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var mine []Session
	for i := 0; i < 5; i++ {
		sess, err := store.Create(ctx, now.Add(time.Duration(i)*time.Second), "user-1", testDevice())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		mine = append(mine, sess)
	}
	other, _ := store.Create(ctx, now, "user-2", testDevice())

	// One already logged out; it must not be counted again.
	if err := store.Deactivate(ctx, now, "user-1", mine[2].ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	n, err := store.DeactivateAll(ctx, now.Add(time.Minute), "user-1")
	if err != nil {
		t.Fatalf("DeactivateAll: %v", err)
	}
	if n != 4 {
		t.Fatalf("DeactivateAll = %d, want 4", n)
	}

	for _, sess := range mine {
		if active, _ := store.IsActive(ctx, "user-1", sess.ID); active {
			t.Fatalf("session %s still active after DeactivateAll", sess.ID)
		}
	}
	if active, _ := store.IsActive(ctx, "user-2", other.ID); !active {
		t.Fatal("DeactivateAll crossed user boundary")
	}

	n, err = store.DeactivateAll(ctx, now.Add(2*time.Minute), "user-1")
	if err != nil || n != 0 {
		t.Fatalf("repeat DeactivateAll = (%d, %v), want (0, nil)", n, err)
	}
}

func TestMemoryStoreListActiveNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	oldest, _ := store.Create(ctx, now, "user-1", testDevice())
	middle, _ := store.Create(ctx, now.Add(time.Second), "user-1", testDevice())
	newest, _ := store.Create(ctx, now.Add(2*time.Second), "user-1", testDevice())

	if err := store.Deactivate(ctx, now.Add(time.Minute), "user-1", middle.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	got, err := store.ListActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListActive returned %d sessions, want 2", len(got))
	}
	if got[0].ID != newest.ID || got[1].ID != oldest.ID {
		t.Fatalf("ListActive order = [%s %s], want [%s %s]",
			got[0].ID, got[1].ID, newest.ID, oldest.ID)
	}
}

func TestMemoryStoreDeactivateAllConcurrentReads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var sessions []Session
	for i := 0; i < 32; i++ {
		sess, err := store.Create(ctx, now, "user-1", testDevice())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		sessions = append(sessions, sess)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			for i := 0; i < 100; i++ {
				if _, err := store.IsActive(ctx, "user-1", id); err != nil {
					t.Errorf("IsActive: %v", err)
					return
				}
			}
		}(sess.ID)
	}

	close(start)
	n, err := store.DeactivateAll(ctx, now.Add(time.Minute), "user-1")
	if err != nil {
		t.Fatalf("DeactivateAll: %v", err)
	}
	if n != int64(len(sessions)) {
		t.Fatalf("DeactivateAll = %d, want %d", n, len(sessions))
	}
	wg.Wait()

	for _, sess := range sessions {
		if active, _ := store.IsActive(ctx, "user-1", sess.ID); active {
			t.Fatalf("session %s active after DeactivateAll", sess.ID)
		}
	}
}
