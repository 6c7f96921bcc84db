package push

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deadbolt/cmd/internal/auth/session"
)

type stubValidator struct {
	userID    string
	sessionID string
	err       error
}

func (v stubValidator) ValidateToken(ctx context.Context, token string, now time.Time) (session.Claims, error) {
	if v.err != nil || token == "" {
		return session.Claims{}, session.ErrInvalidToken
	}
	return session.Claims{UserID: v.userID, SessionID: v.sessionID}, nil
}

// readSSEEvent consumes one "event:"/"data:" pair, skipping keepalive
// comments and blank lines.
func readSSEEvent(t *testing.T, r *bufio.Reader) (kind, data string) {
	t.Helper()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && kind != "":
			return kind, data
		}
	}
}

func TestSSEGatewayRejectsBadToken(t *testing.T) {
	table, reg := newTestTable(t)
	gw := NewSSEGateway(discardLogger(), stubValidator{err: session.ErrInvalidToken}, table, reg, GatewayConfigFromEnv())

	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, httptest.NewRequest("GET", "/events?token=bad", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if table.Len() != 0 {
		t.Fatal("rejected request left a stream open")
	}
}

func TestSSEGatewayStreamLifecycle(t *testing.T) {
	table, reg := newTestTable(t)
	gw := NewSSEGateway(discardLogger(), stubValidator{userID: "u1", sessionID: "sess-1"}, table, reg, GatewayConfigFromEnv())

	srv := httptest.NewServer(gw)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events?token=good")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	br := bufio.NewReader(resp.Body)

	kind, data := readSSEEvent(t, br)
	if kind != KindConnected {
		t.Fatalf("handshake kind = %q, want %q", kind, KindConnected)
	}
	var hs struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(data), &hs); err != nil || hs.SessionID != "sess-1" {
		t.Fatalf("handshake data = %q (%v)", data, err)
	}

	waitForStreams(t, table, 1)
	if _, found, _ := reg.Lookup(context.Background(), "sess-1"); !found {
		t.Fatal("stream not registered")
	}

	bridge := NewLoopbackBridge(table, "server-1", nil)
	payload, _ := json.Marshal(LogoutAllPayload{Message: LogoutAllMessage, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	if err := bridge.Publish(context.Background(), Event{UserID: "u1", Kind: KindLogoutAll, Payload: payload}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	kind, data = readSSEEvent(t, br)
	if kind != KindLogoutAll {
		t.Fatalf("kind = %q, want %q", kind, KindLogoutAll)
	}
	var body LogoutAllPayload
	if err := json.Unmarshal([]byte(data), &body); err != nil || body.Message == "" {
		t.Fatalf("data = %q (%v)", data, err)
	}

	// Client disconnect unregisters the stream.
	resp.Body.Close()
	waitForStreams(t, table, 0)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, found, _ := reg.Lookup(context.Background(), "sess-1"); !found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForStreams(t *testing.T, table *Table, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for table.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("table.Len() = %d, want %d", table.Len(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
