package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"deadbolt/cmd/internal/auth/session"
)

// TokenValidator authenticates a stream request. Satisfied by
// session.Service: signature check plus a live read of the session row, so a
// revoked token cannot open a stream.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string, now time.Time) (session.Claims, error)
}

// SSEGateway serves GET /events as a server-sent event stream.
//
// EventSource cannot set headers, so the token rides in the query string
// (Authorization is honored too for non-browser clients). Each accepted
// request registers a stream in the table and the registry, writes the
// connected handshake, and runs a write pump until either side closes.
type SSEGateway struct {
	log       *slog.Logger
	validator TokenValidator
	table     *Table
	registry  Registry
	cfg       GatewayConfig
}

// NewSSEGateway constructs the SSE endpoint handler.
func NewSSEGateway(log *slog.Logger, validator TokenValidator, table *Table, registry Registry, cfg GatewayConfig) *SSEGateway {
	if log == nil {
		log = slog.Default()
	}
	return &SSEGateway{log: log, validator: validator, table: table, registry: registry, cfg: cfg}
}

func (g *SSEGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := g.validator.ValidateToken(r.Context(), bearerToken(r), time.Now().UTC())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.log.Error("sse.unsupported", "remote", r.RemoteAddr)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream := NewStream(claims.UserID, claims.SessionID, g.cfg.SendQueueSize)

	if err := g.registry.Register(r.Context(), stream.SessionID, stream.UserID); err != nil {
		g.log.Error("sse.register.fail", "session_id", stream.SessionID, "err", err)
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	g.table.Open(stream)

	var closeOnce sync.Once
	shutdown := func() {
		closeOnce.Do(func() {
			// The request context is already dead on client disconnect.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			g.table.Remove(stream)
			if err := g.registry.Unregister(ctx, stream.SessionID, stream.UserID); err != nil {
				g.log.Warn("sse.unregister.fail", "session_id", stream.SessionID, "err", err)
			}
		})
	}
	defer shutdown()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	handshake := Frame{
		Kind: KindConnected,
		Data: fmt.Appendf(nil, `{"session_id":%q}`, stream.SessionID),
	}
	if err := g.writeFrame(rc, w, handshake); err != nil {
		g.log.Info("sse.handshake.fail", "session_id", stream.SessionID, "err", err)
		return
	}
	flusher.Flush()

	g.log.Info("sse.stream.start", "session_id", stream.SessionID, "user_id", stream.UserID)

	keepalive := time.NewTicker(g.cfg.KeepAlive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			g.log.Info("sse.stream.end", "session_id", stream.SessionID, "reason", "client gone")
			return
		case <-stream.Done():
			g.log.Info("sse.stream.end", "session_id", stream.SessionID, "reason", "closed")
			return
		case f := <-stream.Send:
			if err := g.writeFrame(rc, w, f); err != nil {
				g.log.Info("sse.write.fail", "session_id", stream.SessionID, "err", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			// Comment line: keeps proxies from idling the connection out.
			if err := g.writeRaw(rc, w, ": keep-alive\n\n"); err != nil {
				g.log.Info("sse.keepalive.fail", "session_id", stream.SessionID, "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (g *SSEGateway) writeFrame(rc *http.ResponseController, w http.ResponseWriter, f Frame) error {
	return g.writeRaw(rc, w, fmt.Sprintf("event: %s\ndata: %s\n\n", f.Kind, f.Data))
}

func (g *SSEGateway) writeRaw(rc *http.ResponseController, w http.ResponseWriter, s string) error {
	// Best-effort deadline: not every ResponseWriter supports it (httptest).
	_ = rc.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
	_, err := fmt.Fprint(w, s)
	return err
}

// bearerToken extracts the access token from the query string or the
// Authorization header.
func bearerToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}
