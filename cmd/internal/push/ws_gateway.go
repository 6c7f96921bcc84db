package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	wsHeartbeatTimeout = 5 * time.Second
)

// WSGateway serves GET /events/ws: the same push stream as the SSE
// endpoint, over a websocket for clients that prefer it. Server-push only;
// anything the client sends closes the connection.
type WSGateway struct {
	log       *slog.Logger
	validator TokenValidator
	table     *Table
	registry  Registry
	cfg       GatewayConfig

	// Accept() authorizes same-host origins by default; cross-origin hosts
	// must appear in OriginPatterns.
	originPatterns []string
}

// NewWSGateway constructs the websocket endpoint handler. Allowed origins
// come from DEADBOLT_WS_ALLOWED_ORIGINS (comma-separated, localhost by
// default).
func NewWSGateway(log *slog.Logger, validator TokenValidator, table *Table, registry Registry, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	return &WSGateway{
		log:            log,
		validator:      validator,
		table:          table,
		registry:       registry,
		cfg:            cfg,
		originPatterns: originPatternsFromEnv(),
	}
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := g.validator.ValidateToken(r.Context(), bearerToken(r), time.Now().UTC())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Info("ws.accept.fail", "remote", r.RemoteAddr, "err", err)
		return
	}

	stream := NewStream(claims.UserID, claims.SessionID, g.cfg.SendQueueSize)

	if err := g.registry.Register(r.Context(), stream.SessionID, stream.UserID); err != nil {
		g.log.Error("ws.register.fail", "session_id", stream.SessionID, "err", err)
		_ = conn.Close(websocket.StatusTryAgainLater, "stream unavailable")
		return
	}
	g.table.Open(stream)

	// CloseRead discards inbound frames and cancels ctx when the peer goes
	// away, which is all a push-only endpoint needs from the read side.
	ctx := conn.CloseRead(r.Context())

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			g.table.Remove(stream)
			if err := g.registry.Unregister(cleanupCtx, stream.SessionID, stream.UserID); err != nil {
				g.log.Warn("ws.unregister.fail", "session_id", stream.SessionID, "err", err)
			}
			_ = conn.Close(code, reason)
		})
	}
	defer shutdown(websocket.StatusNormalClosure, "bye")

	handshake := Frame{
		Kind: KindConnected,
		Data: json.RawMessage(`{"session_id":"` + stream.SessionID + `"}`),
	}
	if err := g.writeFrame(ctx, conn, handshake); err != nil {
		g.log.Info("ws.handshake.fail", "session_id", stream.SessionID, "err", err)
		return
	}

	g.log.Info("ws.stream.start", "session_id", stream.SessionID, "user_id", stream.UserID)

	heartbeat := time.NewTicker(g.cfg.KeepAlive)
	defer heartbeat.Stop()

	pingFailures := 0
	for {
		select {
		case <-ctx.Done():
			g.log.Info("ws.stream.end", "session_id", stream.SessionID, "reason", "client gone")
			return
		case <-stream.Done():
			g.log.Info("ws.stream.end", "session_id", stream.SessionID, "reason", "closed")
			shutdown(websocket.StatusGoingAway, "stream closed")
			return
		case f := <-stream.Send:
			if err := g.writeFrame(ctx, conn, f); err != nil {
				g.log.Info("ws.write.fail", "session_id", stream.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-heartbeat.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, wsHeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				pingFailures++
				g.log.Info("ws.ping.fail", "session_id", stream.SessionID, "failures", pingFailures, "err", err)
				if pingFailures >= maxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			pingFailures = 0
		}
	}
}

func (g *WSGateway) writeFrame(parent context.Context, conn *websocket.Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(parent, g.cfg.WriteTimeout)
	defer cancel()

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func originPatternsFromEnv() []string {
	raw := strings.TrimSpace(os.Getenv("DEADBOLT_WS_ALLOWED_ORIGINS"))
	if raw == "" {
		raw = wsDefaultAllowedOrigins
	}

	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if h := originHostOnly(part); h != "" {
			seen[h] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
