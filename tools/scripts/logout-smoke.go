// Package main provides a CI-friendly smoke test for deadbolt sign-out-everywhere.
//
// It validates:
//   - register + second login (two live sessions for one user)
//   - WebSocket attach on /events/ws + connected handshake
//   - POST /auth/logout_all from the other session
//   - logout-all fanout frame arrives on the attached stream
//   - revoked token rejected, initiating token still accepted
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

// frame mirrors the wire shape written by the push gateways.
type frame struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type logoutAllData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type connectedData struct {
	SessionID string `json:"session_id"`
}

type sessionCreds struct {
	sessionID string
	token     string
}

type smokeStream struct {
	name string
	conn *websocket.Conn

	inbox chan frame
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL of the server")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		email    = flag.String("email", "", "Account email (default: generated throwaway)")
		password = flag.String("password", "smoke-test-password-1", "Account password")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	addr := *email
	if strings.TrimSpace(addr) == "" {
		addr = fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	}

	root := context.Background()

	a := mustRegister(root, *baseURL, addr, *password, *timeout)
	b := mustLogin(root, *baseURL, addr, *password, *timeout)

	if a.sessionID == b.sessionID {
		fatalf("expected distinct sessions, both got %s", a.sessionID)
	}
	if *verbose {
		fmt.Printf("sessions: A=%s B=%s email=%q\n", a.sessionID, b.sessionID, addr)
	}

	stream := mustAttach(root, "B", *baseURL, *origin, b.token, b.sessionID, *timeout)
	defer closeWS(stream.conn)

	count := mustLogoutAll(root, *baseURL, a.token, *timeout)
	if count < 1 {
		fatalf("logout_all deactivated_count: got=%d want>=1", count)
	}

	mustAssertLogoutAll(root, stream, *timeout)

	mustMeStatus(root, *baseURL, b.token, http.StatusUnauthorized, *timeout)
	mustMeStatus(root, *baseURL, a.token, http.StatusOK, *timeout)

	fmt.Printf("OK: A=%s B=%s deactivated=%d\n", a.sessionID, b.sessionID, count)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustRegister(parent context.Context, baseURL, email, password string, stepTimeout time.Duration) sessionCreds {
	body := map[string]string{"email": email, "name": "Smoke Tester", "password": password}
	creds, status := postAuth(parent, baseURL+"/auth/register", "", body, stepTimeout)
	if status != http.StatusCreated {
		fatalf("register: status=%d want=%d", status, http.StatusCreated)
	}
	return creds
}

func mustLogin(parent context.Context, baseURL, email, password string, stepTimeout time.Duration) sessionCreds {
	body := map[string]string{"email": email, "password": password}
	creds, status := postAuth(parent, baseURL+"/auth/login", "", body, stepTimeout)
	if status != http.StatusOK {
		fatalf("login: status=%d want=%d", status, http.StatusOK)
	}
	return creds
}

func postAuth(parent context.Context, target, token string, body any, stepTimeout time.Duration) (sessionCreds, int) {
	resp, data := doJSON(parent, http.MethodPost, target, token, body, stepTimeout)

	var out struct {
		Session struct {
			SessionID   string `json:"session_id"`
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	if resp == http.StatusOK || resp == http.StatusCreated {
		if err := json.Unmarshal(data, &out); err != nil {
			fatalf("decode auth response (%s): %v", target, err)
		}
		if strings.TrimSpace(out.Session.SessionID) == "" || strings.TrimSpace(out.Session.AccessToken) == "" {
			fatalf("auth response missing session fields (%s): %s", target, data)
		}
	}
	return sessionCreds{sessionID: out.Session.SessionID, token: out.Session.AccessToken}, resp
}

func mustLogoutAll(parent context.Context, baseURL, token string, stepTimeout time.Duration) int64 {
	status, data := doJSON(parent, http.MethodPost, baseURL+"/auth/logout_all", token, nil, stepTimeout)
	if status != http.StatusOK {
		fatalf("logout_all: status=%d want=%d body=%s", status, http.StatusOK, data)
	}

	var out struct {
		Message          string `json:"message"`
		DeactivatedCount int64  `json:"deactivated_count"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		fatalf("decode logout_all response: %v", err)
	}
	if strings.TrimSpace(out.Message) == "" {
		fatalf("logout_all response missing message")
	}
	return out.DeactivatedCount
}

func mustMeStatus(parent context.Context, baseURL, token string, want int, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/me", nil)
	if err != nil {
		fatalf("build /me request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("GET /me: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != want {
		fatalf("GET /me: status=%d want=%d", resp.StatusCode, want)
	}
}

func doJSON(parent context.Context, method, target, token string, body any, stepTimeout time.Duration) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal request body (%s): %v", target, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		fatalf("build request (%s): %v", target, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read response (%s): %v", target, err)
	}
	return resp.StatusCode, data
}

func mustAttach(parent context.Context, name, baseURL, origin, token, wantSessionID string, stepTimeout time.Duration) *smokeStream {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/events/ws?token=" + url.QueryEscape(token)

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("attach %s: %v", name, err)
	}

	conn.SetReadLimit(maxReadBytes)

	s := &smokeStream{
		name:  name,
		conn:  conn,
		inbox: make(chan frame, 64),
		errCh: make(chan error, 1),
	}
	s.startReadLoop()

	hello := s.mustReadUntilKind(parent, "connected", stepTimeout)

	var p connectedData
	if err := json.Unmarshal(hello.Data, &p); err != nil {
		fatalf("unmarshal connected payload (%s): %v", name, err)
	}
	if p.SessionID != wantSessionID {
		fatalf("connected session_id mismatch (%s): got=%q want=%q", name, p.SessionID, wantSessionID)
	}

	return s
}

func (s *smokeStream) startReadLoop() {
	go func() {
		defer close(s.inbox)

		for {
			mt, data, err := s.conn.Read(context.Background())
			if err != nil {
				select {
				case s.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case s.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				select {
				case s.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}

			select {
			case s.inbox <- f:
			default:
				select {
				case s.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (s *smokeStream) mustReadUntilKind(parent context.Context, kind string, stepTimeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q frame (%s)", kind, s.name)
		case err := <-s.errCh:
			fatalf("read loop failed waiting for %q (%s): %v", kind, s.name, err)
		case f, ok := <-s.inbox:
			if !ok {
				fatalf("connection closed waiting for %q (%s)", kind, s.name)
			}
			if f.Kind == kind {
				return f
			}
		}
	}
}

func mustAssertLogoutAll(parent context.Context, s *smokeStream, stepTimeout time.Duration) {
	f := s.mustReadUntilKind(parent, "logout-all", stepTimeout)

	var p logoutAllData
	if err := json.Unmarshal(f.Data, &p); err != nil {
		fatalf("unmarshal logout-all payload (%s): %v", s.name, err)
	}
	if strings.TrimSpace(p.Message) == "" {
		fatalf("logout-all missing message (%s)", s.name)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		fatalf("logout-all bad timestamp (%s): %q: %v", s.name, p.Timestamp, err)
	}
}

func closeWS(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "smoke done")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "SMOKE FAIL: "+format+"\n", args...)
	os.Exit(1)
}
