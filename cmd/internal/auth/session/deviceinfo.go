package session

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// DeviceFromRequest derives the Device record stored alongside a session.
func DeviceFromRequest(r *http.Request, trustProxy bool) Device {
	ua := strings.TrimSpace(r.UserAgent())
	return Device{
		Info:      ClassifyUserAgent(ua),
		IPAddress: clientIP(r, trustProxy),
		UserAgent: ua,
	}
}

// ClassifyUserAgent maps a raw User-Agent to a short human label for the
// device-list UI ("Windows PC", "Mobile Device", ...).
func ClassifyUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(raw)
	if parsed.Mobile() {
		if isTablet(raw) {
			return "Tablet"
		}
		return "Mobile Device"
	}
	if isTablet(raw) {
		return "Tablet"
	}

	switch {
	case strings.HasPrefix(parsed.OSInfo().Name, "Windows"):
		return "Windows PC"
	case strings.HasPrefix(parsed.OSInfo().Name, "Mac"), parsed.OSInfo().Name == "Intel Mac OS X":
		return "Mac"
	case strings.Contains(strings.ToLower(parsed.Platform()), "linux"),
		strings.Contains(strings.ToLower(parsed.OSInfo().Name), "linux"):
		return "Linux PC"
	default:
		return "Unknown Device"
	}
}

func isTablet(raw string) bool {
	lower := strings.ToLower(raw)
	for _, kw := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// clientIP extracts the caller's IP. Proxy headers are honored only when the
// deployment explicitly trusts its proxy tier.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
