package session

import (
	"errors"
	"testing"
	"time"
)

func testTokenConfig() Config {
	return Config{
		Issuer:         "deadbolt-test",
		AccessTokenTTL: time.Hour,
		ClockSkew:      30 * time.Second,
		SigningKey:     "0123456789abcdef0123456789abcdef",
	}
}

func TestJWTManagerRoundTrip(t *testing.T) {
	mgr, err := NewJWTManager(testTokenConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, exp, err := mgr.Issue("user-1", "sess-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("exp = %v, want %v", exp, now.Add(time.Hour))
	}

	claims, err := mgr.Verify(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != "sess-1" {
		t.Fatalf("claims = %+v, want user-1/sess-1", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("claims.ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestJWTManagerRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mgr, err := NewJWTManager(testTokenConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	token, _, err := mgr.Issue("user-1", "sess-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	otherKey := testTokenConfig()
	otherKey.SigningKey = "ffffffffffffffffffffffffffffffff"
	otherMgr, err := NewJWTManager(otherKey)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	otherIssuer := testTokenConfig()
	otherIssuer.Issuer = "somebody-else"
	otherIssuerMgr, err := NewJWTManager(otherIssuer)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	cases := []struct {
		name  string
		mgr   TokenManager
		token string
		now   time.Time
	}{
		{"garbage", mgr, "not.a.jwt", now},
		{"wrong key", otherMgr, token, now},
		{"wrong issuer", otherIssuerMgr, token, now},
		{"expired", mgr, token, now.Add(2 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.mgr.Verify(tc.token, tc.now); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTManagerClockSkew(t *testing.T) {
	mgr, err := NewJWTManager(testTokenConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, exp, err := mgr.Issue("user-1", "sess-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Just past expiry but inside the leeway window.
	if _, err := mgr.Verify(token, exp.Add(10*time.Second)); err != nil {
		t.Fatalf("Verify inside skew window: %v", err)
	}
	// Well past the window.
	if _, err := mgr.Verify(token, exp.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify past skew window = %v, want ErrInvalidToken", err)
	}
}

func TestNewJWTManagerConfig(t *testing.T) {
	short := testTokenConfig()
	short.SigningKey = "too-short"
	if _, err := NewJWTManager(short); !errors.Is(err, ErrConfig) {
		t.Fatalf("short key: err = %v, want ErrConfig", err)
	}

	noIssuer := testTokenConfig()
	noIssuer.Issuer = ""
	if _, err := NewJWTManager(noIssuer); !errors.Is(err, ErrConfig) {
		t.Fatalf("empty issuer: err = %v, want ErrConfig", err)
	}
}
