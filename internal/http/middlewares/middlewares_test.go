package middlewares

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/apierror"
	"github.com/geocoder89/accounthub/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(string) (*auth.Claims, error) {
	return f.claims, f.err
}

func okHandler(c *gin.Context) { c.Status(http.StatusOK) }

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelopeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var env apierror.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("not an error envelope: %s", w.Body.String())
	}
	return env.Error.Code
}

func TestRequireAuthAndRole(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   fakeVerifier
		wantStatus int
		wantCode   string
		wantChall  string
	}{
		{name: "no header", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized", wantChall: `Bearer realm="accounthub"`},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{
			name:       "bad token",
			header:     "Bearer junk",
			verifier:   fakeVerifier{err: errors.New("invalid token")},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthorized",
			wantChall:  `Bearer realm="accounthub", error="invalid_token"`,
		},
		{
			name:       "lowercase scheme",
			header:     "bearer t",
			verifier:   fakeVerifier{claims: &auth.Claims{UserID: "u3", Role: string(user.RoleAdmin)}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "plain user",
			header:     "Bearer t",
			verifier:   fakeVerifier{claims: &auth.Claims{UserID: "u1", Role: string(user.RoleUser)}},
			wantStatus: http.StatusForbidden,
			wantCode:   "forbidden",
		},
		{
			name:       "admin",
			header:     "Bearer t",
			verifier:   fakeVerifier{claims: &auth.Claims{UserID: "u2", Role: string(user.RoleAdmin)}},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(tt.verifier)

			r := gin.New()
			r.GET("/users", m.RequireAuth(), m.RequireRole(user.RoleAdmin), okHandler)

			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := serve(r, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" && envelopeCode(t, w) != tt.wantCode {
				t.Fatalf("code = %q, want %q", envelopeCode(t, w), tt.wantCode)
			}
			if tt.wantChall != "" && w.Header().Get("WWW-Authenticate") != tt.wantChall {
				t.Fatalf("challenge = %q, want %q", w.Header().Get("WWW-Authenticate"), tt.wantChall)
			}
		})
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.POST("/users", RequireJSON(), okHandler)

	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{name: "json", body: `{}`, contentType: "application/json", want: http.StatusOK},
		{name: "json with charset", body: `{}`, contentType: "application/json; charset=utf-8", want: http.StatusOK},
		{name: "form", body: "a=b", contentType: "application/x-www-form-urlencoded", want: http.StatusUnsupportedMediaType},
		{name: "missing type", body: `{}`, want: http.StatusUnsupportedMediaType},
		{name: "no body", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			if w := serve(r, req); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMaxBodyBytes_RejectsDeclaredOversize(t *testing.T) {
	r := gin.New()
	r.POST("/users", MaxBodyBytes(8), okHandler)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"name":"too long"}`)))
	if w.Code != http.StatusRequestEntityTooLarge || envelopeCode(t, w) != "payload_too_large" {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/users/me", okHandler)

	preflight := httptest.NewRequest(http.MethodOptions, "/users/me", nil)
	preflight.Header.Set("Origin", "https://app.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := serve(r, preflight)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" || w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("missing allow headers: %v", w.Header())
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatalf("Authorization must be allowed: %v", w.Header())
	}

	foreign := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	foreign.Header.Set("Origin", "https://evil.example.com")

	w = serve(r, foreign)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin must not be allowed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(true))
	r.POST("/users/login", okHandler)
	r.GET("/users", okHandler)
	r.GET("/docs", okHandler)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/users/login", nil))
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("token responses must not be stored: %q", w.Header().Get("Cache-Control"))
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("hsts header missing")
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/users", nil))
	if w.Header().Get("Cache-Control") != "private, no-cache" {
		t.Fatalf("listing must revalidate: %q", w.Header().Get("Cache-Control"))
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if !strings.Contains(w.Header().Get("Content-Security-Policy"), "unpkg.com") {
		t.Fatalf("docs need the relaxed policy")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	limited := 0

	r := gin.New()
	r.POST("/users/login", RateLimit(ratelimit.NewMemory(1, time.Minute), KeyByIP, func() { limited++ }), okHandler)

	if w := serve(r, httptest.NewRequest(http.MethodPost, "/users/login", nil)); w.Code != http.StatusOK {
		t.Fatalf("first attempt = %d", w.Code)
	}

	w := serve(r, httptest.NewRequest(http.MethodPost, "/users/login", nil))
	if w.Code != http.StatusTooManyRequests || envelopeCode(t, w) != "rate_limited" {
		t.Fatalf("second attempt = %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") != "60" || limited != 1 {
		t.Fatalf("retry-after=%q limited=%d", w.Header().Get("Retry-After"), limited)
	}

	open := gin.New()
	open.POST("/users/login", RateLimit(failingLimiter{}, KeyByIP, nil), okHandler)
	if w := serve(open, httptest.NewRequest(http.MethodPost, "/users/login", nil)); w.Code != http.StatusOK {
		t.Fatalf("limiter failure should fail open, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/users/me", func(c *gin.Context) {
		id, _ := c.Get(CtxRequestID)
		c.String(http.StatusOK, "%v", id)
	})

	tests := []struct {
		name     string
		inbound  string
		wantKept bool
	}{
		{name: "kept", inbound: "req-123", wantKept: true},
		{name: "missing"},
		{name: "too long", inbound: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "control chars", inbound: "req\x01id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.inbound != "" {
				req.Header.Set(requestIDHeader, tt.inbound)
			}

			w := serve(r, req)
			got := w.Header().Get(requestIDHeader)

			if got == "" || w.Body.String() != got {
				t.Fatalf("header %q and context %q must agree", got, w.Body.String())
			}
			if (got == tt.inbound) != tt.wantKept {
				t.Fatalf("inbound %q kept=%v, want %v", tt.inbound, got == tt.inbound, tt.wantKept)
			}
		})
	}
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/healthz", okHandler)
	r.GET("/users/me", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("health checks should log at debug, got %s", buf.String())
	}

	serve(r, httptest.NewRequest(http.MethodGet, "/users/me", nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["route"] != "/users/me" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
