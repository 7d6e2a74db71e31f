package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/ratelimit"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	router *gin.Engine
	svc    *service.UserService
}

func newTestApp(t *testing.T, loginLimit int) *testApp {
	t.Helper()

	tokens := auth.NewManager("router-test-secret", 15*time.Minute, 24*time.Hour)
	prom := observability.NewProm(observability.NewRegistry())

	svc := service.NewUserService(service.Deps{
		Users:    memory.NewUsersRepo(),
		Sessions: memory.NewSessionsRepo(),
		Hasher:   security.NewBcryptHasher(bcrypt.MinCost),
		IDs:      security.NewULIDGenerator(),
		Tokens:   tokens,
		Metrics:  prom,
	})

	r := NewRouter(RouterDeps{
		Env:          "test",
		ServiceName:  "accounthub-test",
		Users:        svc,
		Tokens:       tokens,
		LoginLimiter: ratelimit.NewMemory(loginLimit, time.Minute),
		Prom:         prom,
		MaxBodyBytes: 1 << 20,
	})

	return &testApp{router: r, svc: svc}
}

func (a *testApp) do(method, path, body, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()

	w := a.do(http.MethodPost, "/users/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.AccessToken == "" {
		t.Fatalf("login body %s: %v", w.Body.String(), err)
	}

	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return resp.AccessToken, c
		}
	}
	t.Fatalf("no refresh cookie in login response")
	return "", nil
}

func TestUserLifecycle(t *testing.T) {
	app := newTestApp(t, 100)

	w := app.do(http.MethodPost, "/users", `{"name":"Ann","email":"ann@x.com","password":"secret123","memo":"hi"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret123") {
		t.Fatalf("password echoed: %s", w.Body.String())
	}

	if w := app.do(http.MethodPost, "/users", `{"name":"Ann2","email":"ANN@x.com","password":"secret123"}`, ""); w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", w.Code)
	}

	token, _ := app.login(t, "ann@x.com", "secret123")

	if w := app.do(http.MethodGet, "/users/me", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("me without token = %d, want 401", w.Code)
	}

	w = app.do(http.MethodPut, "/users", `{"name":"Annie"}`, token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"Annie"`) {
		t.Fatalf("update status = %d body=%s", w.Code, w.Body.String())
	}

	w = app.do(http.MethodGet, "/users/me", "", token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"memo":"hi"`) {
		t.Fatalf("me status = %d body=%s", w.Code, w.Body.String())
	}

	if w := app.do(http.MethodDelete, "/users", "", token); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := app.do(http.MethodDelete, "/users", "", token); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", w.Code)
	}
}

func TestListUsers_AdminOnly(t *testing.T) {
	app := newTestApp(t, 100)
	ctx := context.Background()

	if _, err := app.svc.CreateUser(ctx, service.CreateUserInput{Name: "Root", Email: "root@x.com", Password: "rootpass1", Role: user.RoleAdmin}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if _, err := app.svc.CreateUser(ctx, service.CreateUserInput{Name: "Bob", Email: "bob@x.com", Password: "bobpass12"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	userToken, _ := app.login(t, "bob@x.com", "bobpass12")
	if w := app.do(http.MethodGet, "/users", "", userToken); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin list = %d, want 403", w.Code)
	}

	adminToken, _ := app.login(t, "root@x.com", "rootpass1")
	w := app.do(http.MethodGet, "/users?page=1&items_per_page=1", "", adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list = %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		TotalCount int               `json:"totalCount"`
		Users      []json.RawMessage `json:"users"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalCount != 2 || len(resp.Users) != 1 {
		t.Fatalf("unexpected page %+v", resp)
	}
}

func TestLoginThrottle(t *testing.T) {
	app := newTestApp(t, 2)

	for i := 0; i < 2; i++ {
		if w := app.do(http.MethodPost, "/users/login", `{"email":"x@x.com","password":"whatever1"}`, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i+1, w.Code)
		}
	}

	w := app.do(http.MethodPost, "/users/login", `{"email":"x@x.com","password":"whatever1"}`, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	m := app.do(http.MethodGet, "/metrics", "", "")
	if !strings.Contains(m.Body.String(), "accounthub_auth_logins_throttled_total 1") {
		t.Fatalf("throttle metric not exported")
	}
}

func TestRefreshAndLogout(t *testing.T) {
	app := newTestApp(t, 100)

	if w := app.do(http.MethodPost, "/users", `{"name":"Cat","email":"cat@x.com","password":"catpass12"}`, ""); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	_, cookie := app.login(t, "cat@x.com", "catpass12")

	w := app.do(http.MethodPost, "/users/refresh", "", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d body=%s", w.Code, w.Body.String())
	}

	// the old token was rotated out
	if w := app.do(http.MethodPost, "/users/refresh", "", "", cookie); w.Code != http.StatusUnauthorized {
		t.Fatalf("reuse of rotated token = %d, want 401", w.Code)
	}

	var rotated *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			rotated = c
		}
	}
	if rotated == nil {
		t.Fatalf("no rotated cookie")
	}

	for i := 0; i < 2; i++ {
		if w := app.do(http.MethodPost, "/users/logout", "", "", rotated); w.Code != http.StatusNoContent {
			t.Fatalf("logout #%d = %d", i+1, w.Code)
		}
	}

	if w := app.do(http.MethodPost, "/users/refresh", "", "", rotated); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", w.Code)
	}
}

func TestPublicEndpoints(t *testing.T) {
	app := newTestApp(t, 100)

	for _, path := range []string{"/healthz", "/readyz", "/docs", "/docs/openapi.yaml", "/metrics"} {
		if w := app.do(http.MethodGet, path, "", ""); w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, w.Code)
		}
	}

	w := app.do(http.MethodGet, "/healthz", "", "")
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestCreateUser_RequiresJSON(t *testing.T) {
	app := newTestApp(t, 100)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader("name=ann"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}
}
