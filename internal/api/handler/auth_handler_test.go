package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/queuedesk/dashboard-gateway/internal/api/middleware"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

type stubAuthSvc struct {
	loginFn       func(ctx context.Context, in ports.LoginInput) (string, *domain.Session, error)
	logoutFn      func(ctx context.Context, sid string) error
	sessionFn     func(ctx context.Context, sid string) (*domain.Session, error)
	forcedLogouts []string
}

func (s *stubAuthSvc) Login(ctx context.Context, in ports.LoginInput) (string, *domain.Session, error) {
	return s.loginFn(ctx, in)
}

func (s *stubAuthSvc) Logout(ctx context.Context, sid string) error {
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, sid)
}

func (s *stubAuthSvc) ForceLogout(_ context.Context, sid, cause string) {
	s.forcedLogouts = append(s.forcedLogouts, sid+":"+cause)
}

func (s *stubAuthSvc) Session(ctx context.Context, sid string) (*domain.Session, error) {
	if s.sessionFn == nil {
		return nil, domain.ErrNoSession
	}
	return s.sessionFn(ctx, sid)
}

type stubSessionVerifier struct {
	result domain.ValidationResult
	err    error
	calls  int
}

func (s *stubSessionVerifier) Verify(context.Context, string, bool) (domain.ValidationResult, error) {
	s.calls++
	return s.result, s.err
}

type stubPermReader struct {
	perms domain.PermissionMap
}

func (s *stubPermReader) CurrentPermissions(context.Context, string) domain.PermissionMap {
	return s.perms
}

func (s *stubPermReader) HasPermission(_ context.Context, _, name string) bool {
	return s.perms[name]
}

type stubTracker struct {
	tracked []string
}

func (s *stubTracker) Track(_ context.Context, sid string) { s.tracked = append(s.tracked, sid) }

type stubExpiry struct {
	scheduled []string
}

func (s *stubExpiry) ScheduleForcedLogout(sid string) { s.scheduled = append(s.scheduled, sid) }

func testCookies() *middleware.CookieManager {
	return middleware.NewCookieManager("test-secret", time.Hour)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.CookieName {
			return cookie
		}
	}
	return nil
}

func TestAuthHandler_Login_Success(t *testing.T) {
	e := newEcho()
	user := &domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser}
	svc := &stubAuthSvc{
		loginFn: func(_ context.Context, in ports.LoginInput) (string, *domain.Session, error) {
			if in.Username != "alice" || in.Kind != ports.LoginRegular {
				t.Fatalf("unexpected input: %+v", in)
			}
			return "sid-1", &domain.Session{Token: "tok", User: user}, nil
		},
	}
	tracker := &stubTracker{}
	h := NewAuthHandler(svc, &stubSessionVerifier{}, &stubPermReader{}, testCookies())
	h.Tracker = tracker

	req := jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"secret"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	cookie := sessionCookie(t, rec)
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("expected a session cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie must be HttpOnly and SameSite=Strict: %+v", cookie)
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Authenticated || resp.User.Username != "alice" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if len(tracker.tracked) != 1 || tracker.tracked[0] != "sid-1" {
		t.Fatalf("session not tracked: %v", tracker.tracked)
	}
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	e := newEcho()
	svc := &stubAuthSvc{
		loginFn: func(context.Context, ports.LoginInput) (string, *domain.Session, error) {
			t.Fatalf("service must not be called on a validation failure")
			return "", nil, nil
		},
	}
	h := NewAuthHandler(svc, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	req := jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice"}`)
	rec := httptest.NewRecorder()
	err := h.Login(e.NewContext(req, rec))

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected a 400, got %v", err)
	}
}

func TestAuthHandler_Login_BadCredentials(t *testing.T) {
	e := newEcho()
	svc := &stubAuthSvc{
		loginFn: func(context.Context, ports.LoginInput) (string, *domain.Session, error) {
			return "", nil, domain.ErrInvalidCredentials
		},
	}
	h := NewAuthHandler(svc, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	req := jsonRequest(http.MethodPost, "/auth/login", `{"username":"a","password":"b"}`)
	rec := httptest.NewRecorder()
	err := h.Login(e.NewContext(req, rec))

	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if sessionCookie(t, rec) != nil {
		t.Fatalf("no cookie may be issued on a failed login")
	}
}

func TestAuthHandler_AdminLoginUsesAdminKind(t *testing.T) {
	e := newEcho()
	var gotKind ports.LoginKind
	svc := &stubAuthSvc{
		loginFn: func(_ context.Context, in ports.LoginInput) (string, *domain.Session, error) {
			gotKind = in.Kind
			return "sid", &domain.Session{Token: "t", User: &domain.User{ID: "u", Role: domain.RoleAdmin}}, nil
		},
	}
	h := NewAuthHandler(svc, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	req := jsonRequest(http.MethodPost, "/auth/admin/login", `{"username":"a","password":"b"}`)
	if err := h.AdminLogin(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gotKind != ports.LoginAdmin {
		t.Fatalf("expected admin kind, got %q", gotKind)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newEcho()
	var loggedOut []string
	svc := &stubAuthSvc{
		logoutFn: func(_ context.Context, sid string) error {
			loggedOut = append(loggedOut, sid)
			return nil
		},
	}
	h := NewAuthHandler(svc, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	req := jsonRequest(http.MethodPost, "/auth/logout", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("session_id", "sid-1")

	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(loggedOut) != 1 || loggedOut[0] != "sid-1" {
		t.Fatalf("service logout not called: %v", loggedOut)
	}

	cookie := sessionCookie(t, rec)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("cookie must be revoked: %+v", cookie)
	}
}

func TestAuthHandler_Logout_WithoutSessionStillClearsCookie(t *testing.T) {
	e := newEcho()
	svc := &stubAuthSvc{
		logoutFn: func(context.Context, string) error {
			t.Fatalf("no session, nothing to log out remotely")
			return nil
		},
	}
	h := NewAuthHandler(svc, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	rec := httptest.NewRecorder()
	if err := h.Logout(e.NewContext(jsonRequest(http.MethodPost, "/auth/logout", ""), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if cookie := sessionCookie(t, rec); cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("cookie must still be revoked: %+v", cookie)
	}
}

func TestAuthHandler_Session_NoCookie(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthSvc{}, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	err := h.Session(e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/session", nil), httptest.NewRecorder()))
	if !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestAuthHandler_Session_Plain(t *testing.T) {
	e := newEcho()
	user := &domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser}
	verifier := &stubSessionVerifier{}
	svc := &stubAuthSvc{
		sessionFn: func(context.Context, string) (*domain.Session, error) {
			return &domain.Session{Token: "tok", User: user}, nil
		},
	}
	h := NewAuthHandler(svc, verifier, &stubPermReader{}, testCookies())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/session", nil), rec)
	c.Set("session_id", "sid-1")

	if err := h.Session(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if verifier.calls != 0 {
		t.Fatalf("plain session read must not verify")
	}
}

func TestAuthHandler_Session_RevalidateInvalid(t *testing.T) {
	e := newEcho()
	svc := &stubAuthSvc{
		sessionFn: func(context.Context, string) (*domain.Session, error) {
			return &domain.Session{Token: "tok", User: &domain.User{ID: "u1", Role: domain.RoleUser}}, nil
		},
	}
	verifier := &stubSessionVerifier{result: domain.ValidationResult{Valid: false}}
	h := NewAuthHandler(svc, verifier, &stubPermReader{}, testCookies())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/session?revalidate=1", nil), rec)
	c.Set("session_id", "sid-1")

	err := h.Session(c)
	if !errors.Is(err, domain.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if len(svc.forcedLogouts) != 1 || svc.forcedLogouts[0] != "sid-1:invalid_session" {
		t.Fatalf("expected a forced logout, got %v", svc.forcedLogouts)
	}
	if cookie := sessionCookie(t, rec); cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("cookie must be revoked, got %+v", cookie)
	}
}

func TestAuthHandler_Session_RevalidateLicenseExpired(t *testing.T) {
	e := newEcho()
	svc := &stubAuthSvc{
		sessionFn: func(context.Context, string) (*domain.Session, error) {
			return &domain.Session{Token: "tok", User: &domain.User{ID: "u1", Role: domain.RoleAdmin}}, nil
		},
	}
	verifier := &stubSessionVerifier{result: domain.ValidationResult{Valid: true, LicenseExpired: true}}
	expiry := &stubExpiry{}
	h := NewAuthHandler(svc, verifier, &stubPermReader{}, testCookies())
	h.Expiry = expiry

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/session?revalidate=1", nil), httptest.NewRecorder())
	c.Set("session_id", "sid-1")

	if err := h.Session(c); !errors.Is(err, domain.ErrLicenseExpired) {
		t.Fatalf("expected ErrLicenseExpired, got %v", err)
	}
	// Expiry detected here must end the session just like the guard path
	// does, not merely report it.
	if len(expiry.scheduled) != 1 || expiry.scheduled[0] != "sid-1" {
		t.Fatalf("forced logout not scheduled: %v", expiry.scheduled)
	}
	if len(svc.forcedLogouts) != 0 {
		t.Fatalf("destruction must wait for the grace period, got %v", svc.forcedLogouts)
	}
}

// A login can complete while the revalidation round trip is in flight. The
// stale result must not tear down the new credentials.
func TestAuthHandler_Session_RevalidateRacedByLogin(t *testing.T) {
	e := newEcho()
	calls := 0
	newUser := &domain.User{ID: "u2", Username: "bob", Role: domain.RoleUser}
	svc := &stubAuthSvc{
		sessionFn: func(context.Context, string) (*domain.Session, error) {
			calls++
			if calls == 1 {
				return &domain.Session{Token: "tok-old", User: &domain.User{ID: "u1", Role: domain.RoleUser}}, nil
			}
			return &domain.Session{Token: "tok-new", User: newUser}, nil
		},
	}
	verifier := &stubSessionVerifier{result: domain.ValidationResult{Valid: false}}
	h := NewAuthHandler(svc, verifier, &stubPermReader{}, testCookies())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/session?revalidate=1", nil), rec)
	c.Set("session_id", "sid-1")

	if err := h.Session(c); err != nil {
		t.Fatalf("stale result must not fail the request: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.forcedLogouts) != 0 {
		t.Fatalf("fresh credentials must survive a stale invalid result")
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Authenticated || resp.User.ID != "u2" {
		t.Fatalf("expected the fresh session in the response: %+v", resp)
	}
}

func TestAuthHandler_Permissions(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthSvc{}, &stubSessionVerifier{},
		&stubPermReader{perms: domain.PermissionMap{"canCallTickets": true}}, testCookies())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/permissions", nil), rec)
	c.Set("session_id", "sid-1")

	if err := h.Permissions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var perms map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &perms); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !perms["canCallTickets"] {
		t.Fatalf("unexpected permissions: %v", perms)
	}
}

func TestAuthHandler_Permissions_EmptyMapNotNull(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthSvc{}, &stubSessionVerifier{}, &stubPermReader{}, testCookies())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/permissions", nil), rec)
	c.Set("session_id", "sid-1")

	if err := h.Permissions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("expected an empty object, got %s", rec.Body.String())
	}
}
