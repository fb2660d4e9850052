package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

func TestClient_Verify_Valid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Fatalf("missing bearer header")
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"license_expired": false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	res, err := c.Verify(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("verify returned error: %v", err)
	}
	if !res.Valid || res.LicenseExpired {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClient_Verify_LicenseExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"license_expired": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	res, err := c.Verify(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("verify returned error: %v", err)
	}
	if !res.Valid || !res.LicenseExpired {
		t.Fatalf("expected valid+expired, got %+v", res)
	}
}

func TestClient_Verify_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	res, err := c.Verify(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("an explicit rejection is not an error: %v", err)
	}
	if res.Valid {
		t.Fatalf("rejected token must be invalid")
	}
}

func TestClient_Verify_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	if _, err := c.Verify(context.Background(), "tok-1"); err == nil {
		t.Fatalf("expected a transport error")
	}
}

func TestClient_Login_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/admin/login" {
			t.Fatalf("admin login must hit the admin endpoint, got %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "secret" {
			t.Fatalf("unexpected payload: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"token":   "tok-1",
			"user": map[string]any{
				"id": "u1", "username": "alice", "role": "admin",
				"permissions": `{"canViewReports":true}`,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	res, err := c.Login(context.Background(), ports.LoginInput{
		Username: "alice", Password: "secret", Kind: ports.LoginAdmin,
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}
	if res.Token != "tok-1" || res.User.Role != domain.RoleAdmin {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.User.Permissions["canViewReports"] {
		t.Fatalf("double-encoded permissions not parsed")
	}
}

func TestClient_Login_KindSelectsEndpoint(t *testing.T) {
	var hit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"token":   "tok",
			"user":    map[string]any{"id": "u1", "role": "super_admin"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	if _, err := c.Login(context.Background(), ports.LoginInput{Username: "root", Password: "x", Kind: ports.LoginSuperAdmin}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if hit != "/auth/internal/sa-login" {
		t.Fatalf("super admin login hit %s", hit)
	}
}

func TestClient_Login_BadCredentials(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(srv.URL, time.Second, zerolog.Nop())
		_, err := c.Login(context.Background(), ports.LoginInput{Username: "a", Password: "b"})
		srv.Close()
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("status %d: expected ErrInvalidCredentials, got %v", status, err)
		}
	}
}

func TestClient_Login_SuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "account locked"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	if _, err := c.Login(context.Background(), ports.LoginInput{Username: "a", Password: "b"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestClient_Logout_ReturnsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/logout" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	if err := c.Logout(context.Background(), "tok"); err != nil {
		t.Fatalf("logout: %v", err)
	}

	srv.Close()
	if err := c.Logout(context.Background(), "tok"); err == nil {
		t.Fatalf("expected an error for the caller to log")
	}
}

func TestClient_CurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "u1", "username": "alice", "role": "receptionist",
			"permissions": map[string]bool{"canCallTickets": true},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	user, err := c.CurrentUser(context.Background(), "tok")
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.Role != domain.RoleReceptionist || !user.Permissions["canCallTickets"] {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestClient_CurrentUser_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	if _, err := c.CurrentUser(context.Background(), "tok"); !errors.Is(err, domain.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestClient_CallNextTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tickets/next" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["service_id"] != "svc-7" {
			t.Fatalf("unexpected payload: %v", body)
		}
		_ = json.NewEncoder(w).Encode(ports.TicketCall{
			TicketNumber: "A042", Counter: "3", ServiceID: "svc-7",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zerolog.Nop())
	call, err := c.CallNextTicket(context.Background(), "tok", "svc-7")
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if call.TicketNumber != "A042" || call.Counter != "3" {
		t.Fatalf("unexpected call: %+v", call)
	}
}
