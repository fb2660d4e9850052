package ports

import (
	"context"
	"time"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// LoginKind selects which of the authority's role-specific login endpoints a
// credential pair is sent to.
type LoginKind string

const (
	LoginRegular    LoginKind = "regular"
	LoginAdmin      LoginKind = "admin"
	LoginSuperAdmin LoginKind = "super_admin"
)

// LoginInput carries one login attempt.
type LoginInput struct {
	Username string
	Password string
	Kind     LoginKind
}

// LoginResult is the authority's answer to a successful login.
type LoginResult struct {
	Token string
	User  *domain.User
}

// TicketCall is the authority's answer to a call-next-ticket request. The
// assigned counter is authoritative and may differ from the optimistic value
// the dashboard displayed first.
type TicketCall struct {
	TicketNumber string    `json:"ticket_number"`
	Counter      string    `json:"counter"`
	ServiceID    string    `json:"service_id"`
	CalledAt     time.Time `json:"called_at"`
}

// Authority is the remote queue-management backend that owns users, licenses,
// and tickets. The gateway never decides credential validity itself.
type Authority interface {
	// Verify asks whether the token is still accepted. Implementations
	// return a network or decode error as-is; policy (fail-closed) lives in
	// the session verifier.
	Verify(ctx context.Context, token string) (domain.ValidationResult, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	// Logout is best-effort: callers ignore the result for control flow.
	Logout(ctx context.Context, token string) error
	// CurrentUser fetches the fresh user record, including permissions.
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
	CallNextTicket(ctx context.Context, token, serviceID string) (*TicketCall, error)
}
