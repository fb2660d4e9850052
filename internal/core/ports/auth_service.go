package ports

import (
	"context"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// SessionVerifier re-validates a held token against the authority, applying
// the cool-down window. A call inside the window returns the cached result
// unless force is set.
type SessionVerifier interface {
	Verify(ctx context.Context, token string, force bool) (domain.ValidationResult, error)
}

// AuthService owns the session lifecycle: login creates a gateway session,
// logout destroys it (locally guaranteed, remotely best-effort).
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (sid string, sess *domain.Session, err error)
	Logout(ctx context.Context, sid string) error
	// ForceLogout destroys a session the gateway invalidated itself; cause
	// lands in the audit trail.
	ForceLogout(ctx context.Context, sid, cause string)
	Session(ctx context.Context, sid string) (*domain.Session, error)
}

// PermissionReader resolves cached permission flags without touching the
// network.
type PermissionReader interface {
	CurrentPermissions(ctx context.Context, sid string) domain.PermissionMap
	HasPermission(ctx context.Context, sid, name string) bool
}

// AuditRepository appends auth events to the audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, ev *domain.AuthEvent) error
}

// AuditRecorder accepts auth events for asynchronous persistence. Recording
// is fire-and-forget: callers never block on the trail.
type AuditRecorder interface {
	Record(ev *domain.AuthEvent)
}
