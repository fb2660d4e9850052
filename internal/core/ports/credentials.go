package ports

import (
	"context"
	"time"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// CredentialMedium is one of the redundant storage backends holding session
// credentials. Reads return domain.ErrNoSession when the value is absent;
// the composing store decides how to fall back between mediums.
type CredentialMedium interface {
	Name() string
	WriteSession(ctx context.Context, sid, token string, user []byte, ttl time.Duration) error
	ReadToken(ctx context.Context, sid string) (string, error)
	ReadUser(ctx context.Context, sid string) ([]byte, error)
	// DeleteSession removes the token, user, and any legacy auxiliary keys
	// for the session. It must be idempotent.
	DeleteSession(ctx context.Context, sid string) error
}

// CredentialStore persists and retrieves sessions across both mediums.
type CredentialStore interface {
	// Save writes token and user to every medium. A failing medium is
	// logged and skipped; Save only fails when no medium accepted the write.
	Save(ctx context.Context, sid, token string, user *domain.User) error
	// Load returns the stored session, or domain.ErrNoSession when either
	// half is missing or the stored user fails to decode.
	Load(ctx context.Context, sid string) (*domain.Session, error)
	// Clear removes the session from every medium. Idempotent.
	Clear(ctx context.Context, sid string) error
	// IsPresent reports whether a usable token exists in any medium.
	IsPresent(ctx context.Context, sid string) bool
}

// ChangeSignal broadcasts credential mutations between gateway instances and
// dashboard tabs. Only the occurrence matters to subscribers; the payload is
// the session ID so listeners can scope their re-read.
type ChangeSignal interface {
	Publish(ctx context.Context, sid string) error
	Subscribe(ctx context.Context) (<-chan string, error)
}
