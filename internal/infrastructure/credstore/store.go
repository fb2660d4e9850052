// Package credstore composes the two redundant credential mediums into the
// single store the rest of the gateway talks to. The primary medium is fast
// storage (Redis); the secondary (Mongo) keeps the session recoverable when
// the primary is unavailable. Either medium failing a write is logged and
// tolerated; only both failing surfaces to the caller.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

const defaultTTL = 7 * 24 * time.Hour

// Store is the dual-medium credential store.
type Store struct {
	mediums []ports.CredentialMedium
	signal  ports.ChangeSignal
	ttl     time.Duration
	log     zerolog.Logger
}

// New builds a Store over the given mediums, ordered primary first. A nil
// signal disables change broadcasting; a non-positive ttl uses the 7-day
// default.
func New(mediums []ports.CredentialMedium, signal ports.ChangeSignal, ttl time.Duration, log zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{mediums: mediums, signal: signal, ttl: ttl, log: log}
}

// Save writes the token/user pair to every medium; token and user always
// travel together so no medium ever holds half a session. A medium that
// rejects the write is logged and skipped. The change signal fires once after
// at least one medium accepted.
func (s *Store) Save(ctx context.Context, sid, token string, user *domain.User) error {
	if domain.IsBlankToken(token) || user == nil {
		return domain.ErrNoSession
	}

	encoded, err := json.Marshal(user)
	if err != nil {
		return err
	}

	var wrote bool
	var lastErr error
	for _, m := range s.mediums {
		if err := m.WriteSession(ctx, sid, token, encoded, s.ttl); err != nil {
			lastErr = err
			s.log.Warn().Err(err).Str("medium", m.Name()).Str("session_id", sid).
				Msg("credential write failed")
			continue
		}
		wrote = true
	}
	if !wrote {
		return lastErr
	}

	s.publish(ctx, sid)
	return nil
}

// Load reads the token and the user independently, each falling back through
// the mediums in order. Missing either half, or a stored user that fails to
// decode, yields ErrNoSession: corruption degrades to absence, it is never a
// parse error for the caller.
func (s *Store) Load(ctx context.Context, sid string) (*domain.Session, error) {
	token := s.readToken(ctx, sid)
	if domain.IsBlankToken(token) {
		return nil, domain.ErrNoSession
	}

	raw := s.readUser(ctx, sid)
	if raw == nil {
		return nil, domain.ErrNoSession
	}

	user, err := domain.DecodeUser(raw)
	if err != nil {
		s.log.Warn().Str("session_id", sid).Msg("stored user is corrupt, treating session as absent")
		return nil, domain.ErrNoSession
	}

	return &domain.Session{Token: token, User: user}, nil
}

// Clear removes the session from every medium. Idempotent: clearing an
// already-empty session succeeds. Read or delete errors are logged, not
// returned, unless every medium failed.
func (s *Store) Clear(ctx context.Context, sid string) error {
	var cleared bool
	var lastErr error
	for _, m := range s.mediums {
		if err := m.DeleteSession(ctx, sid); err != nil {
			lastErr = err
			s.log.Warn().Err(err).Str("medium", m.Name()).Str("session_id", sid).
				Msg("credential clear failed")
			continue
		}
		cleared = true
	}
	if !cleared {
		return lastErr
	}

	s.publish(ctx, sid)
	return nil
}

// IsPresent reports whether any medium holds a usable token for the session.
func (s *Store) IsPresent(ctx context.Context, sid string) bool {
	return !domain.IsBlankToken(s.readToken(ctx, sid))
}

func (s *Store) readToken(ctx context.Context, sid string) string {
	for _, m := range s.mediums {
		token, err := m.ReadToken(ctx, sid)
		if err != nil {
			if !errors.Is(err, domain.ErrNoSession) {
				s.log.Warn().Err(err).Str("medium", m.Name()).Str("session_id", sid).
					Msg("token read failed")
			}
			continue
		}
		if !domain.IsBlankToken(token) {
			return token
		}
	}
	return ""
}

func (s *Store) readUser(ctx context.Context, sid string) []byte {
	for _, m := range s.mediums {
		raw, err := m.ReadUser(ctx, sid)
		if err != nil {
			if !errors.Is(err, domain.ErrNoSession) {
				s.log.Warn().Err(err).Str("medium", m.Name()).Str("session_id", sid).
					Msg("user read failed")
			}
			continue
		}
		if len(raw) > 0 {
			return raw
		}
	}
	return nil
}

func (s *Store) publish(ctx context.Context, sid string) {
	if s.signal == nil {
		return
	}
	if err := s.signal.Publish(ctx, sid); err != nil {
		s.log.Warn().Err(err).Str("session_id", sid).Msg("change signal publish failed")
	}
}
