package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
	"github.com/queuedesk/dashboard-gateway/internal/core/state"
)

// remoteLogoutTimeout bounds the best-effort logout call to the authority.
const remoteLogoutTimeout = 3 * time.Second

// Tracker is told when a session is destroyed so background refresh work for
// it stops. The permission poller implements it.
type Tracker interface {
	Untrack(sid string)
}

// AuthService owns the gateway session lifecycle.
type AuthService struct {
	authority ports.Authority
	store     ports.CredentialStore
	verifier  *Verifier
	audit     ports.AuditRecorder
	states    *state.Registry
	log       zerolog.Logger

	// Tracker, when set, is notified on every destruction path, including
	// forced ones.
	Tracker Tracker
}

func NewAuthService(
	authority ports.Authority,
	store ports.CredentialStore,
	verifier *Verifier,
	audit ports.AuditRecorder,
	states *state.Registry,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		authority: authority,
		store:     store,
		verifier:  verifier,
		audit:     audit,
		states:    states,
		log:       log,
	}
}

// Login forwards the credentials to the authority's role-specific endpoint
// and, on success, creates a gateway session holding the returned token/user
// pair.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (string, *domain.Session, error) {
	if in.Username == "" || in.Password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	result, err := s.authority.Login(ctx, in)
	if err != nil {
		return "", nil, err
	}
	if result == nil || result.User == nil || domain.IsBlankToken(result.Token) {
		return "", nil, domain.ErrInvalidCredentials
	}

	sid := uuid.NewString()
	if err := s.store.Save(ctx, sid, result.Token, result.User); err != nil {
		return "", nil, err
	}

	if s.states != nil {
		s.states.For(sid).SetCredentials(result.User, result.Token)
	}

	s.record(&domain.AuthEvent{
		SessionID: sid,
		UserID:    result.User.ID,
		Action:    domain.AuditLogin,
	})

	s.log.Info().
		Str("session_id", sid).
		Str("role", string(result.User.Role)).
		Msg("session created")

	return sid, &domain.Session{Token: result.Token, User: result.User}, nil
}

// Logout destroys the session. The remote logout call is attempted first but
// is purely advisory: the local clear happens regardless of its outcome.
func (s *AuthService) Logout(ctx context.Context, sid string) error {
	sess, err := s.store.Load(ctx, sid)
	if err == nil && sess != nil {
		notifyCtx, cancel := context.WithTimeout(ctx, remoteLogoutTimeout)
		if remoteErr := s.authority.Logout(notifyCtx, sess.Token); remoteErr != nil {
			s.log.Warn().Err(remoteErr).Str("session_id", sid).
				Msg("remote logout failed, clearing locally anyway")
		}
		cancel()
		s.verifier.Forget(sess.Token)
	}

	if err := s.store.Clear(ctx, sid); err != nil {
		return err
	}
	if s.states != nil {
		s.states.Drop(sid)
	}
	if s.Tracker != nil {
		s.Tracker.Untrack(sid)
	}

	userID := ""
	if sess != nil && sess.User != nil {
		userID = sess.User.ID
	}
	s.record(&domain.AuthEvent{
		SessionID: sid,
		UserID:    userID,
		Action:    domain.AuditLogout,
	})
	return nil
}

// ForceLogout clears a session the gateway decided to terminate (invalid
// token, expired license) and records the cause. No remote call is made: the
// authority already rejected the token.
func (s *AuthService) ForceLogout(ctx context.Context, sid, cause string) {
	sess, _ := s.store.Load(ctx, sid)
	if err := s.store.Clear(ctx, sid); err != nil {
		s.log.Error().Err(err).Str("session_id", sid).Msg("forced clear failed")
	}
	if sess != nil {
		s.verifier.Forget(sess.Token)
	}
	if s.states != nil {
		s.states.Drop(sid)
	}
	if s.Tracker != nil {
		s.Tracker.Untrack(sid)
	}

	userID := ""
	if sess != nil && sess.User != nil {
		userID = sess.User.ID
	}
	s.record(&domain.AuthEvent{
		SessionID: sid,
		UserID:    userID,
		Action:    domain.AuditForcedLogout,
		Cause:     cause,
	})
}

// Session returns the stored session for sid.
func (s *AuthService) Session(ctx context.Context, sid string) (*domain.Session, error) {
	return s.store.Load(ctx, sid)
}

func (s *AuthService) record(ev *domain.AuthEvent) {
	if s.audit == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()
	s.audit.Record(ev)
}
