package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/api/metrics"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
	"github.com/queuedesk/dashboard-gateway/internal/core/state"
)

// defaultPollInterval is how often the poller re-reads cached permissions.
const defaultPollInterval = 5 * time.Second

// PermissionService resolves permission flags from the credential store. It
// never contacts the network: it only sees what some other flow has already
// cached.
type PermissionService struct {
	store ports.CredentialStore
	log   zerolog.Logger
}

func NewPermissionService(store ports.CredentialStore, log zerolog.Logger) *PermissionService {
	return &PermissionService{store: store, log: log}
}

// CurrentPermissions returns the cached permission map for a session, or nil
// when the session is absent or its stored user is corrupt. Failures degrade,
// they are never surfaced.
func (p *PermissionService) CurrentPermissions(ctx context.Context, sid string) domain.PermissionMap {
	sess, err := p.store.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, domain.ErrNoSession) {
			p.log.Warn().Err(err).Str("session_id", sid).Msg("permission read failed")
		}
		return nil
	}
	return sess.User.Permissions
}

// HasPermission resolves one flag. Admin-tier roles pass unconditionally;
// everything else defaults to false when unset or unreadable.
func (p *PermissionService) HasPermission(ctx context.Context, sid, name string) bool {
	sess, err := p.store.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, domain.ErrNoSession) {
			p.log.Warn().Err(err).Str("session_id", sid).Msg("permission read failed")
		}
		return false
	}
	return sess.User.HasPermission(name)
}

// PermissionPoller keeps a derived copy of each tracked session's permission
// map fresh: a fixed-interval re-read plus an immediate re-read whenever the
// change signal fires. Consumers read the derived copy synchronously; slight
// staleness between refreshes is acceptable, the authority enforces real
// access control server-side.
type PermissionPoller struct {
	reader   ports.PermissionReader
	signal   ports.ChangeSignal
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	tracked map[string]domain.PermissionMap

	// OnChange, when set, is invoked with the session ID and fresh map each
	// time a re-read observes a different map.
	OnChange func(sid string, perms domain.PermissionMap)
}

func NewPermissionPoller(reader ports.PermissionReader, signal ports.ChangeSignal, interval time.Duration, log zerolog.Logger) *PermissionPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PermissionPoller{
		reader:   reader,
		signal:   signal,
		interval: interval,
		log:      log,
		tracked:  make(map[string]domain.PermissionMap),
	}
}

// Track starts following a session and primes its derived map.
func (p *PermissionPoller) Track(ctx context.Context, sid string) {
	p.refreshOne(ctx, sid)
}

// Untrack stops following a session.
func (p *PermissionPoller) Untrack(sid string) {
	p.mu.Lock()
	delete(p.tracked, sid)
	p.mu.Unlock()
}

// Snapshot returns the last derived permission map for a session.
func (p *PermissionPoller) Snapshot(sid string) domain.PermissionMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracked[sid]
}

// Tracked lists the session IDs currently being followed.
func (p *PermissionPoller) Tracked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sids := make([]string, 0, len(p.tracked))
	for sid := range p.tracked {
		sids = append(sids, sid)
	}
	return sids
}

// Run drives the poll loop until ctx is cancelled. The interval re-read and
// the change-signal re-read share one code path; the signal only carries a
// session ID, its payload is otherwise ignored.
func (p *PermissionPoller) Run(ctx context.Context) error {
	var updates <-chan string
	if p.signal != nil {
		ch, err := p.signal.Subscribe(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("change signal unavailable, polling only")
		} else {
			updates = ch
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refreshAll(ctx)
		case sid, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			metrics.PermissionRefreshesTotal.WithLabelValues("signal").Inc()
			p.refreshOne(ctx, sid)
		}
	}
}

func (p *PermissionPoller) refreshAll(ctx context.Context) {
	p.mu.Lock()
	sids := make([]string, 0, len(p.tracked))
	for sid := range p.tracked {
		sids = append(sids, sid)
	}
	p.mu.Unlock()

	for _, sid := range sids {
		metrics.PermissionRefreshesTotal.WithLabelValues("interval").Inc()
		p.refreshOne(ctx, sid)
	}
}

func (p *PermissionPoller) refreshOne(ctx context.Context, sid string) {
	fresh := p.reader.CurrentPermissions(ctx, sid)

	p.mu.Lock()
	previous, known := p.tracked[sid]
	p.tracked[sid] = fresh
	p.mu.Unlock()

	if known && p.OnChange != nil && !permissionsEqual(previous, fresh) {
		p.OnChange(sid, fresh)
	}
}

func permissionsEqual(a, b domain.PermissionMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// viewPermissions maps permission-gated dashboard views to the flag that
// admits them. Views absent from this map are gated by role alone.
var viewPermissions = map[string]string{
	"/dashboard/user/call-terminal": "canCallTickets",
	"/dashboard/user/ticket-desk":   "canCreateTickets",
	"/dashboard/user/reports":       "canViewReports",
}

// viewFallbackOrder fixes the order fallback views are tried in when the
// current view's permission is revoked.
var viewFallbackOrder = []string{
	"/dashboard/user/call-terminal",
	"/dashboard/user/ticket-desk",
	"/dashboard/user/reports",
}

// UserRefresher is the slow reconciliation flow behind the poller: it fetches
// the fresh user record from the authority, overwrites the cached one, and
// reports when a revoked permission invalidates the view the dashboard is
// currently on.
type UserRefresher struct {
	authority ports.Authority
	store     ports.CredentialStore
	states    *state.Registry
	log       zerolog.Logger
}

func NewUserRefresher(authority ports.Authority, store ports.CredentialStore, states *state.Registry, log zerolog.Logger) *UserRefresher {
	return &UserRefresher{authority: authority, store: store, states: states, log: log}
}

// Refresh re-fetches the session's user from the authority and persists it.
// When the fetched permission map revokes the flag gating currentView, the
// returned redirect names a still-permitted fallback view, or the login route
// when nothing remains. An empty redirect means stay put.
func (r *UserRefresher) Refresh(ctx context.Context, sid, currentView string) (redirect string, err error) {
	sess, err := r.store.Load(ctx, sid)
	if err != nil {
		return "", err
	}

	fresh, err := r.authority.CurrentUser(ctx, sess.Token)
	if err != nil {
		return "", err
	}

	if err := r.store.Save(ctx, sid, sess.Token, fresh); err != nil {
		return "", err
	}

	// Profile refreshes touch user fields only: the in-memory copy is
	// patched, the token is left alone.
	if r.states != nil {
		if st := r.states.Peek(sid); st != nil {
			if err := st.UpdateUser(domain.UserPatch{
				Username:    &fresh.Username,
				Email:       &fresh.Email,
				Role:        &fresh.Role,
				AdminID:     &fresh.AdminID,
				Permissions: fresh.Permissions,
			}); err != nil {
				r.log.Debug().Err(err).Str("session_id", sid).Msg("state patch skipped")
			}
		}
	}

	gate, gated := viewPermissions[currentView]
	if !gated || fresh.HasPermission(gate) {
		return "", nil
	}

	r.log.Info().
		Str("session_id", sid).
		Str("view", currentView).
		Str("permission", gate).
		Msg("permission gating current view was revoked")

	for _, view := range viewFallbackOrder {
		if view == currentView {
			continue
		}
		if fresh.HasPermission(viewPermissions[view]) {
			return view, nil
		}
	}
	return domain.LoginRoute, nil
}
