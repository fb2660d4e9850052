// Package state holds the in-memory dashboard state for one browser session.
// The store is an explicit, injectable object: constructed per session,
// passed to its consumers, never a package-level singleton. All transitions
// happen under one mutex so observers never see a partially applied change.
package state

import (
	"errors"
	"sync"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// ErrNoUser is returned by UpdateUser when no user is loaded.
var ErrNoUser = errors.New("state: no user to update")

// Snapshot is an immutable view of the store at one point in time.
// IsAuthenticated is derived from token and user; it is never set directly.
type Snapshot struct {
	User            *domain.User
	Token           string
	IsAuthenticated bool
	Loading         bool
	Error           string
}

// Listener receives a snapshot after every transition.
type Listener func(Snapshot)

// Store is the central dashboard state container.
type Store struct {
	mu        sync.Mutex
	user      *domain.User
	token     string
	loading   bool
	err       string
	listeners []Listener
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Subscribe registers a listener invoked after every transition with the
// resulting snapshot. Listeners are called outside the lock.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SetCredentials installs a token/user pair and clears any previous error.
func (s *Store) SetCredentials(user *domain.User, token string) {
	s.mu.Lock()
	s.user = user
	s.token = token
	s.err = ""
	s.loading = false
	snap := s.snapshotLocked()
	fns := s.listeners
	s.mu.Unlock()
	notify(fns, snap)
}

// UpdateUser shallow-merges a patch into the loaded user. Calling it with no
// user loaded is an error, not a crash.
func (s *Store) UpdateUser(patch domain.UserPatch) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNoUser
	}
	merged := s.user.Merge(patch)
	s.user = &merged
	snap := s.snapshotLocked()
	fns := s.listeners
	s.mu.Unlock()
	notify(fns, snap)
	return nil
}

// ClearSession resets user, token, error, and loading in one transition.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.err = ""
	s.loading = false
	snap := s.snapshotLocked()
	fns := s.listeners
	s.mu.Unlock()
	notify(fns, snap)
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	snap := s.snapshotLocked()
	fns := s.listeners
	s.mu.Unlock()
	notify(fns, snap)
}

// SetError records an error message and stops any loading indicator.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.err = msg
	s.loading = false
	snap := s.snapshotLocked()
	fns := s.listeners
	s.mu.Unlock()
	notify(fns, snap)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		User:            s.user,
		Token:           s.token,
		IsAuthenticated: s.user != nil && !domain.IsBlankToken(s.token),
		Loading:         s.loading,
		Error:           s.err,
	}
}

func notify(fns []Listener, snap Snapshot) {
	for _, fn := range fns {
		fn(snap)
	}
}
