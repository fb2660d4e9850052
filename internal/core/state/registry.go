package state

import "sync"

// Registry hands out the per-session state store. Stores are created lazily
// on first use and dropped when the session ends; the credential store stays
// the owner of the durable session, each Store only ever holds a copy.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// For returns the store for a session, creating it if needed.
func (r *Registry) For(sid string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[sid]
	if !ok {
		st = New()
		r.stores[sid] = st
	}
	return st
}

// Peek returns the store for a session, or nil when none exists.
func (r *Registry) Peek(sid string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[sid]
}

// Drop clears and forgets a session's store.
func (r *Registry) Drop(sid string) {
	r.mu.Lock()
	st := r.stores[sid]
	delete(r.stores, sid)
	r.mu.Unlock()
	if st != nil {
		st.ClearSession()
	}
}
