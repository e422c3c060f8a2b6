package registry

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/garden-chat-go/internal/chat/session"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

// Registry tracks online sessions keyed by username. Register is an atomic
// insert-if-absent, which is the single authority on whether a user is
// already online; callers must not pre-check with Get and then insert.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
	}
}

// Register inserts s if its username is absent. Returns ErrAuthAlreadyOnline
// when another session holds the name, without touching the existing entry.
func (r *Registry) Register(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := s.Username()
	if _, ok := r.sessions[user]; ok {
		return merr.WrapErrAlreadyOnline(user)
	}
	r.sessions[user] = s
	return nil
}

// Unregister removes the entry for username. Returns ErrSessionNotFound when
// no such session is registered.
func (r *Registry) Unregister(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[username]; !ok {
		return merr.WrapErrSessionNotFound(username)
	}
	delete(r.sessions, username)
	return nil
}

// Get looks up the session for username.
func (r *Registry) Get(username string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[username]
	return s, ok
}

// Snapshot returns the current sessions sorted by username. Mutations after
// the snapshot is taken do not affect it, so routing over a snapshot is
// deterministic even while users churn.
func (r *Registry) Snapshot() []*session.Session {
	r.mu.RLock()
	all := maps.Values(r.sessions)
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b *session.Session) int {
		switch {
		case a.Username() < b.Username():
			return -1
		case a.Username() > b.Username():
			return 1
		default:
			return 0
		}
	})
	return all
}

// Usernames returns the online usernames sorted ascending.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := maps.Keys(r.sessions)
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Count returns the number of online sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
