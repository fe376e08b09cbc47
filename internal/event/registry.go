package event

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/rs/zerolog/log"
)

// Session binds a unique display name to a live delivery capability.
type Session struct {
	ID        uuid.UUID
	Name      string
	Deliverer Deliverer
	JoinedAt  time.Time
}

// Registry tracks the connected participants. It owns no auction state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// Register adds a session for name, failing with auction.ErrNameInUse when the
// name is taken.
func (r *Registry) Register(name string, deliverer Deliverer) (Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[name]; ok {
		r.mu.Unlock()
		return Session{}, auction.ErrNameInUse
	}

	session := Session{
		ID:        uuid.New(),
		Name:      name,
		Deliverer: deliverer,
		JoinedAt:  time.Now(),
	}
	r.sessions[name] = session
	total := len(r.sessions)
	r.mu.Unlock()

	log.Info().Str("nickname", name).Int("total", total).Msg("participant registered")
	return session, nil
}

// Unregister removes name. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) (Session, bool) {
	r.mu.Lock()
	session, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		log.Info().Str("nickname", name).Int("remaining", total).Msg("participant unregistered")
	}
	return session, ok
}

// UnregisterSession removes the session only if it is still the one bound to
// its name, so a stale transport cannot evict a newer registration.
func (r *Registry) UnregisterSession(session Session) bool {
	r.mu.Lock()
	current, ok := r.sessions[session.Name]
	if ok && current.ID == session.ID {
		delete(r.sessions, session.Name)
	} else {
		ok = false
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		log.Info().Str("nickname", session.Name).Int("remaining", total).Msg("participant session removed")
	}
	return ok
}

func (r *Registry) Lookup(name string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[name]
	return session, ok
}

// Snapshot returns the sessions registered at this instant, sorted by name.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name < sessions[j].Name
	})
	return sessions
}

func (r *Registry) Names() []string {
	sessions := r.Snapshot()
	names := make([]string, len(sessions))
	for i, session := range sessions {
		names[i] = session.Name
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
