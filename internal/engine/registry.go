package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrAttemptInProgress is returned when a user tries to start a second
// attempt while one is still live on this instance.
var ErrAttemptInProgress = errors.New("another attempt is already in progress")

// Registry tracks live sessions, one per attempt id and at most one per
// user. It is the only holder of engine references; handlers and workers go
// through it.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Session
	byUser map[int]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*Session),
		byUser: make(map[int]*Session),
	}
}

// Put registers a session. Fails if the user already owns a live one.
func (r *Registry) Put(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byUser[s.UserID()]; ok && existing.ID() != s.ID() {
		return ErrAttemptInProgress
	}
	r.byID[s.ID()] = s
	r.byUser[s.UserID()] = s
	return nil
}

// Get returns the live session for an attempt id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// ActiveForUser returns the user's live session, if any.
func (r *Registry) ActiveForUser(userID int) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// Remove deregisters a session once it reaches a terminal state.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		delete(r.byID, id)
		if owner, ok := r.byUser[s.UserID()]; ok && owner.ID() == id {
			delete(r.byUser, s.UserID())
		}
	}
}

// CloseAll tears down every live session without submitting, flushing final
// snapshots so attempts survive a server restart. Called on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.byID = make(map[uuid.UUID]*Session)
	r.byUser = make(map[int]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}
