package store

import (
	"errors"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionEntry[T any] struct {
	ID        string
	Value     T
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStore keeps caller sessions by id for the HTTP layer.
type SessionStore[T any] struct {
	sessions map[string]*SessionEntry[T]
	mu       sync.RWMutex
}

func NewSessionStore[T any]() *SessionStore[T] {
	return &SessionStore[T]{
		sessions: make(map[string]*SessionEntry[T]),
	}
}

func (s *SessionStore[T]) Create(id string, value T) *SessionEntry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry := &SessionEntry[T]{ID: id, Value: value, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = entry
	return entry
}

func (s *SessionStore[T]) Get(id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok {
		var zero T
		return zero, ErrSessionNotFound
	}
	return entry.Value, nil
}

func (s *SessionStore[T]) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	entry.UpdatedAt = time.Now()
	return nil
}

// Delete removes the session and returns its value so the caller can
// dispose of it.
func (s *SessionStore[T]) Delete(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		var zero T
		return zero, ErrSessionNotFound
	}
	delete(s.sessions, id)
	return entry.Value, nil
}

// Expired returns the ids of sessions idle since before cutoff.
func (s *SessionStore[T]) Expired(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, entry := range s.sessions {
		if entry.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *SessionStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
