package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Skotchmaster/usersvc/internal/models"
)

// MemoryStore is a process-local Store for tests and single-instance dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

func (s *MemoryStore) Get(_ context.Context, username string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Put(_ context.Context, sess *models.Session) error {
	if sess == nil || sess.Username == "" {
		return errors.New("session username cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Username] = *sess
	return nil
}

func (s *MemoryStore) ReplaceAccess(_ context.Context, username, refreshToken, accessToken string, accessExpiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return ErrNotFound
	}
	if sess.RefreshToken != refreshToken {
		return ErrSuperseded
	}
	sess.AccessToken = accessToken
	sess.AccessExpiresAt = accessExpiresAt
	s.sessions[username] = sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[username]
	delete(s.sessions, username)
	return ok, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
