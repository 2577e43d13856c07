package auth

import (
	"context"
	"sync"
	"time"
)

// In-memory stores mirroring the conditional-update semantics of the
// PostgreSQL implementation, so the rotation race is testable without a
// database.

type memUserStore struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[u.Email] = &cp
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) UpdateRole(_ context.Context, id string, role Role) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

type memTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byHash: make(map[string]*RefreshToken)}
}

func (s *memTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.byHash[tok.TokenHash] = &cp
	return nil
}

func (s *memTokenStore) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTokenStore) MarkRotated(_ context.Context, tokenHash, replacedByHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[tokenHash]
	if !ok || t.RotatedAt != nil || t.RevokedAt != nil {
		return false, nil
	}
	rotated := at
	t.RotatedAt = &rotated
	t.ReplacedByHash = &replacedByHash
	return true, nil
}

func (s *memTokenStore) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.byHash {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			revoked := at
			t.RevokedAt = &revoked
			n++
		}
	}
	return n, nil
}
