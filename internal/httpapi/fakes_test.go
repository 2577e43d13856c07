package httpapi

import (
	"context"
	"sync"
	"time"

	"forkful.app/internal/auth"
)

// In-memory stores backing handler tests. They mirror the conditional-update
// semantics of the SQL implementations.

type memUsers struct {
	mu      sync.Mutex
	byID    map[string]*auth.User
	byEmail map[string]*auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*auth.User), byEmail: make(map[string]*auth.User)}
}

func (s *memUsers) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[u.Email] = &cp
	return nil
}

func (s *memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) UpdateRole(_ context.Context, id string, role auth.Role) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

type memTokens struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
}

func newMemTokens() *memTokens {
	return &memTokens{byHash: make(map[string]*auth.RefreshToken)}
}

func (s *memTokens) Create(_ context.Context, tok *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.byHash[tok.TokenHash] = &cp
	return nil
}

func (s *memTokens) FindByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byHash[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *memTokens) MarkRotated(_ context.Context, hash, replacedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byHash[hash]
	if !ok || tok.RotatedAt != nil || tok.RevokedAt != nil {
		return false, nil
	}
	t := at
	tok.RotatedAt = &t
	tok.ReplacedByHash = &replacedBy
	return true, nil
}

func (s *memTokens) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tok := range s.byHash {
		if tok.FamilyID == familyID && tok.RevokedAt == nil {
			t := at
			tok.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

type memWindows struct {
	mu   sync.Mutex
	rows map[string]*windowRow
}

type windowRow struct {
	action string
	start  time.Time
	count  int
}

func newMemWindows() *memWindows {
	return &memWindows{rows: make(map[string]*windowRow)}
}

func (s *memWindows) Increment(_ context.Context, subjectKey, action string, windowStart, notBefore time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subjectKey + "|" + action
	row, ok := s.rows[key]
	if !ok || row.start.Before(notBefore) {
		s.rows[key] = &windowRow{action: action, start: windowStart, count: 1}
		return true, nil
	}
	if row.count >= limit {
		return false, nil
	}
	row.count++
	return true, nil
}

func (s *memWindows) DeleteExpired(_ context.Context, action string, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, row := range s.rows {
		if row.action == action && row.start.Before(olderThan) {
			delete(s.rows, key)
			n++
		}
	}
	return n, nil
}
