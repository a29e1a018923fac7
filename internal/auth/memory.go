package auth

import (
	"context"
	"sync"
	"time"

	"anonpress.org/internal/ids"
)

// InMemoryUsers implements UserStore for tests and single-process
// deployments.
type InMemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*User
}

var _ UserStore = (*InMemoryUsers)(nil)

// NewInMemoryUsers creates an empty user store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{users: make(map[string]*User)}
}

func (s *InMemoryUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	stored := *u
	stored.ID = ids.New()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Roles = append([]string(nil), u.Roles...)
	s.users[u.Username] = &stored
	*u = copyUser(&stored)
	return nil
}

func (s *InMemoryUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyUser(u)
	return &out, nil
}

func (s *InMemoryUsers) List(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		c := copyUser(u)
		out = append(out, &c)
	}
	return out, nil
}

func (s *InMemoryUsers) Update(ctx context.Context, username string, passwordHash *string, roles []string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if roles != nil {
		u.Roles = append([]string(nil), roles...)
	}
	u.UpdatedAt = time.Now().UTC()
	out := copyUser(u)
	return &out, nil
}

func (s *InMemoryUsers) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrNotFound
	}
	delete(s.users, username)
	return nil
}

func copyUser(u *User) User {
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	return out
}
