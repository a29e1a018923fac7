package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// User is an account that can sign in and hold roles.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserUpdate carries the fields a user update may change. Nil fields are
// left untouched.
type UserUpdate struct {
	Password *string
	Roles    []string
}

// UserStore describes persistence for user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, username string, passwordHash *string, roles []string) (*User, error)
	Delete(ctx context.Context, username string) error
}

// Users provides validated user administration and signin on top of a
// UserStore.
type Users struct {
	store UserStore
}

// NewUsers builds the user service.
func NewUsers(store UserStore) (*Users, error) {
	if store == nil {
		return nil, fmt.Errorf("user store is required")
	}
	return &Users{store: store}, nil
}

// Create validates the username, password and role set, hashes the password
// and persists the account.
func (s *Users) Create(ctx context.Context, username, password string, roles []string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if !ValidPassword(password) {
		return nil, fmt.Errorf("%w: password does not meet the policy", ErrUnauthorized)
	}
	roles = dedupeRoles(roles)
	if len(roles) == 0 {
		roles = []string{RolePublic}
	}
	for _, role := range roles {
		if !IsBuiltinRole(role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{Username: username, PasswordHash: hash, Roles: roles}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns one user by username.
func (s *Users) Get(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.FindByUsername(ctx, username)
}

// List returns all users.
func (s *Users) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// Update changes a user's password and/or roles.
func (s *Users) Update(ctx context.Context, username string, upd UserUpdate) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	var hash *string
	if upd.Password != nil {
		if !ValidPassword(*upd.Password) {
			return nil, fmt.Errorf("%w: password does not meet the policy", ErrUnauthorized)
		}
		h, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		hash = &h
	}
	var roles []string
	if upd.Roles != nil {
		roles = dedupeRoles(upd.Roles)
		if len(roles) == 0 {
			return nil, fmt.Errorf("%w: roles must not be empty", ErrInvalidInput)
		}
		for _, role := range roles {
			if !IsBuiltinRole(role) {
				return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
			}
		}
	}
	return s.store.Update(ctx, username, hash, roles)
}

// Delete removes a user account.
func (s *Users) Delete(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, username)
}

// Authenticate checks credentials and returns the matching principal.
func (s *Users) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Principal{}, fmt.Errorf("%w: credentials are required", ErrUnauthorized)
	}
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return Principal{}, ErrUnauthorized
	}
	return Principal{Username: u.Username, Roles: u.Roles}, nil
}
