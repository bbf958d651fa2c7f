// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Package memory provides an in-process user-record store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/contactbook/contactbook/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
// Records are copied in and out so callers never share state with the store.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
	now     func() time.Time
}

// NewUserRepository creates an empty store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
		now:     time.Now,
	}
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.ActiveToken != nil {
		token := *u.ActiveToken
		c.ActiveToken = &token
	}
	return &c
}

// FindByEmail implements auth.UserRepository.
func (r *UserRepository) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

// FindByID implements auth.UserRepository.
func (r *UserRepository) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(u), nil
}

// Create implements auth.UserRepository.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code("USER_DUPLICATE_EMAIL").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if _, taken := r.byID[user.ID]; taken {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("user id already exists")
	}

	r.byID[user.ID] = clone(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

// UpdateToken implements auth.UserRepository.
func (r *UserRepository) UpdateToken(_ context.Context, id ulid.ULID, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if token == nil {
		u.ActiveToken = nil
	} else {
		t := *token
		u.ActiveToken = &t
	}
	u.UpdatedAt = r.now().UTC()
	return nil
}

// UpdateFields implements auth.UserRepository.
func (r *UserRepository) UpdateFields(_ context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if patch.Tier != nil {
		u.Tier = *patch.Tier
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if !patch.Empty() {
		u.UpdatedAt = r.now().UTC()
	}
	return clone(u), nil
}

// Delete removes a user. It exists for tests exercising vanished records.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.byEmail, u.Email)
	delete(r.byID, id)
	return nil
}

// Ping always succeeds.
func (r *UserRepository) Ping(context.Context) error {
	return nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
