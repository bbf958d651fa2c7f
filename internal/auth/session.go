// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionStore enforces the single-active-token invariant: at most one token
// per user is honored, a new login overwrites it and logout clears it.
type SessionStore interface {
	SetActiveToken(ctx context.Context, userID ulid.ULID, token string) error
	ClearActiveToken(ctx context.Context, userID ulid.ULID) error
	IsActiveToken(ctx context.Context, userID ulid.ULID, token string) (bool, error)
	// ActiveUser returns the user when token is its current token. The token
	// check and the returned record come from the same read.
	ActiveUser(ctx context.Context, userID ulid.ULID, token string) (*User, bool, error)
}

// HashToken returns the SHA-256 hex digest persisted in place of a bearer token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// UserSessionStore keeps the active token digest on the user record.
// Last write wins, as decided by the store's atomic update.
type UserSessionStore struct {
	users UserRepository
}

// NewUserSessionStore creates a SessionStore backed by the user-record store.
func NewUserSessionStore(users UserRepository) (*UserSessionStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	return &UserSessionStore{users: users}, nil
}

// SetActiveToken overwrites the stored token, invalidating any previous one.
func (s *UserSessionStore) SetActiveToken(ctx context.Context, userID ulid.ULID, token string) error {
	if token == "" {
		return oops.Code(CodeInvalidToken).Errorf("token cannot be empty")
	}
	digest := HashToken(token)
	if err := s.users.UpdateToken(ctx, userID, &digest); err != nil {
		return oops.With("operation", "set active token", "user_id", userID.String()).Wrap(err)
	}
	return nil
}

// ClearActiveToken removes the stored token. Clearing an already empty token
// succeeds, as does clearing for a user that no longer exists.
func (s *UserSessionStore) ClearActiveToken(ctx context.Context, userID ulid.ULID) error {
	err := s.users.UpdateToken(ctx, userID, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.With("operation", "clear active token", "user_id", userID.String()).Wrap(err)
	}
	return nil
}

// IsActiveToken reports whether token is exactly the user's current token.
func (s *UserSessionStore) IsActiveToken(ctx context.Context, userID ulid.ULID, token string) (bool, error) {
	_, active, err := s.ActiveUser(ctx, userID, token)
	return active, err
}

// ActiveUser loads the user once and checks token against that record. A
// missing user is reported as inactive, not as an error.
func (s *UserSessionStore) ActiveUser(ctx context.Context, userID ulid.ULID, token string) (*User, bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.With("operation", "check active token", "user_id", userID.String()).Wrap(err)
	}
	if user.ActiveToken == nil || token == "" || !VerifyToken(token, *user.ActiveToken) {
		return nil, false, nil
	}
	return user, true, nil
}

// VerifyToken compares a token against a stored digest in constant time.
func VerifyToken(token, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(digest)) == 1
}
