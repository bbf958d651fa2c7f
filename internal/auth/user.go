// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SubscriptionTier is the closed set of account plans.
type SubscriptionTier string

// Subscription tiers. The zero value is not a valid tier; use ParseSubscriptionTier.
const (
	TierStandard SubscriptionTier = "starter"
	TierPremium  SubscriptionTier = "pro"
	TierVIP      SubscriptionTier = "business"
)

// Valid reports whether t is one of the known tiers.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierStandard, TierPremium, TierVIP:
		return true
	}
	return false
}

// ParseSubscriptionTier converts user input to a tier. Empty input yields TierStandard.
func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TierStandard, nil
	}
	t := SubscriptionTier(s)
	if !t.Valid() {
		return "", oops.Code(CodeInvalidTier).
			With("tier", s).
			Errorf("subscription must be one of %s, %s, %s", TierStandard, TierPremium, TierVIP)
	}
	return t, nil
}

// User is the persisted account record.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	Tier         SubscriptionTier
	// ActiveToken is the digest of the single bearer token currently honored
	// for this user, or nil when logged out.
	ActiveToken *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile is the public projection of a User. It never carries the hash or id.
type Profile struct {
	Email string           `json:"email"`
	Tier  SubscriptionTier `json:"subscriptionTier"`
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	return Profile{Email: u.Email, Tier: u.Tier}
}

// NewUser creates a validated User with a fresh id.
func NewUser(email, passwordHash string, tier SubscriptionTier) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidHash).Errorf("password hash cannot be empty")
	}
	if !tier.Valid() {
		return nil, oops.Code(CodeInvalidTier).With("tier", string(tier)).Errorf("invalid subscription tier")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        normalized,
		PasswordHash: passwordHash,
		Tier:         tier,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail validates an address and returns it trimmed and lower-cased.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", oops.Code(CodeInvalidEmail).Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", oops.Code(CodeInvalidEmail).Errorf("email is not a valid address")
	}
	return email, nil
}

// UserPatch lists the mutable fields of a User. Nil fields are left untouched.
type UserPatch struct {
	Tier         *SubscriptionTier
	PasswordHash *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Tier == nil && p.PasswordHash == nil
}

// UserRepository is the user-record store. Implementations must apply each
// write as a single atomic update of one record.
type UserRepository interface {
	// FindByEmail returns the user with the given normalized email or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID returns the user with the given id or ErrNotFound.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Create inserts a new user. Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// UpdateToken overwrites the active token digest; nil clears it.
	// Returns ErrNotFound if the user does not exist.
	UpdateToken(ctx context.Context, id ulid.ULID, token *string) error

	// UpdateFields applies patch and returns the updated user or ErrNotFound.
	UpdateFields(ctx context.Context, id ulid.ULID, patch UserPatch) (*User, error)
}
