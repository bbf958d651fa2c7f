// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is the authenticated caller resolved by the Guard.
type Identity struct {
	UserID  ulid.ULID
	Token   string
	Profile Profile
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// Guard resolves bearer tokens to identities. A token passes only if it is
// validly signed, unexpired and still the user's active token.
type Guard struct {
	tokens   TokenIssuer
	sessions SessionStore
	logger   *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(tokens TokenIssuer, sessions SessionStore, logger *slog.Logger) (*Guard, error) {
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{tokens: tokens, sessions: sessions, logger: logger}, nil
}

// Authenticate validates token and returns the caller's identity.
// Bad, expired, logged-out and superseded tokens all fail with CodeUnauthorized.
func (g *Guard) Authenticate(ctx context.Context, token string) (*Identity, error) {
	userID, err := g.tokens.Validate(token)
	if err != nil {
		g.logger.DebugContext(ctx, "token rejected", "reason", "invalid")
		return nil, unauthorized()
	}

	user, active, err := g.sessions.ActiveUser(ctx, userID, token)
	if err != nil {
		return nil, oops.Code(CodeSessionFailed).With("user_id", userID.String()).Wrap(err)
	}
	if !active {
		g.logger.DebugContext(ctx, "token rejected", "reason", "inactive", "user_id", userID.String())
		return nil, unauthorized()
	}

	return &Identity{
		UserID:  userID,
		Token:   token,
		Profile: user.Profile(),
	}, nil
}

func unauthorized() error {
	return oops.Code(CodeUnauthorized).Errorf(MsgUnauthorized)
}
