// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the fixed lifetime of an issued bearer token.
const DefaultTokenTTL = 5 * time.Hour

// Token is a freshly issued bearer token.
type Token struct {
	Value     string
	SubjectID ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer creates and validates signed, time-limited bearer tokens.
// Validation does not consult session state.
type TokenIssuer interface {
	Issue(subjectID ulid.ULID) (Token, error)
	Validate(token string) (ulid.ULID, error)
}

// SignedTokenIssuer issues HS256 JWTs carrying {sub, iat, exp, jti}.
type SignedTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenIssuerOption configures a SignedTokenIssuer.
type TokenIssuerOption func(*SignedTokenIssuer)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) TokenIssuerOption {
	return func(i *SignedTokenIssuer) {
		i.ttl = ttl
	}
}

// WithTokenClock sets the time source used for issuance and expiry checks.
func WithTokenClock(now func() time.Time) TokenIssuerOption {
	return func(i *SignedTokenIssuer) {
		i.now = now
	}
}

// NewSignedTokenIssuer creates a token issuer. A missing secret is a
// configuration error and must abort startup.
func NewSignedTokenIssuer(secret []byte, opts ...TokenIssuerOption) (*SignedTokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code(CodeConfigInvalid).Errorf("token signing secret is required")
	}

	i := &SignedTokenIssuer{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.ttl <= 0 {
		return nil, oops.Code(CodeConfigInvalid).With("ttl", i.ttl.String()).Errorf("token ttl must be positive")
	}
	return i, nil
}

// Issue signs a new token for subjectID. Every call yields a distinct token,
// even within the same second, because of the random jti.
func (i *SignedTokenIssuer) Issue(subjectID ulid.ULID) (Token, error) {
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   subjectID.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        ulid.Make().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, oops.Code(CodeSessionFailed).With("operation", "sign token").Wrap(err)
	}

	return Token{
		Value:     signed,
		SubjectID: subjectID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate verifies signature, structure and expiry and returns the subject.
func (i *SignedTokenIssuer) Validate(token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("token is empty")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Wrap(err)
	}

	subjectID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).With("operation", "parse subject").Wrap(err)
	}
	return subjectID, nil
}
