// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contactbook/contactbook/internal/ratelimit"
	"github.com/contactbook/contactbook/pkg/errutil"
)

const tracerName = "github.com/contactbook/contactbook/internal/auth"

// dummyPasswordHash is verified when no user matches the email so that
// unknown emails cost as much time as wrong passwords. It matches nothing.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Outcome labels reported to the MetricsRecorder.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeRateLimited        = "rate_limited"
	OutcomeDuplicate          = "duplicate"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeNotFound           = "not_found"
	OutcomeError              = "error"
)

// LoginLimiter throttles login attempts per client key.
type LoginLimiter interface {
	CheckAndRecord(ctx context.Context, key string) (ratelimit.Decision, error)
}

// MetricsRecorder receives one outcome per service operation.
type MetricsRecorder interface {
	RecordAuthOutcome(operation, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordAuthOutcome(string, string) {}

// SignupRequest carries the signup form.
type SignupRequest struct {
	Email    string
	Password string
	// Tier is optional; empty means TierStandard.
	Tier string
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string
	Password string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token   Token
	Profile Profile
	// RateLimit is the limiter decision that admitted this attempt.
	RateLimit ratelimit.Decision
}

// Service orchestrates signup, login, logout and session lookups.
type Service struct {
	users    UserRepository
	sessions SessionStore
	hasher   PasswordHasher
	tokens   TokenIssuer
	limiter  LoginLimiter
	logger   *slog.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger == nil {
			return oops.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the outcome recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) error {
		if m == nil {
			return oops.Errorf("metrics recorder cannot be nil")
		}
		s.metrics = m
		return nil
	}
}

// WithServiceClock sets the time source used for limiter retry hints.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		if now == nil {
			return oops.Errorf("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// NewService creates an auth service. All collaborators are required.
func NewService(
	users UserRepository,
	sessions SessionStore,
	hasher PasswordHasher,
	tokens TokenIssuer,
	limiter LoginLimiter,
	opts ...ServiceOption,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("login limiter is required")
	}

	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		limiter:  limiter,
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) start(ctx context.Context, operation string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+operation)
}

func (s *Service) finish(span trace.Span, operation, outcome string, err error) {
	s.metrics.RecordAuthOutcome(operation, outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil && outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auth operation failed")
	}
	span.End()
}

// Signup registers a new user and returns its public profile.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (profile Profile, err error) {
	ctx, span := s.start(ctx, "signup")
	outcome := OutcomeSuccess
	defer func() { s.finish(span, "signup", outcome, err) }()

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		outcome = OutcomeInvalidInput
		return Profile{}, err
	}
	tier, err := ParseSubscriptionTier(req.Tier)
	if err != nil {
		outcome = OutcomeInvalidInput
		return Profile{}, err
	}
	if req.Password == "" {
		outcome = OutcomeInvalidInput
		return Profile{}, ErrEmptyPassword
	}

	_, err = s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		outcome = OutcomeDuplicate
		return Profile{}, oops.Code(CodeDuplicateEmail).Errorf(MsgDuplicateEmail)
	case !errors.Is(err, ErrNotFound):
		outcome = OutcomeError
		return Profile{}, oops.Code(CodeSignupFailed).With("operation", "find user by email").Wrap(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		outcome = OutcomeError
		return Profile{}, oops.Code(CodeHashFailed).With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(email, hash, tier)
	if err != nil {
		outcome = OutcomeError
		return Profile{}, oops.Code(CodeSignupFailed).With("operation", "build user").Wrap(err)
	}

	if err = s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a race with a concurrent signup for the same email.
			outcome = OutcomeDuplicate
			return Profile{}, oops.Code(CodeDuplicateEmail).Errorf(MsgDuplicateEmail)
		}
		outcome = OutcomeError
		return Profile{}, oops.Code(CodeSignupFailed).With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", user.ID.String(),
		"subscription", string(user.Tier),
	)
	return user.Profile(), nil
}

// Login verifies credentials and makes a fresh token the user's only active
// token. The limiter runs before anything else so valid and invalid attempts
// are throttled alike. Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, req LoginRequest, limiterKey string) (result *LoginResult, err error) {
	ctx, span := s.start(ctx, "login")
	outcome := OutcomeSuccess
	defer func() { s.finish(span, "login", outcome, err) }()

	decision, err := s.limiter.CheckAndRecord(ctx, limiterKey)
	if err != nil {
		outcome = OutcomeError
		return nil, oops.Code(CodeLoginFailed).With("operation", "check login limiter").Wrap(err)
	}
	if !decision.Allowed() {
		outcome = OutcomeRateLimited
		retryAfter := decision.RetryAfter(s.now())
		s.logger.WarnContext(ctx, "login rate limited",
			"limit", decision.Limit,
			"retry_after", retryAfter.String(),
		)
		return nil, oops.Code(CodeTooManyAttempts).
			With("retry_after_seconds", int(math.Ceil(retryAfter.Seconds()))).
			With("limit", decision.Limit).
			Errorf(MsgTooManyAttempts)
	}

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		outcome = OutcomeInvalidInput
		return nil, err
	}
	if req.Password == "" {
		outcome = OutcomeInvalidInput
		return nil, ErrEmptyPassword
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			outcome = OutcomeError
			return nil, oops.Code(CodeLoginFailed).With("operation", "find user by email").Wrap(err)
		}
		// Equalize timing with the wrong-password path.
		_, _ = s.hasher.Verify(req.Password, dummyPasswordHash)
		outcome = OutcomeInvalidCredentials
		return nil, invalidCredentials()
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		outcome = OutcomeError
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !ok {
		outcome = OutcomeInvalidCredentials
		s.logger.InfoContext(ctx, "login failed: wrong password", "user_id", user.ID.String())
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, req.Password)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		outcome = OutcomeError
		return nil, oops.Code(CodeLoginFailed).With("operation", "issue token").Wrap(err)
	}

	if err = s.sessions.SetActiveToken(ctx, user.ID, token.Value); err != nil {
		outcome = OutcomeError
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "set active token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return &LoginResult{
		Token:     token,
		Profile:   user.Profile(),
		RateLimit: decision,
	}, nil
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf(MsgInvalidCredentials)
}

// upgradeHash rehashes with current parameters. Failure keeps the old hash.
func (s *Service) upgradeHash(ctx context.Context, userID ulid.ULID, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	if _, err := s.users.UpdateFields(ctx, userID, UserPatch{PasswordHash: &hash}); err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", userID.String())
}

// Logout clears the user's active token. It is idempotent.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, span := s.start(ctx, "logout")
	outcome := OutcomeSuccess
	defer func() { s.finish(span, "logout", outcome, err) }()

	if err = s.sessions.ClearActiveToken(ctx, userID); err != nil {
		outcome = OutcomeError
		return oops.Code(CodeLogoutFailed).With("user_id", userID.String()).Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", userID.String())
	return nil
}

// CurrentSession returns the profile of an authenticated user.
func (s *Service) CurrentSession(ctx context.Context, userID ulid.ULID) (profile Profile, err error) {
	ctx, span := s.start(ctx, "current")
	outcome := OutcomeSuccess
	defer func() { s.finish(span, "current", outcome, err) }()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			outcome = OutcomeNotFound
			return Profile{}, oops.Code(CodeUserNotFound).With("user_id", userID.String()).Errorf(MsgUserNotFound)
		}
		outcome = OutcomeError
		return Profile{}, oops.Code(CodeSessionFailed).With("user_id", userID.String()).Wrap(err)
	}
	return user.Profile(), nil
}

// UpdateSubscription changes the user's tier and returns the new profile.
func (s *Service) UpdateSubscription(ctx context.Context, userID ulid.ULID, tier string) (profile Profile, err error) {
	ctx, span := s.start(ctx, "update_subscription")
	outcome := OutcomeSuccess
	defer func() { s.finish(span, "update_subscription", outcome, err) }()

	if tier == "" {
		outcome = OutcomeInvalidInput
		return Profile{}, oops.Code(CodeInvalidTier).Errorf("subscription is required")
	}
	parsed, err := ParseSubscriptionTier(tier)
	if err != nil {
		outcome = OutcomeInvalidInput
		return Profile{}, err
	}

	user, err := s.users.UpdateFields(ctx, userID, UserPatch{Tier: &parsed})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			outcome = OutcomeNotFound
			return Profile{}, oops.Code(CodeUserNotFound).With("user_id", userID.String()).Errorf(MsgUserNotFound)
		}
		outcome = OutcomeError
		return Profile{}, oops.Code(CodeUpdateFailed).With("user_id", userID.String()).Wrap(err)
	}

	s.logger.InfoContext(ctx, "subscription updated",
		"user_id", userID.String(),
		"subscription", string(user.Tier),
	)
	return user.Profile(), nil
}
