// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/contactbook/contactbook/internal/auth"
)

// Limiter key sources.
const (
	LimiterKeyIP    = "ip"
	LimiterKeyEmail = "email"
)

// AuthService is the part of auth.Service the handlers drive.
type AuthService interface {
	Signup(ctx context.Context, req auth.SignupRequest) (auth.Profile, error)
	Login(ctx context.Context, req auth.LoginRequest, limiterKey string) (*auth.LoginResult, error)
	Logout(ctx context.Context, userID ulid.ULID) error
	CurrentSession(ctx context.Context, userID ulid.ULID) (auth.Profile, error)
	UpdateSubscription(ctx context.Context, userID ulid.ULID, tier string) (auth.Profile, error)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Tier accepts both the current and the legacy field name.
	Tier       string `json:"subscriptionTier"`
	LegacyTier string `json:"subscription"`
}

func (c credentialsRequest) tier() string {
	if c.Tier != "" {
		return c.Tier
	}
	return c.LegacyTier
}

type loginResponse struct {
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expiresAt"`
	Email     string                `json:"email"`
	Tier      auth.SubscriptionTier `json:"subscriptionTier"`
}

type userHandlers struct {
	service    AuthService
	logger     *slog.Logger
	limiterKey string
	proxies    TrustedProxies
}

func (h *userHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	profile, err := h.service.Signup(r.Context(), auth.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
		Tier:     req.tier(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, profile)
}

func (h *userHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	}, h.keyFor(r, req.Email))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rl := result.RateLimit
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining()))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
	writeSuccess(w, http.StatusOK, loginResponse{
		Token:     result.Token.Value,
		ExpiresAt: result.Token.ExpiresAt,
		Email:     result.Profile.Email,
		Tier:      result.Profile.Tier,
	})
}

// keyFor picks the limiter key. Email keys are normalized so case variants
// share a counter; an unparseable email falls back to the client address.
func (h *userHandlers) keyFor(r *http.Request, email string) string {
	if h.limiterKey == LimiterKeyEmail {
		if normalized, err := auth.NormalizeEmail(email); err == nil {
			return "email:" + normalized
		}
	}
	return "ip:" + h.proxies.ClientIP(r)
}

func (h *userHandlers) logout(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.service.Logout(r.Context(), id.UserID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *userHandlers) current(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	profile, err := h.service.CurrentSession(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, profile)
}

type subscriptionRequest struct {
	Tier       string `json:"subscriptionTier"`
	LegacyTier string `json:"subscription"`
}

func (h *userHandlers) updateSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tier := strings.TrimSpace(req.Tier)
	if tier == "" {
		tier = strings.TrimSpace(req.LegacyTier)
	}

	profile, err := h.service.UpdateSubscription(r.Context(), id.UserID, tier)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, profile)
}
