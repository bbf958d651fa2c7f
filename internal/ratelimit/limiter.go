// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Package ratelimit bounds login attempts per client key with a fixed window.
//
// The Limiter owns the clock and the policy; a Store owns the per-key
// counters and must apply each attempt atomically for its key while leaving
// other keys unblocked. MemoryStore serves a single process, RedisStore
// shares counters between replicas.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Outcome is the result of recording an attempt.
type Outcome int

// Attempt outcomes.
const (
	Allowed Outcome = iota
	RateLimited
)

func (o Outcome) String() string {
	if o == RateLimited {
		return "rate_limited"
	}
	return "allowed"
}

// Config holds the fixed-window policy.
type Config struct {
	// WindowDuration is the size of the counting window.
	WindowDuration time.Duration
	// MaxAttempts is the number of attempts allowed per window.
	MaxAttempts int
}

// DefaultConfig allows five attempts per fifteen minutes.
func DefaultConfig() Config {
	return Config{
		WindowDuration: 15 * time.Minute,
		MaxAttempts:    5,
	}
}

// Validate checks that the policy is usable.
func (c Config) Validate() error {
	if c.WindowDuration <= 0 {
		return oops.Code("CONFIG_INVALID").With("window", c.WindowDuration.String()).Errorf("limiter window must be positive")
	}
	if c.MaxAttempts < 1 {
		return oops.Code("CONFIG_INVALID").With("max_attempts", c.MaxAttempts).Errorf("limiter max attempts must be at least 1")
	}
	return nil
}

// Record is the attempt counter of one key in its current window.
type Record struct {
	Key         string
	Count       int
	WindowStart time.Time
}

// Store persists attempt records.
type Store interface {
	// Take records one attempt for key at now and reports whether the key
	// was already at its limit. A limited attempt leaves the record unchanged.
	Take(ctx context.Context, key string, now time.Time, cfg Config) (Record, bool, error)
}

// Decision describes the limiter's verdict for one attempt.
type Decision struct {
	Outcome Outcome
	Count   int
	Limit   int
	ResetAt time.Time
}

// Allowed reports whether the attempt may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// Remaining is the number of further attempts allowed in the window.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// RetryAfter is the time until the window resets, measured from now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter applies Config to attempts recorded in a Store.
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter.
func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, oops.Errorf("limiter store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter policy.
func (l *Limiter) Config() Config {
	return l.cfg
}

// CheckAndRecord counts an attempt for key. The first attempt of a window
// starts a fresh count of one; once MaxAttempts have been counted every
// further attempt in the same window is RateLimited and not counted.
func (l *Limiter) CheckAndRecord(ctx context.Context, key string) (Decision, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Decision{}, oops.Code("LIMITER_INVALID_KEY").Errorf("limiter key cannot be empty")
	}

	rec, limited, err := l.store.Take(ctx, key, l.now(), l.cfg)
	if err != nil {
		return Decision{}, oops.Code("LIMITER_STORE_FAILED").With("key", key).Wrap(err)
	}

	d := Decision{
		Outcome: Allowed,
		Count:   rec.Count,
		Limit:   l.cfg.MaxAttempts,
		ResetAt: rec.WindowStart.Add(l.cfg.WindowDuration),
	}
	if limited {
		d.Outcome = RateLimited
	}
	return d, nil
}

// advance applies one attempt at now to rec; exists is false for unseen keys.
func advance(rec Record, exists bool, key string, now time.Time, cfg Config) (Record, bool) {
	if !exists || rec.Count == 0 || !now.Before(rec.WindowStart.Add(cfg.WindowDuration)) {
		return Record{Key: key, Count: 1, WindowStart: now}, false
	}
	if rec.Count >= cfg.MaxAttempts {
		return rec, true
	}
	rec.Count++
	return rec, false
}
