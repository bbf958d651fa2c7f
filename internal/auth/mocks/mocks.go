// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/contactbook/contactbook/internal/auth"
	"github.com/contactbook/contactbook/internal/ratelimit"
)

// TestingT is satisfied by *testing.T.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t TestingT) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock whose expectations are asserted on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateToken(ctx context.Context, id ulid.ULID, token *string) error {
	return m.Called(ctx, id, token).Error(0)
}

func (m *MockUserRepository) UpdateFields(ctx context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	ret := m.Called(ctx, id, patch)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

// MockSessionStore mocks auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock whose expectations are asserted on cleanup.
func NewMockSessionStore(t TestingT) *MockSessionStore {
	m := &MockSessionStore{}
	register(&m.Mock, t)
	return m
}

func (m *MockSessionStore) SetActiveToken(ctx context.Context, userID ulid.ULID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}

func (m *MockSessionStore) ClearActiveToken(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockSessionStore) IsActiveToken(ctx context.Context, userID ulid.ULID, token string) (bool, error) {
	ret := m.Called(ctx, userID, token)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockSessionStore) ActiveUser(ctx context.Context, userID ulid.ULID, token string) (*auth.User, bool, error) {
	ret := m.Called(ctx, userID, token)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Bool(1), ret.Error(2)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(&m.Mock, t)
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockTokenIssuer mocks auth.TokenIssuer.
type MockTokenIssuer struct {
	mock.Mock
}

// NewMockTokenIssuer creates a mock whose expectations are asserted on cleanup.
func NewMockTokenIssuer(t TestingT) *MockTokenIssuer {
	m := &MockTokenIssuer{}
	register(&m.Mock, t)
	return m
}

func (m *MockTokenIssuer) Issue(subjectID ulid.ULID) (auth.Token, error) {
	ret := m.Called(subjectID)
	token, _ := ret.Get(0).(auth.Token)
	return token, ret.Error(1)
}

func (m *MockTokenIssuer) Validate(token string) (ulid.ULID, error) {
	ret := m.Called(token)
	id, _ := ret.Get(0).(ulid.ULID)
	return id, ret.Error(1)
}

// MockLoginLimiter mocks auth.LoginLimiter.
type MockLoginLimiter struct {
	mock.Mock
}

// NewMockLoginLimiter creates a mock whose expectations are asserted on cleanup.
func NewMockLoginLimiter(t TestingT) *MockLoginLimiter {
	m := &MockLoginLimiter{}
	register(&m.Mock, t)
	return m
}

func (m *MockLoginLimiter) CheckAndRecord(ctx context.Context, key string) (ratelimit.Decision, error) {
	ret := m.Called(ctx, key)
	d, _ := ret.Get(0).(ratelimit.Decision)
	return d, ret.Error(1)
}

// MockMetricsRecorder mocks auth.MetricsRecorder.
type MockMetricsRecorder struct {
	mock.Mock
}

// NewMockMetricsRecorder creates a mock whose expectations are asserted on cleanup.
func NewMockMetricsRecorder(t TestingT) *MockMetricsRecorder {
	m := &MockMetricsRecorder{}
	register(&m.Mock, t)
	return m
}

func (m *MockMetricsRecorder) RecordAuthOutcome(operation, outcome string) {
	m.Called(operation, outcome)
}

var (
	_ auth.UserRepository  = (*MockUserRepository)(nil)
	_ auth.SessionStore    = (*MockSessionStore)(nil)
	_ auth.PasswordHasher  = (*MockPasswordHasher)(nil)
	_ auth.TokenIssuer     = (*MockTokenIssuer)(nil)
	_ auth.LoginLimiter    = (*MockLoginLimiter)(nil)
	_ auth.MetricsRecorder = (*MockMetricsRecorder)(nil)
)
