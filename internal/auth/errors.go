// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package auth

import "errors"

// Sentinel errors returned (wrapped) by user-record stores.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Error codes attached to oops errors produced by this package.
// The transport layer maps them to response statuses.
const (
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeTooManyAttempts    = "AUTH_TOO_MANY_ATTEMPTS"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeHashFailed         = "AUTH_HASH_FAILED"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeInvalidTier        = "AUTH_INVALID_TIER"
	CodeSignupFailed       = "AUTH_SIGNUP_FAILED"
	CodeLoginFailed        = "AUTH_LOGIN_FAILED"
	CodeLogoutFailed       = "AUTH_LOGOUT_FAILED"
	CodeSessionFailed      = "AUTH_SESSION_FAILED"
	CodeUpdateFailed       = "AUTH_UPDATE_FAILED"
)

// Messages shown to API callers for expected outcomes.
const (
	MsgDuplicateEmail     = "Email is already in use"
	MsgInvalidCredentials = "Email or password is wrong"
	MsgTooManyAttempts    = "Too many login attempts, please try again later"
	MsgUnauthorized       = "Not authorized"
	MsgUserNotFound       = "User not found"
)
