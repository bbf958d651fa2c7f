// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Package auth provides the authentication and session lifecycle for contactbook.
//
// # Components
//
//   - PasswordHasher - salted argon2id hashing, bcrypt verification for legacy hashes
//   - TokenIssuer - signed bearer tokens with a fixed lifetime
//   - SessionStore - the single active token per user, kept on the user record
//   - Service - signup, login, logout, current session and subscription updates
//   - Guard - resolves a bearer token to an Identity or rejects it
//
// # Single active token
//
// Login overwrites the user's active token and logout clears it. A token that
// no longer matches is rejected by the Guard even when its signature and
// expiry are valid. Concurrent writes resolve last-write-wins in the store.
//
// Errors carry oops codes (see errors.go) which the transport maps to statuses.
package auth
