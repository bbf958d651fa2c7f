// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Package web is the HTTP transport for the auth subsystem: routing, request
// decoding, the response envelope and the mapping from error codes to statuses.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/contactbook/contactbook/internal/auth"
	"github.com/contactbook/contactbook/pkg/errutil"
)

// CodeRequestInvalid marks malformed or oversized request bodies.
const CodeRequestInvalid = "REQUEST_INVALID"

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

const msgInternal = "Internal server error"

// envelope is the body of every JSON response.
type envelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Code: status, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "error", Code: status, Message: message})
}

// statusFor maps an error code to its response status and caller-facing message.
// Codes not listed are server failures.
func statusFor(err error) (int, string) {
	switch errutil.Code(err) {
	case auth.CodeDuplicateEmail:
		return http.StatusConflict, auth.MsgDuplicateEmail
	case auth.CodeInvalidCredentials:
		return http.StatusUnauthorized, auth.MsgInvalidCredentials
	case auth.CodeTooManyAttempts:
		return http.StatusTooManyRequests, auth.MsgTooManyAttempts
	case auth.CodeUnauthorized, auth.CodeInvalidToken:
		return http.StatusUnauthorized, auth.MsgUnauthorized
	case auth.CodeUserNotFound:
		return http.StatusNotFound, auth.MsgUserNotFound
	case auth.CodeInvalidEmail, auth.CodeEmptyPassword, auth.CodeInvalidTier, CodeRequestInvalid:
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeError renders err. Server failures are logged with their code and
// context; the caller only sees a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		errutil.LogError(logger.With("request_path", r.URL.Path), "request failed", err)
	}
	if status == http.StatusTooManyRequests {
		setRetryHeaders(w, err)
	}
	writeErrorMessage(w, status, message)
}

func setRetryHeaders(w http.ResponseWriter, err error) {
	if v, ok := errutil.ContextValue(err, "retry_after_seconds"); ok {
		if secs, ok := v.(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(secs)*time.Second).Unix(), 10))
		}
	}
	if v, ok := errutil.ContextValue(err, "limit"); ok {
		if limit, ok := v.(int); ok {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", "0")
		}
	}
}

// decodeJSON reads one JSON object of at most MaxBodyBytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(CodeRequestInvalid).With("limit", tooLarge.Limit).Errorf("request body too large")
		}
		return oops.Code(CodeRequestInvalid).Errorf("request body must be a JSON object")
	}
	return nil
}
