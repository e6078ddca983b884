// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors handlers wrap domain failures with.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporarily unavailable")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

type mapping struct {
	target error
	status int
	title  string
}

var mappings = []mapping{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrConflict, http.StatusConflict, "Conflict"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrRateLimited, http.StatusTooManyRequests, "Too Many Requests"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Service Unavailable"},
}

// RespondError maps errors to RFC7807 responses. Unmapped errors become a
// 500 without detail so internals never leak.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range mappings {
		if !errors.Is(err, m.target) {
			continue
		}
		switch m.status {
		case http.StatusServiceUnavailable:
			w.Header().Set("Retry-After", "1")
		case http.StatusTooManyRequests:
			w.Header().Set("Retry-After", "60")
		}
		Problem(w, m.status, m.title, err.Error())
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// StatusOf reports the status RespondError would write for err.
func StatusOf(err error) int {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
