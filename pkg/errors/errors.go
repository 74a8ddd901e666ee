// Package errors defines the sentinel errors shared across the engine and
// maps them onto HTTP statuses and stable error codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrEmptyQuery       = fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	ErrQueryTooLong     = fmt.Errorf("%w: query is too long", ErrInvalidQuery)
	ErrAnalyzerFailure  = errors.New("analyzer failure")
	ErrIndexCorruption  = errors.New("index corruption")
	ErrUnknownProfile   = errors.New("unknown language profile")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// kinds is checked in order; the first sentinel err wraps decides. The
// query sentinels precede ErrInvalidQuery so the more specific code wins.
var kinds = []struct {
	sentinel error
	code     string
	status   int
}{
	{ErrDocumentNotFound, "not_found", http.StatusNotFound},
	{ErrEmptyQuery, "empty_query", http.StatusBadRequest},
	{ErrQueryTooLong, "query_too_long", http.StatusBadRequest},
	{ErrInvalidQuery, "invalid_query", http.StatusBadRequest},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrUnknownProfile, "unknown_profile", http.StatusBadRequest},
	{ErrTimeout, "timeout", http.StatusServiceUnavailable},
	{ErrAnalyzerFailure, "analyzer_failure", http.StatusInternalServerError},
	{ErrIndexCorruption, "index_corruption", http.StatusInternalServerError},
}

// Code returns a stable identifier for err's kind, "internal" when none
// matches.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	return "internal"
}

func HTTPStatusCode(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may retry the operation unchanged.
// Only timeouts qualify; invalid queries and corruption never heal on retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
