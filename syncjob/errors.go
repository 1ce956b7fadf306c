package syncjob

import (
	"context"
	"errors"
	"strings"

	"github.com/onnwee/officer-sync/discord"
)

var (
	// ErrPermissionDenied means the token cannot read the channel. The channel is skipped.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRetriesExhausted means a page kept failing after the configured retries.
	ErrRetriesExhausted = errors.New("fetch retries exhausted")
)

// ValidationError rejects a request before any upstream call is made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorClass represents whether a failed page fetch should be retried.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient failure.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the request will not succeed if repeated.
	ErrorClassFatal
	// ErrorClassPermission indicates the token lacks access to the channel.
	ErrorClassPermission
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	case ErrorClassPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// ClassifyFetchError decides how the fetcher reacts to a failed page request.
//
// Permission: Discord codes 50001/50013 or HTTP 403.
// Fatal: context cancellation, unknown channel or invalid request (400/401/404).
// Retryable: rate limiting, 5xx, network failures and anything unrecognised.
func ClassifyFetchError(err error) ErrorClass {
	if err == nil {
		return ErrorClassRetryable
	}
	if errors.Is(err, ErrPermissionDenied) || discord.IsPermissionDenied(err) {
		return ErrorClassPermission
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassFatal
	}
	if discord.IsRateLimited(err) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())

	// Server errors first; their messages can contain words matched below.
	for _, p := range []string{"http 500", "http 502", "http 503", "http 504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}

	for _, p := range []string{"http 400", "http 401", "http 404", "unknown channel", "unauthorized", "invalid form body"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}

	return ErrorClassRetryable
}
