// Package platform defines the contract every ad platform adapter
// satisfies, the shared HTTP client with retry and backoff, and the
// closed error taxonomy the rest of the system keys retry-vs-abort
// decisions on.
package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/adstack/adsync/internal/ads"
)

// Kind is the closed error taxonomy. Every error that crosses the
// adapter boundary carries exactly one Kind.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindRateLimit     Kind = "rate_limit"
	KindNotFound      Kind = "not_found"
	KindBadRequest    Kind = "bad_request"
	KindServerError   Kind = "server_error"
	KindNetwork       Kind = "network"
	KindConfiguration Kind = "configuration"
	KindUnknown       Kind = "unknown"
)

// Retryable reports whether calls failing with this kind may be retried.
// Auth, BadRequest, NotFound, and Configuration errors are terminal.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServerError, KindNetwork:
		return true
	default:
		return false
	}
}

// userMessages maps each kind to the message surfaced to the dashboard.
// Deliberately generic: native error bodies may contain identifiers the
// user should not see and are kept in the wrapped cause only.
var userMessages = map[Kind]string{
	KindAuth:          "Authentication failed. Please reconnect this platform.",
	KindRateLimit:     "The platform is rate limiting requests. Sync will retry automatically.",
	KindNotFound:      "The requested resource was not found on the platform.",
	KindBadRequest:    "The platform rejected the request.",
	KindServerError:   "The platform reported a server error. Sync will retry automatically.",
	KindNetwork:       "Could not reach the platform. Sync will retry automatically.",
	KindConfiguration: "This platform is not configured correctly.",
	KindUnknown:       "An unexpected error occurred while talking to the platform.",
}

// Error is the classified error type every adapter returns. It wraps
// the underlying cause for errors.Is/As while exposing the taxonomy
// fields callers branch on. Secret material must never appear in Msg.
type Error struct {
	Platform ads.Platform
	Kind     Kind
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Msg)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Platform, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error's kind may be retried.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// UserMessage returns the dashboard-safe message for the error.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}

	return userMessages[KindUnknown]
}

// NewError builds a classified error.
func NewError(p ads.Platform, kind Kind, msg string, cause error) *Error {
	return &Error{Platform: p, Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the Kind from any error. Unclassified errors report
// KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// platformCodes maps platform-native error codes to kinds. The same
// logical failure is signaled by different codes on each platform, so
// classification consults this table before the HTTP status fallback.
var platformCodes = map[ads.Platform]map[string]Kind{
	ads.PlatformGoogle: {
		"AUTHENTICATION_ERROR": KindAuth,
		"AUTHORIZATION_ERROR":  KindAuth,
		"OAUTH_TOKEN_REVOKED":  KindAuth,
		"RESOURCE_EXHAUSTED":   KindRateLimit,
		"QUOTA_ERROR":          KindRateLimit,
		"INVALID_ARGUMENT":     KindBadRequest,
		"RESOURCE_NOT_FOUND":   KindNotFound,
		"INTERNAL_ERROR":       KindServerError,
		"DEADLINE_EXCEEDED":    KindServerError,
	},
	ads.PlatformMeta: {
		"190": KindAuth,      // invalid or expired access token
		"10":  KindAuth,      // permission denied
		"200": KindAuth,      // permissions error family
		"4":   KindRateLimit, // application request limit
		"17":  KindRateLimit, // user request limit
		"32":  KindRateLimit, // page request limit
		"100": KindBadRequest,
		"803": KindNotFound, // unknown object
		"1":   KindServerError,
		"2":   KindServerError,
	},
	ads.PlatformKakao: {
		"-401": KindAuth,
		"-10":  KindRateLimit,
		"-2":   KindBadRequest,
		"-813": KindNotFound,
		"-500": KindServerError,
	},
	ads.PlatformNaver: {
		"1002": KindAuth,      // invalid signature
		"1018": KindAuth,      // expired or revoked key
		"1201": KindRateLimit, // request limit exceeded
		"1004": KindBadRequest,
		"1030": KindNotFound,
	},
	ads.PlatformCoupang: {
		"UNAUTHORIZED":  KindAuth,
		"TOO_MANY_REQ":  KindRateLimit,
		"INVALID_PARAM": KindBadRequest,
		"NOT_FOUND":     KindNotFound,
	},
}

// classifyStatus is the common HTTP fallback used when a platform code
// is absent or unrecognized.
func classifyStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return KindBadRequest
	default:
		if status >= http.StatusInternalServerError {
			return KindServerError
		}

		return KindUnknown
	}
}

// Classify maps a platform response to a Kind. nativeCode is the
// platform's own error code (empty when the body had none); status is
// the HTTP status. The per-platform table wins over the HTTP fallback
// because several platforms tunnel errors through 200 or 400 responses.
func Classify(p ads.Platform, status int, nativeCode string) Kind {
	if nativeCode != "" {
		if table, ok := platformCodes[p]; ok {
			if kind, ok := table[nativeCode]; ok {
				return kind
			}
		}
	}

	return classifyStatus(status)
}
