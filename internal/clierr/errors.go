// Package clierr defines the error taxonomy shared by every component and
// the single mapping from error kind to process exit code.
package clierr

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	// General covers anything not classified below.
	General Kind = iota
	// Schema: malformed method metadata, fatal at startup.
	Schema
	// Config: credential unresolved or malformed.
	Config
	// Coercion: bad CLI input; the user can fix and re-invoke.
	Coercion
	// Auth: rejected credential, never retried.
	Auth
	// RateLimit: provider throttling, surfaced with a wait hint.
	RateLimit
	// Transport: network-level failure, retried.
	Transport
	// Remote: provider-side failure; retried only if 5xx.
	Remote
	// Timeout: the call exceeded its ceiling.
	Timeout
	// Output: destination unwritable or unsafe.
	Output
	// NotFound: no method at the requested path.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Schema:
		return "schema error"
	case Config:
		return "config error"
	case Coercion:
		return "invalid input"
	case Auth:
		return "authentication failed"
	case RateLimit:
		return "rate limited"
	case Transport:
		return "network error"
	case Remote:
		return "API error"
	case Timeout:
		return "timed out"
	case Output:
		return "output error"
	case NotFound:
		return "not found"
	default:
		return "error"
	}
}

// Error carries a kind plus whatever context the failing component had:
// method path, HTTP status, retry-after hint, attempt count.
type Error struct {
	Kind       Kind
	Msg        string
	Err        error
	Status     int           // HTTP status for Remote errors
	RetryAfter time.Duration // provider wait hint for RateLimit
	Attempts   int           // attempts made before giving up
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match by kind: errors.Is(err, &Error{Kind: Transport}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies any error. Unclassified errors report General.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return General
}

// Exit codes. Stable contract: scripts depend on these values.
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitUsage     = 2
	ExitAuth      = 3
	ExitRateLimit = 4
	ExitNetwork   = 5
)

// ExitCode maps an error to the process exit code. A nil error is success.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case Schema, Config, Coercion:
		return ExitUsage
	case Auth:
		return ExitAuth
	case RateLimit:
		return ExitRateLimit
	case Transport, Timeout:
		return ExitNetwork
	default:
		// NotFound, Output, Remote and anything unclassified.
		return ExitGeneral
	}
}
