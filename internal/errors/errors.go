// Package errors defines the sentinel error values the gateway's error
// table (spec.md §7) maps to HTTP status and disposition, plus small
// wrapping helpers so callers attach context without losing the ability
// to errors.Is/As against these sentinels.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTenant is returned when a registry lookup by
	// (clientId, tokenUri) finds nothing.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrHostPolicyViolation is returned when a redirectBackUri fails the
	// tenant's host allow-list or TLS policy check.
	ErrHostPolicyViolation = errors.New("redirect back host policy violation")

	// ErrMalformedEnvelope covers every way the state parameter can fail
	// to decode: bad base64, bad JSON, missing required fields.
	ErrMalformedEnvelope = errors.New("malformed state envelope")

	// ErrMultipleLocalConfig is returned by the config decoder when more
	// than one local-config object appears in the document.
	ErrMultipleLocalConfig = errors.New("multiple local configurations")

	// ErrConfigRead covers file I/O failures during a config reload.
	ErrConfigRead = errors.New("config read failed")

	// ErrConfigDecode covers decode failures during a config reload.
	ErrConfigDecode = errors.New("config decode failed")

	// ErrListenerBind covers a failed attempt to bind the HTTP listener.
	ErrListenerBind = errors.New("listener bind failed")
)

// Wrapf wraps err with additional context, preserving the chain so
// errors.Is/As against the sentinels above still works.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// sentinelError lets a call site keep an exact, wire-contract error
// message while still chaining to a sentinel for Is.
type sentinelError struct {
	msg      string
	sentinel error
}

func (e *sentinelError) Error() string { return e.msg }
func (e *sentinelError) Unwrap() error { return e.sentinel }

// WithSentinel returns an error whose Error() is exactly msg, with
// sentinel in its chain so callers can branch on it with Is without msg
// gaining any wrapping text.
func WithSentinel(sentinel error, msg string) error {
	return &sentinelError{msg: msg, sentinel: sentinel}
}
