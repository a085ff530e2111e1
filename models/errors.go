// ABOUTME: This file defines the typed error taxonomy shared across drivers and services
// ABOUTME: Rate-limit is a distinct variant carrying the set of exhausted hosts

package models

import (
	"errors"
	"fmt"
	"strings"
)

// Source adapter error variants. Everything that is not a rate limit or an
// auth failure collapses into generic wrapped errors.
var (
	ErrAuthInvalid = errors.New("source authentication invalid: rotation exhausted")
	ErrNotFound    = errors.New("not found")
)

// RateLimitError signals that every source host returned a rate-limit
// response. The account that triggered it enters cooldown; the run continues.
type RateLimitError struct {
	Hosts []string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("source rate limited on all hosts: %s", strings.Join(e.Hosts, ", "))
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuthInvalid reports whether err is (or wraps) an auth rotation failure.
func IsAuthInvalid(err error) bool {
	return errors.Is(err, ErrAuthInvalid)
}
