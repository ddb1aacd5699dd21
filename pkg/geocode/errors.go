package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

// Provider failure kinds.
const (
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindStatus      ErrorKind = "status"
	KindDecode      ErrorKind = "decode"
	KindQuery       ErrorKind = "query"
)

// ProviderError is a failed provider call. The resolver treats it as a miss
// for that one variant.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// statusError builds a ProviderError from a non-200 HTTP status.
func statusError(provider string, code int) *ProviderError {
	kind := KindStatus
	if code == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: code}
}

// transportError builds a ProviderError from an http.Client failure.
func transportError(provider string, err error) *ProviderError {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// IsTransient reports whether err looks like a failure that may clear on its
// own: timeouts, rate limiting, 5xx, connection resets.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindTimeout, KindRateLimited, KindNetwork:
			return true
		case KindStatus:
			return pe.StatusCode == http.StatusRequestTimeout || pe.StatusCode >= 500
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset by peer", "broken pipe", "i/o timeout", "no such host"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
