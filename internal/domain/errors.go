package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyResult   = errors.New("no results")
	ErrEmptyQuery    = errors.New("query is empty")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrInvalidConfig = errors.New("invalid configuration")
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindProviderUnavailable
	KindRateLimited
	KindMalformedResponse
	KindCacheCorruption
)

func (k ErrorKind) String() string {
	switch k {
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformedResponse:
		return "malformed_response"
	case KindCacheCorruption:
		return "cache_corruption"
	}
	return "none"
}

// ProviderError wraps a failure from an external collaborator with its kind.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(kind ErrorKind, provider string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the ErrorKind of err, defaulting to ProviderUnavailable
// for errors that carry no classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindNone
	}
	return KindProviderUnavailable
}

func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsRetryable reports whether a provider call that failed with err may be retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindProviderUnavailable, KindRateLimited:
		return true
	}
	return false
}

// KindForStatus maps an HTTP status code from a provider to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status >= 500, status == 408:
		return KindProviderUnavailable
	case status >= 400:
		return KindMalformedResponse
	}
	return KindNone
}
