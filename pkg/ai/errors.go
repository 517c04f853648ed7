package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout indicates the backend did not answer within the allotted time.
var ErrTimeout = errors.New("ai request timed out")

// ErrInvalidOutput indicates the backend answered with a payload that does not match the expected schema.
var ErrInvalidOutput = errors.New("ai response failed schema validation")

// Error codes shared by all providers.
const (
	ErrCodeAPIKey       = "invalid_api_key"
	ErrCodeRateLimit    = "rate_limit_exceeded"
	ErrCodeServiceDown  = "service_unavailable"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeEmpty        = "empty_response"
)

// ProviderError is returned when the upstream model call itself fails.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s (%v)", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// normalizeError maps context deadline errors onto ErrTimeout so callers can match a single sentinel.
func normalizeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return err
}
