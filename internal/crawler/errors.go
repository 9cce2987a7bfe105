package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps DNS, connect and timeout failures from the provider client.
	ErrTransport = errors.New("provider transport error")
	// ErrMalformedResponse marks provider JSON that cannot be interpreted. Never retried.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrRetriesExhausted is returned once every bootstrap attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrUnauthorized means the provider rejected the credentials (status 401).
	ErrUnauthorized = errors.New("provider rejected credentials")
	// ErrStore wraps persistence failures.
	ErrStore = errors.New("store error")
	// ErrDuplicateMeasurement is reported when (station, timestamp) already exists.
	ErrDuplicateMeasurement = errors.New("duplicate measurement")
)

// ProviderStatusError is a non-success, non-401 provider status code.
type ProviderStatusError struct {
	Code int
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider status %d", e.Code)
}

// StatusError converts a provider status code into an error, or nil for StatusOK.
func StatusError(code int) error {
	switch code {
	case StatusOK:
		return nil
	case StatusUnauthorized:
		return ErrUnauthorized
	default:
		return &ProviderStatusError{Code: code}
	}
}
