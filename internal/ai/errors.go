package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// ClassifyTransportError maps errors from an HTTP round trip to the sentinel errors.
func ClassifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// StatusError maps a non-200 provider response. Rate limiting and server
// errors are retryable; anything else means the request itself was rejected.
func StatusError(provider string, status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %s returned status %d", ErrProviderUnavailable, provider, status)
	}
	return fmt.Errorf("%w: %s returned status %d", ErrInvalidResponse, provider, status)
}
