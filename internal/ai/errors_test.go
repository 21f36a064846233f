package ai_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/kiranshivaraju/tickettriage/internal/ai"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransportError(t *testing.T) {
	assert.ErrorIs(t, ai.ClassifyTransportError(context.DeadlineExceeded), ai.ErrInferenceTimeout)
	assert.ErrorIs(t, ai.ClassifyTransportError(fmt.Errorf("dial: %w", timeoutErr{})), ai.ErrInferenceTimeout)
	assert.ErrorIs(t, ai.ClassifyTransportError(errors.New("connection refused")), ai.ErrProviderUnavailable)
}

func TestStatusError(t *testing.T) {
	assert.ErrorIs(t, ai.StatusError("x", http.StatusServiceUnavailable), ai.ErrProviderUnavailable)
	assert.ErrorIs(t, ai.StatusError("x", http.StatusTooManyRequests), ai.ErrProviderUnavailable)
	assert.ErrorIs(t, ai.StatusError("x", http.StatusUnauthorized), ai.ErrInvalidResponse)
	assert.ErrorIs(t, ai.StatusError("x", http.StatusBadRequest), ai.ErrInvalidResponse)
}

func TestSentinelErrors(t *testing.T) {
	assert.NotEqual(t, ai.ErrProviderUnavailable, ai.ErrInferenceTimeout)
	assert.NotEqual(t, ai.ErrInferenceTimeout, ai.ErrInvalidResponse)
}
