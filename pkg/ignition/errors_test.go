package ignition

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError("t", nil)))
	assert.True(t, IsThrottled(NewThrottledError("t", nil)))
	assert.True(t, IsConflict(NewConflictError("t", nil)))

	assert.False(t, IsTransient(NewPermanentError("p", nil)))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransientError("t", nil)))
	assert.True(t, IsRetryable(NewThrottledError("t", nil)))
	assert.False(t, IsRetryable(NewConflictError("t", nil)))
	assert.False(t, IsRetryable(NewPermanentError("t", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := NewPermanentError("droplet creation failed", errors.New("quota exceeded")).
		WithWorkspace("ws-1").
		WithStep("provision_droplet").
		WithCode(ErrCodeProvisionFailed)

	msg := err.Error()
	assert.Contains(t, msg, "permanent")
	assert.Contains(t, msg, "ws-1")
	assert.Contains(t, msg, "provision_droplet")
	assert.Contains(t, msg, "quota exceeded")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewTransientError("wrapper", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := NewThrottledError("rate limited", nil)
	wrapped := fmt.Errorf("calling droplet api: %w", inner)

	assert.True(t, IsThrottled(wrapped))
	assert.True(t, IsRetryable(wrapped))
}

func TestErrNotFoundMatchesByClassAndCode(t *testing.T) {
	fromStore := NewPermanentError("no row for workspace", nil).WithCode(ErrCodeNotFound)
	assert.True(t, errors.Is(fromStore, ErrNotFound))

	other := NewPermanentError("no row", nil).WithCode(ErrCodeStateStore)
	assert.False(t, errors.Is(other, ErrNotFound))
}

func TestRootMessagePrefersUnderlyingError(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := NewPermanentError("droplet creation failed", cause).WithCode(ErrCodeProvisionFailed)
	require.Equal(t, "quota exceeded", rootMessage(err))

	bare := NewPermanentError("no droplets available", nil)
	assert.Equal(t, bare.Error(), rootMessage(bare))

	plain := errors.New("plain failure")
	assert.Equal(t, "plain failure", rootMessage(plain))
}
