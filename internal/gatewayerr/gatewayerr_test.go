package gatewayerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultsStatusRetryableAndCode(t *testing.T) {
	err := New(KindRateLimited, "too many requests")

	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, http.StatusTooManyRequests, err.Status)
	assert.True(t, err.Retryable)
	assert.Equal(t, "rate_limit_exceeded", err.Code)
	assert.NotZero(t, err.Timestamp)
}

func TestNew_ValidationDefaultsNotRetryable(t *testing.T) {
	err := New(KindValidation, "bad field")
	assert.False(t, err.Retryable)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "invalid_request", err.Code)
}

func TestNew_OptionsOverrideDefaults(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindUpstream, "upstream failed",
		WithProvider("openai"),
		WithCause(cause),
		WithCode("custom_code"),
		WithRetryable(false),
		WithStatus(599),
		WithRequestID("req-123"),
		WithDetails(map[string]interface{}{"foo": "bar"}),
	)

	assert.Equal(t, "openai", err.Provider)
	assert.Equal(t, cause, err.Cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "custom_code", err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, 599, err.Status)
	assert.Equal(t, "req-123", err.RequestID)
	assert.Equal(t, "bar", err.Details["foo"])
}

func TestError_ErrorString(t *testing.T) {
	withProvider := New(KindUpstream, "failed", WithProvider("anthropic"))
	assert.Contains(t, withProvider.Error(), "anthropic")

	withoutProvider := New(KindUpstream, "failed")
	assert.NotContains(t, withoutProvider.Error(), "provider=")
}

func TestNormalize_PassesThroughExistingError(t *testing.T) {
	original := New(KindCircuitOpen, "circuit open")
	normalized := Normalize(original, "openai", 0, "")
	assert.Same(t, original, normalized)
}

func TestNormalize_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Normalize(nil, "openai", 0, ""))
}

func TestNormalize_ByProviderErrorType(t *testing.T) {
	err := Normalize(errors.New("rate limited"), "openai", 0, "rate_limit_error")
	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, "openai", err.Provider)
}

func TestNormalize_ByHTTPStatusWhenTypeUnknown(t *testing.T) {
	err := Normalize(errors.New("server error"), "anthropic", http.StatusServiceUnavailable, "")
	assert.Equal(t, KindUpstream, err.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.True(t, err.Retryable, "503 should be marked retryable")
}

func TestNormalize_UnknownStatusFallsBackToUnknownKind(t *testing.T) {
	err := Normalize(errors.New("weird"), "", 418, "")
	assert.Equal(t, KindUnknown, err.Kind)
}

func TestToEnvelope(t *testing.T) {
	err := New(KindValidation, "bad input", WithRequestID("req-1"))
	env := err.ToEnvelope()

	assert.Equal(t, "invalid_request", env.Error.Code)
	assert.Equal(t, "bad input", env.Error.Message)
	assert.Equal(t, string(KindValidation), env.Error.Type)
	assert.Equal(t, "req-1", env.RequestID)
	assert.NotZero(t, env.Timestamp)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindTimeout, "timed out")))
	assert.False(t, IsRetryable(New(KindValidation, "bad")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestIsKind(t *testing.T) {
	err := New(KindCircuitOpen, "open")
	assert.True(t, IsKind(err, KindCircuitOpen))
	assert.False(t, IsKind(err, KindUpstream))
	assert.False(t, IsKind(errors.New("plain"), KindCircuitOpen))
}

func TestError_IsMatchesOnKind(t *testing.T) {
	a := New(KindCircuitOpen, "open A")
	b := New(KindCircuitOpen, "open B")
	c := New(KindUpstream, "upstream")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuth, http.StatusUnauthorized},
		{KindPermission, http.StatusForbidden},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindNotFound, http.StatusNotFound},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindUpstream, http.StatusInternalServerError},
		{KindCircuitOpen, http.StatusServiceUnavailable},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.kind))
	}
}
