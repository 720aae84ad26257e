package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestNewGatewayRateLimiter(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 60, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())
	assert.NotNil(t, rl)
}

func TestGatewayRateLimiter_Check_Disabled(t *testing.T) {
	config := &RateLimitConfig{Enabled: false, RequestsPerMinute: 1}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	result := rl.Check("test-key")
	assert.True(t, result.Allowed)
}

func TestGatewayRateLimiter_Check_WithinLimit(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 60, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	for i := 0; i < 5; i++ {
		result := rl.Check("test-key")
		assert.True(t, result.Allowed)
	}
}

func TestGatewayRateLimiter_Check_ExceedLimit(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 2, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	for i := 0; i < 2; i++ {
		result := rl.Check("test-key")
		assert.True(t, result.Allowed)
	}

	result := rl.Check("test-key")
	assert.False(t, result.Allowed)
	assert.Equal(t, "minute_limit_exceeded", result.Reason)
}

func TestGatewayRateLimiter_Check_DifferentKeysIndependent(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	assert.True(t, rl.Check("key1").Allowed)
	assert.True(t, rl.Check("key2").Allowed)
	assert.False(t, rl.Check("key1").Allowed)
}

func TestGatewayRateLimiter_PolicyFromApiKeyStore(t *testing.T) {
	keys := NewApiKeyStore(KeyRateLimit{RPM: 1, RPH: 100, Concurrent: 1})
	keys.Put(&ApiKeyInfo{Key: "sk-test", RateLimit: KeyRateLimit{RPM: 1, RPH: 100, Concurrent: 1}, Active: true})

	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1000, RequestsPerHour: 100000, Concurrent: 1000}
	rl := NewGatewayRateLimiter(config, keys, testLogger())

	assert.True(t, rl.Check("sk-test").Allowed)
	assert.False(t, rl.Check("sk-test").Allowed, "per-key policy from the store should override the config default")
}

func TestGatewayRateLimiter_Reset(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	assert.True(t, rl.Check("test-key").Allowed)
	assert.False(t, rl.Check("test-key").Allowed)

	rl.Reset("test-key")
	assert.True(t, rl.Check("test-key").Allowed)
}

func TestGatewayRateLimiter_StartFinishRequest_Concurrency(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1000, RequestsPerHour: 100000, Concurrent: 1}
	rl := NewGatewayRateLimiter(config, nil, testLogger())
	defer rl.Stop()

	rl.StartRequest("test-key")
	status := rl.Status("test-key")
	assert.Equal(t, 1, status.Concurrent.Used)

	rl.FinishRequest("test-key")
	status = rl.Status("test-key")
	assert.Equal(t, 0, status.Concurrent.Used)
}

func TestGatewayRateLimiter_Status(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 60, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	rl.Check("test-key")
	rl.Check("test-key")

	status := rl.Status("test-key")
	assert.Equal(t, 60, status.PerMinute.Limit)
	assert.Equal(t, 2, status.PerMinute.Used)
}

func TestGatewayRateLimiter_Stop(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 60}
	rl := NewGatewayRateLimiter(config, nil, testLogger())
	rl.Stop()
}

func TestRateLimitMiddleware_SetsHeadersAndAllows(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 60, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	handlerCalled := false
	handler := RateLimitMiddleware(rl, func(r *http.Request) string { return "test-key" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true }),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, handlerCalled)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 3600, Concurrent: 10}
	rl := NewGatewayRateLimiter(config, nil, testLogger())
	extractor := func(r *http.Request) string { return "test-key" }

	handlerCalled := 0
	handler := RateLimitMiddleware(rl, extractor)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled++ }),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)

	handler.ServeHTTP(httptest.NewRecorder(), req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, 1, handlerCalled)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_EmptyKeySkipsLimiting(t *testing.T) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	rl := NewGatewayRateLimiter(config, nil, testLogger())

	handlerCalled := false
	handler := RateLimitMiddleware(rl, func(r *http.Request) string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true }),
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, handlerCalled)
}

func TestDefaultKeyExtractor_FallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	key := DefaultKeyExtractor(req)
	assert.Contains(t, key, "ip:")
}

func TestAPIKeyExtractor_MasksToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sk-1234567890abcdef")

	key := APIKeyExtractor(req)
	assert.Contains(t, key, "key:")
	assert.NotContains(t, key, "1234567890abcdef")
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"normal key", "sk-1234567890abcdef", "sk-1****"},
		{"short key", "short", "****"},
		{"exactly 8 chars", "12345678", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskKey(tt.key))
		})
	}
}

func TestMaxInt(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want int
	}{
		{"a bigger", 10, 5, 10},
		{"b bigger", 5, 10, 10},
		{"equal", 7, 7, 7},
		{"negative", -5, -10, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maxInt(tt.a, tt.b))
		})
	}
}

func BenchmarkGatewayRateLimiter_Check(b *testing.B) {
	config := &RateLimitConfig{Enabled: true, RequestsPerMinute: 1000000, RequestsPerHour: 100000000, Concurrent: 1000000}
	rl := NewGatewayRateLimiter(config, nil, testLogger())
	defer rl.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Check("bench-key")
	}
	_ = time.Now()
}
