package security

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
	"github.com/tributary-ai/llm-router-waf/internal/ratelimit"
)

// RateLimitConfig holds rate limiting configuration defaults, used when a
// key has no per-key policy on file in the ApiKeyStore.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	Concurrent        int  `yaml:"concurrent"`
}

// GatewayRateLimiter adapts the C4 sliding-window Limiter to the HTTP
// middleware surface, resolving each key's policy from the ApiKeyStore
// when available and falling back to RateLimitConfig's defaults. It
// replaces the single-window token bucket this file used to carry.
type GatewayRateLimiter struct {
	config  *RateLimitConfig
	limiter *ratelimit.Limiter
	keys    *ApiKeyStore
	logger  *logrus.Logger
}

func NewGatewayRateLimiter(config *RateLimitConfig, keys *ApiKeyStore, logger *logrus.Logger) *GatewayRateLimiter {
	return &GatewayRateLimiter{
		config:  config,
		limiter: ratelimit.NewLimiter(logger),
		keys:    keys,
		logger:  logger,
	}
}

func (g *GatewayRateLimiter) policyFor(key string) ratelimit.Policy {
	if g.keys != nil {
		if info, ok := g.keys.Lookup(key); ok {
			return ratelimit.Policy{
				RPM:        info.RateLimit.RPM,
				RPH:        info.RateLimit.RPH,
				Concurrent: info.RateLimit.Concurrent,
			}
		}
	}
	return ratelimit.Policy{
		RPM:        g.config.RequestsPerMinute,
		RPH:        g.config.RequestsPerHour,
		Concurrent: g.config.Concurrent,
	}
}

// Check runs the two-window + concurrency check (spec §4.4's check op).
func (g *GatewayRateLimiter) Check(key string) ratelimit.Result {
	if !g.config.Enabled {
		return ratelimit.Result{Allowed: true}
	}
	return g.limiter.Check(key, g.policyFor(key))
}

// StartRequest / FinishRequest wrap the concurrent-slot accounting that
// the stream relay (§4.7) acquires and releases around a streamed call.
func (g *GatewayRateLimiter) StartRequest(key string) {
	g.limiter.StartRequest(key, g.policyFor(key))
}

func (g *GatewayRateLimiter) FinishRequest(key string) {
	g.limiter.FinishRequest(key)
}

func (g *GatewayRateLimiter) Status(key string) ratelimit.Status {
	return g.limiter.GetStatus(key)
}

func (g *GatewayRateLimiter) Reset(key string) {
	g.limiter.Reset(key)
}

func (g *GatewayRateLimiter) Stop() {
	g.limiter.Stop()
}

// RateLimitMiddleware enforces the per-minute/per-hour windows on every
// request. The concurrent slot is acquired separately by the streaming
// handler around the provider call, per spec §4.7 step 3.
func RateLimitMiddleware(rl *GatewayRateLimiter, keyExtractor func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result := rl.Check(key)
			status := rl.Status(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(status.PerMinute.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(maxInt(0, status.PerMinute.Limit-status.PerMinute.Used)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(status.PerMinute.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := time.Until(status.PerMinute.ResetAt)
				if retryAfter < 0 {
					retryAfter = time.Second
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))

				env := gatewayerr.New(gatewayerr.KindRateLimited, fmt.Sprintf("rate limit exceeded: %s", result.Reason),
					gatewayerr.WithCode(result.Reason)).ToEnvelope()

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				writeJSON(w, env)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DefaultKeyExtractor extracts rate limiting key from request
func DefaultKeyExtractor(r *http.Request) string {
	if authInfo, ok := GetAuthInfo(r.Context()); ok {
		return "user:" + authInfo.UserID
	}
	return "ip:" + getClientIPFromRequest(r)
}

// APIKeyExtractor extracts rate limiting key from API key
func APIKeyExtractor(r *http.Request) string {
	token := extractToken(r)
	if token != "" {
		return "key:" + maskKey(token)
	}
	return "ip:" + getClientIPFromRequest(r)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****"
}
