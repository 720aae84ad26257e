// Package retry implements the Retry Policy (C6): exponential backoff with
// jitter, bounded attempts, and retryable-error classification, built on
// top of github.com/cenkalti/backoff/v5.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-waf/internal/gatewayerr"
)

// Policy configures one retry loop.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
	Jitter      bool          `yaml:"jitter"`

	// RetryableKinds restricts retries to the given error kinds. Empty
	// means "retry whatever gatewayerr.IsRetryable says is retryable".
	RetryableKinds []gatewayerr.Kind `yaml:"retryable_errors"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Factor:      2.0,
		Jitter:      true,
	}
}

// Outcome reports how many attempts a retried operation actually took.
type Outcome struct {
	Attempts int
	Err      error
}

// OnRetry, when set, is invoked before each delay between attempts.
type OnRetry func(attempt int, err error, delay time.Duration)

// Do executes fn under the policy. fn's error, if any, is classified via
// isRetryable (or gatewayerr.IsRetryable if the policy names no explicit
// kinds); non-retryable errors return immediately. The policy never
// retries a circuit_open error — the breaker already decided that call
// should move on, not be repeated.
func Do(ctx context.Context, policy Policy, onRetry OnRetry, fn func() error) Outcome {
	attempts := 0

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = policy.BaseDelay
	boff.MaxInterval = policy.MaxDelay
	boff.Multiplier = policy.Factor
	if !policy.Jitter {
		boff.RandomizationFactor = 0
	}

	operation := func() (struct{}, error) {
		attempts++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if gatewayerr.IsKind(err, gatewayerr.KindCircuitOpen) {
			return struct{}{}, backoff.Permanent(err)
		}
		if !isRetryable(policy, err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(boff),
		backoff.WithMaxTries(uint(maxTries(policy))),
	}
	if onRetry != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(func(err error, delay time.Duration) {
			onRetry(attempts, err, delay)
		}))
	}

	_, err := backoff.Retry(ctx, operation, retryOpts...)
	return Outcome{Attempts: attempts, Err: err}
}

func maxTries(policy Policy) int {
	if policy.MaxAttempts <= 0 {
		return 1
	}
	return policy.MaxAttempts
}

func isRetryable(policy Policy, err error) bool {
	if len(policy.RetryableKinds) == 0 {
		return gatewayerr.IsRetryable(err)
	}
	for _, k := range policy.RetryableKinds {
		if gatewayerr.IsKind(err, k) {
			return true
		}
	}
	return false
}

// LogOnRetry returns an OnRetry that logs each retry attempt the way the
// rest of this gateway logs, via logrus.
func LogOnRetry(logger *logrus.Logger, provider string) OnRetry {
	return func(attempt int, err error, delay time.Duration) {
		logger.WithFields(logrus.Fields{
			"provider": provider,
			"attempt":  attempt,
			"delay":    delay,
			"error":    err,
		}).Debug("Retrying upstream call")
	}
}
