// Package gatewayerr implements the Error Normalizer: a single typed error
// shape that every layer of the gateway (providers, router, breaker, retry,
// HTTP handlers) converts into before it crosses a boundary.
package gatewayerr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error by what the caller should do about it, not by
// which subsystem raised it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "authentication"
	KindPermission    Kind = "permission"
	KindRateLimited   Kind = "rate_limited"
	KindNotFound      Kind = "not_found"
	KindTimeout       Kind = "timeout"
	KindUpstream      Kind = "upstream"
	KindCircuitOpen   Kind = "circuit_open"
	KindUnknown       Kind = "unknown"
)

// Error is the normalized shape every error takes once it reaches a
// component boundary. It implements the standard error interface and
// supports errors.Is/errors.As via Unwrap.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Provider   string
	Details    map[string]interface{}
	Retryable  bool
	Status     int
	RequestID  string
	Timestamp  time.Time
	Cause      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (provider=%s)", e.Kind, e.Message, e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Envelope is the wire shape returned to HTTP clients, per spec §6/§3.
type Envelope struct {
	Error     EnvelopeError `json:"error"`
	RequestID string        `json:"request_id,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

type EnvelopeError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Type      string                 `json:"type"`
	Provider  string                 `json:"provider,omitempty"`
	Param     interface{}            `json:"param"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Status    int                    `json:"status"`
}

// New builds a normalized error of a given kind. Status and retryability
// default from the kind unless overridden by options.
func New(kind Kind, message string, opts ...Option) *Error {
	e := &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
	e.Retryable = defaultRetryable(kind)
	e.Status = StatusFor(kind)
	e.Code = defaultCode(kind)
	for _, opt := range opts {
		opt(e)
	}
	if e.Status == 0 {
		e.Status = StatusFor(e.Kind)
	}
	return e
}

type Option func(*Error)

func WithProvider(p string) Option { return func(e *Error) { e.Provider = p } }
func WithCause(err error) Option   { return func(e *Error) { e.Cause = err } }
func WithCode(code string) Option  { return func(e *Error) { e.Code = code } }
func WithRetryable(r bool) Option  { return func(e *Error) { e.Retryable = r } }
func WithStatus(status int) Option { return func(e *Error) { e.Status = status } }
func WithDetails(d map[string]interface{}) Option {
	return func(e *Error) { e.Details = d }
}
func WithRequestID(id string) Option { return func(e *Error) { e.RequestID = id } }

func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindRateLimited, KindTimeout, KindUpstream:
		return true
	default:
		return false
	}
}

func defaultCode(kind Kind) string {
	switch kind {
	case KindValidation:
		return "invalid_request"
	case KindAuth:
		return "invalid_api_key"
	case KindPermission:
		return "permission_denied"
	case KindRateLimited:
		return "rate_limit_exceeded"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "server_error"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown_error"
	}
}

// StatusFor derives the HTTP status code for a kind when one was not
// explicitly supplied, per spec §4.9.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream:
		return http.StatusInternalServerError
	case KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// providerErrorKind maps a provider-reported error type string (the kind of
// thing OpenAI/Anthropic SDKs surface in their error bodies) to a Kind.
var providerErrorKind = map[string]Kind{
	"rate_limit":        KindRateLimited,
	"rate_limit_error":  KindRateLimited,
	"invalid_request":   KindValidation,
	"invalid_request_error": KindValidation,
	"auth_failed":       KindAuth,
	"authentication_error": KindAuth,
	"permission_denied": KindPermission,
	"permission_error":  KindPermission,
	"not_found":         KindNotFound,
	"not_found_error":   KindNotFound,
	"server_error":      KindUpstream,
	"api_error":         KindUpstream,
	"overloaded":        KindUpstream,
	"overloaded_error":  KindUpstream,
	"timeout":           KindTimeout,
}

// Normalize converts any error from the stack into an *Error. If err is
// already an *Error it is returned unchanged (idempotent on its own
// output shape, per spec §8). httpStatus is the upstream HTTP status if
// known, or 0.
func Normalize(err error, providerName string, httpStatus int, providerType string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	kind, ok := providerErrorKind[providerType]
	if !ok {
		kind = statusToKind(httpStatus)
	}

	opts := []Option{WithCause(err)}
	if providerName != "" {
		opts = append(opts, WithProvider(providerName))
	}
	if httpStatus != 0 {
		opts = append(opts, WithStatus(httpStatus))
	}
	if retryableStatus(httpStatus) {
		opts = append(opts, WithRetryable(true))
	}

	return New(kind, err.Error(), opts...)
}

func statusToKind(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindUpstream
	default:
		return KindUnknown
	}
}

func retryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ToEnvelope renders an *Error into the wire Envelope shape.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{
		Error: EnvelopeError{
			Code:      e.Code,
			Message:   e.Message,
			Type:      string(e.Kind),
			Provider:  e.Provider,
			Param:     nil,
			Details:   e.Details,
			Retryable: e.Retryable,
			Status:    e.Status,
		},
		RequestID: e.RequestID,
		Timestamp: e.Timestamp.Unix(),
	}
}

// IsRetryable reports whether err, normalized, is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Is lets errors.Is match any *Error of the same Kind, e.g.
// errors.Is(err, gatewayerr.New(gatewayerr.KindCircuitOpen, "")).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}
