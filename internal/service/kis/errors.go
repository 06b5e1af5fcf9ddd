package kis

import (
	"errors"
	"fmt"
	"time"
)

// AuthenticationError means the token grant failed or returned an unusable body.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kis auth: %s: %v", e.Reason, e.Err)
	}
	return "kis auth: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RateLimitError is returned on HTTP 429. The client does not retry it;
// callers wait RetryAfter before trying again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("kis rate limited, retry after %s", e.RetryAfter)
}

// TimeoutError wraps a transport timeout that survived all retries.
type TimeoutError struct {
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("kis timeout after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NetworkError wraps a connection failure that survived all retries.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("kis network error after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ResponseError is any non-2xx, non-429 HTTP status.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("kis http %d: %s", e.StatusCode, e.Body)
}

// OrderRejectedError is a 2xx response whose rt_cd is not "0".
type OrderRejectedError struct {
	Code    string // rt_cd
	MsgCode string // msg_cd
	Message string // msg1
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("kis rejected (rt_cd=%s msg_cd=%s): %s", e.Code, e.MsgCode, e.Message)
}

// IsRetryable reports whether a caller-level retry could succeed later.
func IsRetryable(err error) bool {
	var (
		rl *RateLimitError
		to *TimeoutError
		ne *NetworkError
	)
	return errors.As(err, &rl) || errors.As(err, &to) || errors.As(err, &ne)
}

// Kind labels an error for metrics and per-symbol results.
func Kind(err error) string {
	var (
		ae *AuthenticationError
		rl *RateLimitError
		to *TimeoutError
		ne *NetworkError
		re *ResponseError
		or *OrderRejectedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &rl):
		return "rate_limit"
	case errors.As(err, &to):
		return "timeout"
	case errors.As(err, &ne):
		return "network"
	case errors.As(err, &re):
		return "http"
	case errors.As(err, &or):
		return "rejected"
	}
	return "other"
}
