package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every *TimeoutError through errors.Is.
var ErrTimeout = errors.New("remote call timed out")

// TimeoutError is returned when an attempt exceeds its deadline.
// Timeouts are never retried.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Attempt  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s (attempt %d)", e.Endpoint, e.Timeout, e.Attempt)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// StatusError is the last error of a call whose attempts all failed with a
// 5xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request to %s failed with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("request to %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
