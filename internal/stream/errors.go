package stream

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRange         = errors.New("invalid or unsatisfiable range")
	ErrNotFound             = errors.New("file not found")
	ErrTransientUnavailable = errors.New("backing store temporarily unavailable")
	ErrUpstreamFailure      = errors.New("upstream fetch failed")
)

// TransientError carries the wait advised by the backing store (flood
// control, connection still establishing). errors.Is matches it against
// ErrTransientUnavailable.
type TransientError struct {
	Wait time.Duration
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error (retry in %s): %v", e.Wait, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransientUnavailable }
