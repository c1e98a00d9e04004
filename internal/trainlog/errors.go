package trainlog

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable reports a backend that is needed but not configured.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNotCoordinator reports a write-only resource requested off rank 0.
	ErrNotCoordinator = errors.New("operation restricted to the coordinator process")
)

// Unavailable wraps ErrBackendUnavailable with the remediation for backend.
func Unavailable(backend, remedy string) error {
	return fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, backend, remedy)
}

// BackendError is an I/O failure reported by a backend. It is returned to the
// caller as is; sinks never retry.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackend returns nil for a nil err, otherwise a *BackendError.
func WrapBackend(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}
