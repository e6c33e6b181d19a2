package model

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks network or upstream service failures.
	ErrTransport = errors.New("transport error")
	// ErrNotFound marks an asset that exists neither remotely nor in the cache.
	ErrNotFound = errors.New("asset not found")
)

// TransportError wraps a failed call to the remote source.
// errors.Is(err, ErrTransport) holds for every TransportError.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrTransport)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NotFoundError reports the identifier that could not be resolved.
func NotFoundError(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}
