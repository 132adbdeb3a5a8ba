package storage

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persisted key/value substrate the pipeline resumes from.
// Values are opaque bytes; the store never interprets them.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	// Get reports found=false for an absent key; err is reserved for
	// backend failures.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Clear removes every key the store holds, including keys written by
	// earlier, unrelated runs.
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// ErrInvalidKey is returned for keys a backend cannot address.
var ErrInvalidKey = errors.New("invalid key")

// Error records a failed store operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}
