package main

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUser is returned when a status update targets a username
	// outside the seeded set.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnsupportedMediaType is returned for uploads whose declared MIME
	// type is not in the voice allow-list.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrPayloadTooLarge is returned for uploads exceeding the size cap.
	ErrPayloadTooLarge = errors.New("payload too large")
)

var (
	errNotLoggedIn    = errors.New("not logged in")
	errSenderMismatch = errors.New("sender does not match logged-in user")
)

func errInvalidPayload(event string) error {
	return fmt.Errorf("invalid %s payload", event)
}

// StorageError wraps a failure of the underlying persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
