package agenda

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced task or event is not in
	// the agenda.
	ErrNotFound = errors.New("item not found")

	// ErrClosed is returned for remote results that arrive after Close.
	// The result is dropped.
	ErrClosed = errors.New("agenda closed")

	// ErrTasksReadOnly is returned by task edits while the stored task
	// list could not be read and has not been kept aside.
	ErrTasksReadOnly = errors.New("stored tasks could not be read; task changes are disabled")
)

// StorageReadError reports persisted tasks that could not be parsed. The
// agenda carries on with an empty task list. Backup names the key the raw
// data was copied to; it is empty when the copy failed.
type StorageReadError struct {
	Key    string
	Backup string
	Err    error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("read %q: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }
