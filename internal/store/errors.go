package store

import "errors"

var (
	// ErrStorageUnavailable means the local database could not be opened.
	// It is sticky for the lifetime of a Queue: offline writes for the
	// session are lost and later calls fail fast.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrStorageWriteFailed means a single local write did not persist.
	ErrStorageWriteFailed = errors.New("local storage write failed")

	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrNotFound is returned when a dead letter id does not exist.
	ErrNotFound = errors.New("not found")
)
