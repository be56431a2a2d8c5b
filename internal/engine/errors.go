package engine

import "errors"

var (
	// ErrNotFound indicates the requested memory is not in the store.
	ErrNotFound = errors.New("memory not found")

	// ErrDisabled is returned by ingestion when the engine is configured off.
	ErrDisabled = errors.New("memory engine disabled")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("memory engine closed")
)
