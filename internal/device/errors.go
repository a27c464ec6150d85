package device

import (
	"errors"

	"github.com/rzbill/linelog/internal/ring"
)

var (
	// ErrClosed is returned by operations on a closed device or handle.
	ErrClosed = errors.New("device closed")
	// ErrPendingTooLarge is returned when a write would grow the pending
	// record past Options.MaxPendingBytes. The pending record is unchanged.
	ErrPendingTooLarge = errors.New("pending record too large")
	// ErrInterrupted is returned when lock acquisition is abandoned because
	// the caller's context ended. It wraps the context error.
	ErrInterrupted = errors.New("lock acquisition interrupted")
	// ErrNotFound is returned when an (entry, offset) pair does not address
	// a retained byte.
	ErrNotFound = ring.ErrNotFound
	// ErrInvalidOffset is returned by Handle.Seek for negative offsets.
	ErrInvalidOffset = errors.New("invalid offset")
)
