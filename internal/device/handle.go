package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handle is one open session on a device with its own read cursor. It
// implements io.ReadWriteCloser.
type Handle struct {
	id  string
	dev *Device

	mu     sync.Mutex
	pos    int64
	closed bool
}

// Open returns a new handle positioned at offset 0.
func (d *Device) Open() *Handle {
	return &Handle{id: uuid.NewString(), dev: d}
}

// ID identifies the handle in logs.
func (h *Handle) ID() string { return h.id }

// Offset returns the next global offset Read will use.
func (h *Handle) Offset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Seek moves the cursor to off. It is the only way to move the cursor
// backwards; reads only advance it. Offsets past the end are accepted and
// read as io.EOF.
func (h *Handle) Seek(off int64) error {
	if off < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.pos = off
	return nil
}

func (h *Handle) Read(p []byte) (int, error) {
	return h.ReadContext(context.Background(), p)
}

// ReadContext reads from the cursor and advances it by the bytes returned.
func (h *Handle) ReadContext(ctx context.Context, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	n, err := h.dev.ReadAt(ctx, p, h.pos)
	h.pos += int64(n)
	return n, err
}

func (h *Handle) Write(p []byte) (int, error) {
	return h.WriteContext(context.Background(), p)
}

// WriteContext appends p to the device's pending record. The cursor does not
// move.
func (h *Handle) WriteContext(ctx context.Context, p []byte) (int, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return h.dev.Write(ctx, p)
}

// Close ends the session. Device state is untouched.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}
