package ring

import (
	"errors"
	"iter"
)

// DefaultCapacity is the number of entries retained when no capacity is configured.
const DefaultCapacity = 10

var (
	ErrNotFound        = errors.New("ring: position not found")
	ErrInvalidCapacity = errors.New("ring: capacity must be positive")
)

// Entry is one committed record. Buf must not be modified once added.
type Entry struct {
	Buf []byte
}

// Size returns the entry length in bytes.
func (e Entry) Size() int { return len(e.Buf) }

// Buffer is a fixed-size circular store of entries.
type Buffer struct {
	entries []Entry
	in      int
	out     int
	full    bool
	size    int64
}

// New returns an empty Buffer holding at most capacity entries.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}, nil
}

// Cap returns the maximum number of retained entries.
func (b *Buffer) Cap() int { return len(b.entries) }

// Empty reports whether no entries are retained.
func (b *Buffer) Empty() bool { return b.in == b.out && !b.full }

// Full reports whether Cap() entries are retained.
func (b *Buffer) Full() bool { return b.full }

// Len returns the number of retained entries.
func (b *Buffer) Len() int {
	switch {
	case b.full:
		return len(b.entries)
	case b.in >= b.out:
		return b.in - b.out
	default:
		return len(b.entries) - b.out + b.in
	}
}

// Size returns the total bytes across retained entries.
func (b *Buffer) Size() int64 { return b.size }

// Add stores e at the write slot. If the buffer was full the oldest entry is
// overwritten and returned with ok=true; the caller owns it from then on.
func (b *Buffer) Add(e Entry) (evicted Entry, ok bool) {
	if b.full {
		evicted, ok = b.entries[b.in], true
		b.size -= int64(evicted.Size())
		b.out = b.next(b.out)
	}
	b.entries[b.in] = e
	b.size += int64(e.Size())
	b.in = b.next(b.in)
	if b.in == b.out {
		b.full = true
	}
	return evicted, ok
}

// FindPosForEntryOffset returns the global byte position of byte off within
// the entry-th retained entry (0 = oldest).
func (b *Buffer) FindPosForEntryOffset(entry, off int) (int64, error) {
	if entry < 0 || off < 0 {
		return 0, ErrNotFound
	}
	var pos int64
	for i, e := range b.All() {
		if i == entry {
			if off >= e.Size() {
				return 0, ErrNotFound
			}
			return pos + int64(off), nil
		}
		pos += int64(e.Size())
	}
	return 0, ErrNotFound
}

// FindEntryForPos returns the entry containing global byte position pos and
// the offset of pos within it. The returned entry shares storage with the
// buffer and is only valid until it is evicted.
func (b *Buffer) FindEntryForPos(pos int64) (Entry, int, error) {
	if pos < 0 || pos >= b.size {
		return Entry{}, 0, ErrNotFound
	}
	var consumed int64
	for _, e := range b.All() {
		end := consumed + int64(e.Size())
		if end > pos {
			return e, int(pos - consumed), nil
		}
		consumed = end
	}
	return Entry{}, 0, ErrNotFound
}

// All iterates retained entries oldest to newest, yielding their logical index.
func (b *Buffer) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		n := b.Len()
		idx := b.out
		for i := 0; i < n; i++ {
			if !yield(i, b.entries[idx]) {
				return
			}
			idx = b.next(idx)
		}
	}
}

// Entries returns a snapshot slice of retained entries, oldest first.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, 0, b.Len())
	for _, e := range b.All() {
		out = append(out, e)
	}
	return out
}

// Reset drops every slot and returns the buffer to empty.
func (b *Buffer) Reset() {
	clear(b.entries)
	b.in, b.out, b.full, b.size = 0, 0, false, 0
}

func (b *Buffer) next(i int) int { return (i + 1) % len(b.entries) }
