// Package ring implements the fixed-capacity record store that backs the
// linelog device.
//
// # Overview
//
// A Buffer holds at most Cap() entries in a circular slot array addressed
// by two cursors: in (next write slot) and out (oldest retained entry).
// When the buffer is full, Add overwrites the oldest entry and hands it back
// to the caller, which owns it from then on.
//
// Entries can be addressed two ways:
//   - by (entry index, byte offset within entry), counted from the oldest
//     retained entry (FindPosForEntryOffset)
//   - by a global byte position into the concatenation of all retained
//     entries, oldest first (FindEntryForPos)
//
// Usage
//
//	b, _ := ring.New(10)
//	if old, ok := b.Add(ring.Entry{Buf: []byte("hello\n")}); ok {
//	    release(old)
//	}
//	e, off, err := b.FindEntryForPos(3) // e.Buf == "hello\n", off == 3
//
// The Buffer does no locking of its own; callers serialize access.
package ring
