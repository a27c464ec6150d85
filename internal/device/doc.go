// Package device implements the append/read session that sits on top of the
// ring store.
//
// # Overview
//
// A Device owns one ring.Buffer, a pending buffer for the record currently
// being written, and the lock that serializes every access to both. Writers
// append arbitrary chunks; once the pending bytes end with the terminator
// (newline by default) they are committed as one record. When the ring is
// full the oldest record is evicted and handed to the configured Releaser
// inside the same critical section.
//
// Readers address data by a global byte offset into the concatenation of all
// retained records. A single read never crosses a record boundary; an offset
// at or past the end of retained data yields io.EOF.
//
// Usage
//
//	dev, _ := device.New(device.Options{Capacity: 10})
//	h := dev.Open()
//	_, _ = h.Write([]byte("hel"))
//	_, _ = h.Write([]byte("lo\n"))    // commits "hello\n"
//	b, _ := io.ReadAll(h)             // "hello\n"
//	_ = dev.Close(context.Background()) // releases retained records
//
// # Locking
//
// The lock is a one-slot weighted semaphore acquired with the caller's
// context, so a blocked acquire can be interrupted. An interrupted call
// returns ErrInterrupted and changes nothing; callers may retry.
package device
