package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// Size is the encoded length of an ID.
const Size = 16

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [Size]byte

// Zero is the smallest ID.
var Zero ID

// FromBytes copies a 16-byte encoding into an ID.
func FromBytes(b []byte) (ID, error) {
	var i ID
	if len(b) != Size {
		return i, fmt.Errorf("id: want %d bytes, got %d", Size, len(b))
	}
	copy(i[:], b)
	return i, nil
}

// Parse decodes the hex form produced by String.
func Parse(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: %w", err)
	}
	return FromBytes(b)
}

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { return append([]byte(nil), i[:]...) }

// String returns a hex string.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Time returns the millisecond timestamp embedded in the ID.
func (i ID) Time() time.Time { return time.UnixMilli(int64(binary.BigEndian.Uint64(i[:8]))) }

// Seq returns the per-millisecond sequence.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	now      func() int64
	lastMs   int64
	sequence uint64
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces the millisecond clock, mostly for tests.
func WithClock(now func() int64) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a new Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: func() int64 { return time.Now().UnixMilli() }}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Advance makes every later ID sort after last. Use it when resuming a
// keyspace written by an earlier process whose clock may have been ahead.
func (g *Generator) Advance(last ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := last.Time().UnixMilli()
	if ms > g.lastMs || (ms == g.lastMs && last.Seq() > g.sequence) {
		g.lastMs, g.sequence = ms, last.Seq()
	}
}

// Next returns a new ID. If clock goes backwards, it uses lastMs and increments sequence.
// If sequence overflows within the same millisecond, it busy-waits for next ms.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now()
	switch {
	case ms > g.lastMs:
		g.sequence = 0
	case g.sequence < math.MaxUint64:
		ms = g.lastMs
		g.sequence++
	default:
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = g.now()
		}
		g.sequence = 0
	}
	g.lastMs = ms

	var i ID
	binary.BigEndian.PutUint64(i[:8], uint64(ms))
	binary.BigEndian.PutUint64(i[8:], g.sequence)
	return i
}
