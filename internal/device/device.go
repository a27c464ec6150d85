package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rzbill/linelog/internal/ring"
	"github.com/rzbill/linelog/pkg/log"
)

const (
	// DefaultTerminator ends a record.
	DefaultTerminator byte = '\n'
	// DefaultMaxPendingBytes bounds the uncommitted record.
	DefaultMaxPendingBytes = 1 << 20
)

// Reason tells a Releaser why a record left the device.
type Reason string

const (
	ReasonEvicted  Reason = "evicted"
	ReasonShutdown Reason = "shutdown"
)

// Releaser takes ownership of records leaving the device. Release is called
// with the device lock held, exactly once per committed record.
type Releaser interface {
	Release(rec []byte, reason Reason)
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func(rec []byte, reason Reason)

func (f ReleaseFunc) Release(rec []byte, reason Reason) { f(rec, reason) }

// Observer receives counters from the device. Methods are called with the
// lock held and must not block.
type Observer interface {
	ObserveCommit(size int)
	ObserveEviction(size int)
	ObserveRelease(reason string)
	ObserveWrite(n int)
	ObserveRead(n int)
	ObserveRejectedWrite(reason string)
	ObserveLockWait(d time.Duration)
	ObserveState(records int, bytes int64, pending int)
}

type nopObserver struct{}

func (nopObserver) ObserveCommit(int)             {}
func (nopObserver) ObserveEviction(int)           {}
func (nopObserver) ObserveRelease(string)         {}
func (nopObserver) ObserveWrite(int)              {}
func (nopObserver) ObserveRead(int)               {}
func (nopObserver) ObserveRejectedWrite(string)   {}
func (nopObserver) ObserveLockWait(time.Duration) {}
func (nopObserver) ObserveState(int, int64, int)  {}

// Options configures a Device. Zero values select defaults.
type Options struct {
	// Capacity is the number of records retained.
	Capacity int
	// Terminator ends a record. NUL selects DefaultTerminator.
	Terminator byte
	// MaxPendingBytes bounds the uncommitted record; negative disables the
	// limit.
	MaxPendingBytes int
	Releaser        Releaser
	Observer        Observer
	Logger          log.Logger
}

// Device is the shared append/read session over one ring.
type Device struct {
	sem *semaphore.Weighted

	ring       *ring.Buffer
	pending    []byte
	term       byte
	maxPending int
	closed     bool
	commits    uint64
	released   uint64

	releaser Releaser
	obs      Observer
	logger   log.Logger

	nmu      sync.Mutex
	notifyCh chan struct{}
}

// New creates a device.
func New(opts Options) (*Device, error) {
	if opts.Capacity == 0 {
		opts.Capacity = ring.DefaultCapacity
	}
	rb, err := ring.New(opts.Capacity)
	if err != nil {
		return nil, err
	}
	if opts.Terminator == 0 {
		opts.Terminator = DefaultTerminator
	}
	if opts.MaxPendingBytes == 0 {
		opts.MaxPendingBytes = DefaultMaxPendingBytes
	}
	if opts.Releaser == nil {
		opts.Releaser = ReleaseFunc(func([]byte, Reason) {})
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	return &Device{
		sem:        semaphore.NewWeighted(1),
		ring:       rb,
		term:       opts.Terminator,
		maxPending: opts.MaxPendingBytes,
		releaser:   opts.Releaser,
		obs:        opts.Observer,
		logger:     opts.Logger.WithComponent("device"),
		notifyCh:   make(chan struct{}),
	}, nil
}

func (d *Device) lock(ctx context.Context) error {
	start := time.Now()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	d.obs.ObserveLockWait(time.Since(start))
	return nil
}

func (d *Device) unlock() { d.sem.Release(1) }

// Write appends p to the pending record and commits it when the pending bytes
// end with the terminator. All of p is accepted or none of it is.
func (d *Device) Write(ctx context.Context, p []byte) (int, error) {
	if err := d.lock(ctx); err != nil {
		d.obs.ObserveRejectedWrite("interrupted")
		return 0, err
	}
	defer d.unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if d.maxPending > 0 && len(d.pending)+len(p) > d.maxPending {
		d.obs.ObserveRejectedWrite("pending_too_large")
		return 0, fmt.Errorf("%w: %d pending + %d > %d", ErrPendingTooLarge, len(d.pending), len(p), d.maxPending)
	}
	d.pending = append(d.pending, p...)
	d.obs.ObserveWrite(len(p))
	if n := len(d.pending); n > 0 && d.pending[n-1] == d.term {
		d.commitLocked()
	}
	d.obs.ObserveState(d.ring.Len(), d.ring.Size(), len(d.pending))
	return len(p), nil
}

func (d *Device) commitLocked() {
	rec := slices.Clip(d.pending)
	d.pending = nil
	d.commits++
	d.obs.ObserveCommit(len(rec))
	if old, evicted := d.ring.Add(ring.Entry{Buf: rec}); evicted {
		d.obs.ObserveEviction(old.Size())
		d.releaseLocked(old.Buf, ReasonEvicted)
	}
	d.logger.Debug("record committed", log.Int("size", len(rec)), log.Int64("retained_bytes", d.ring.Size()))
	d.notifyLocked()
}

func (d *Device) releaseLocked(rec []byte, reason Reason) {
	d.released++
	d.obs.ObserveRelease(string(reason))
	d.releaser.Release(rec, reason)
}

func (d *Device) notifyLocked() {
	d.nmu.Lock()
	close(d.notifyCh)
	if !d.closed {
		d.notifyCh = make(chan struct{})
	}
	d.nmu.Unlock()
}

// ReadAt copies bytes from the record containing global offset off into dst,
// stopping at the record boundary. It returns io.EOF when off is at or past
// the end of retained data.
func (d *Device) ReadAt(ctx context.Context, dst []byte, off int64) (int, error) {
	if err := d.lock(ctx); err != nil {
		return 0, err
	}
	defer d.unlock()
	if d.closed {
		return 0, ErrClosed
	}
	e, intra, err := d.ring.FindEntryForPos(off)
	if errors.Is(err, ring.ErrNotFound) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	n := copy(dst, e.Buf[intra:])
	d.obs.ObserveRead(n)
	return n, nil
}

// FindPos maps (entry, offset) to a global position, both counted from the
// oldest retained record.
func (d *Device) FindPos(ctx context.Context, entry, off int) (int64, error) {
	if err := d.lock(ctx); err != nil {
		return 0, err
	}
	defer d.unlock()
	if d.closed {
		return 0, ErrClosed
	}
	return d.ring.FindPosForEntryOffset(entry, off)
}

// Close releases every retained record with ReasonShutdown and discards the
// pending bytes. Later operations return ErrClosed. Close is idempotent.
func (d *Device) Close(ctx context.Context) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.unlock()
	if d.closed {
		return nil
	}
	n := 0
	for _, e := range d.ring.All() {
		d.releaseLocked(e.Buf, ReasonShutdown)
		n++
	}
	d.ring.Reset()
	dropped := len(d.pending)
	d.pending = nil
	d.closed = true
	d.obs.ObserveState(0, 0, 0)
	d.notifyLocked()
	d.logger.Info("device closed", log.Int("released", n), log.Int("pending_dropped", dropped))
	return nil
}

// Stats is a point-in-time view of the device.
type Stats struct {
	Capacity     int    `json:"capacity"`
	Records      int    `json:"records"`
	Bytes        int64  `json:"bytes"`
	PendingBytes int    `json:"pending_bytes"`
	Full         bool   `json:"full"`
	Commits      uint64 `json:"commits"`
	Released     uint64 `json:"released"`
	Closed       bool   `json:"closed"`
}

// Stats reports counters and occupancy. Unlike the data operations it keeps
// working after Close, with Closed set and the store empty, so health checks
// can report a shut down device.
func (d *Device) Stats(ctx context.Context) (Stats, error) {
	if err := d.lock(ctx); err != nil {
		return Stats{}, err
	}
	defer d.unlock()
	return Stats{
		Capacity:     d.ring.Cap(),
		Records:      d.ring.Len(),
		Bytes:        d.ring.Size(),
		PendingBytes: len(d.pending),
		Full:         d.ring.Full(),
		Commits:      d.commits,
		Released:     d.released,
		Closed:       d.closed,
	}, nil
}

// Record is a copy of one retained record. Seq numbers commits from 1 and
// survives eviction of older records, unlike Index and Position.
type Record struct {
	Seq      uint64 `json:"seq"`
	Index    int    `json:"index"`
	Position int64  `json:"position"`
	Data     []byte `json:"data"`
}

// Records returns copies of the retained records, oldest first.
func (d *Device) Records(ctx context.Context) ([]Record, error) {
	return d.RecordsSince(ctx, 0)
}

// RecordsSince returns copies of retained records with Seq greater than
// after, oldest first.
func (d *Device) RecordsSince(ctx context.Context, after uint64) ([]Record, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.unlock()
	if d.closed {
		return nil, ErrClosed
	}
	first := d.commits - uint64(d.ring.Len()) + 1
	out := make([]Record, 0, d.ring.Len())
	var pos int64
	for i, e := range d.ring.All() {
		seq := first + uint64(i)
		if seq > after {
			out = append(out, Record{Seq: seq, Index: i, Position: pos, Data: slices.Clone(e.Buf)})
		}
		pos += int64(e.Size())
	}
	return out, nil
}

// Size returns the number of retained bytes. It reports 0 after Close.
func (d *Device) Size(ctx context.Context) (int64, error) {
	if err := d.lock(ctx); err != nil {
		return 0, err
	}
	defer d.unlock()
	return d.ring.Size(), nil
}
