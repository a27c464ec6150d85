package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/linelog/internal/device"
	pebblestore "github.com/rzbill/linelog/internal/storage/pebble"
	"github.com/rzbill/linelog/pkg/id"
	"github.com/rzbill/linelog/pkg/log"
)

const (
	// DefaultQueueSize bounds records waiting to be persisted.
	DefaultQueueSize = 1024
	batchLimit       = 128
)

// Observer receives archive counters.
type Observer interface {
	ObserveArchived()
	ObserveDropped()
}

type nopObserver struct{}

func (nopObserver) ObserveArchived() {}
func (nopObserver) ObserveDropped()  {}

// Options configures an Archive.
type Options struct {
	QueueSize int
	// MaxRecords trims the oldest archived records beyond this count. Zero
	// keeps everything.
	MaxRecords int
	Observer   Observer
	Logger     log.Logger
}

// Entry is one archived record.
type Entry struct {
	ID         string        `json:"id"`
	Reason     device.Reason `json:"reason"`
	ReleasedAt time.Time     `json:"released_at"`
	Data       []byte        `json:"data"`
}

// ListOptions selects archived records.
type ListOptions struct {
	Limit   int
	Reverse bool
}

type item struct {
	rec    []byte
	reason device.Reason
	at     time.Time
}

// Archive persists released records to Pebble. It implements
// device.Releaser.
type Archive struct {
	db         *pebblestore.DB
	gen        *id.Generator
	obs        Observer
	logger     log.Logger
	maxRecords int
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan item
	done   chan struct{}

	count   atomic.Int64
	dropped atomic.Uint64
}

var _ device.Releaser = (*Archive)(nil)

// New starts an archive writer over db. The caller keeps ownership of db and
// must Close the archive before closing it.
func New(db *pebblestore.DB, opts Options) (*Archive, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	a := &Archive{
		db:         db,
		gen:        id.NewGenerator(),
		obs:        opts.Observer,
		logger:     opts.Logger.WithComponent("archive"),
		maxRecords: opts.MaxRecords,
		now:        time.Now,
		queue:      make(chan item, opts.QueueSize),
		done:       make(chan struct{}),
	}
	var n int64
	if err := db.ScanPrefix(keyPrefix, func(k, _ []byte) bool {
		if i, ok := idFromKey(k); ok {
			a.gen.Advance(i)
		}
		n++
		return true
	}); err != nil {
		return nil, err
	}
	a.count.Store(n)
	go a.run()
	return a, nil
}

// Release queues rec for persistence. It never blocks: when the queue is
// full or the archive is closed the record is dropped and counted.
func (a *Archive) Release(rec []byte, reason device.Reason) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop()
		return
	}
	select {
	case a.queue <- item{rec: rec, reason: reason, at: a.now()}:
	default:
		a.drop()
	}
}

func (a *Archive) drop() {
	a.dropped.Add(1)
	a.obs.ObserveDropped()
}

func (a *Archive) run() {
	defer close(a.done)
	for it := range a.queue {
		batch := []item{it}
	drain:
		for len(batch) < batchLimit {
			select {
			case next, ok := <-a.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		if err := a.persist(batch); err != nil {
			a.logger.Error("archive write failed", log.Err(err), log.Int("records", len(batch)))
		}
	}
}

func (a *Archive) persist(items []item) error {
	b := a.db.NewBatch()
	defer b.Close()
	for _, it := range items {
		val := encodeRecord(encodeHeader(it.at, it.reason), it.rec)
		if err := b.Set(entryKey(a.gen.Next()), val, nil); err != nil {
			return err
		}
	}
	if err := a.db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	a.count.Add(int64(len(items)))
	for range items {
		a.obs.ObserveArchived()
	}
	if a.maxRecords > 0 {
		if over := a.count.Load() - int64(a.maxRecords); over > 0 {
			return a.trim(int(over))
		}
	}
	return nil
}

// trim deletes the n oldest archived records.
func (a *Archive) trim(n int) error {
	iter, err := a.db.NewIter(pebblestore.PrefixBounds(keyPrefix))
	if err != nil {
		return err
	}
	defer iter.Close()
	b := a.db.NewBatch()
	defer b.Close()
	deleted := 0
	for ok := iter.First(); ok && deleted < n; ok = iter.Next() {
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
		deleted++
	}
	if deleted == 0 {
		return nil
	}
	if err := a.db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	a.count.Add(-int64(deleted))
	a.logger.Debug("archive trimmed", log.Int("deleted", deleted))
	return nil
}

// List returns archived records oldest first, or newest first with Reverse.
// A non-positive Limit returns everything.
func (a *Archive) List(opts ListOptions) ([]Entry, error) {
	iter, err := a.db.NewIter(pebblestore.PrefixBounds(keyPrefix))
	if err != nil {
		return nil, err
	}
	var out []Entry
	ok, step := iter.First(), iter.Next
	if opts.Reverse {
		ok, step = iter.Last(), iter.Prev
	}
	for ; ok && (opts.Limit <= 0 || len(out) < opts.Limit); ok = step() {
		e, err := decodeEntry(iter.Key(), iter.Value())
		if err != nil {
			a.logger.Warn("skipping corrupt archive record", log.Err(err))
			continue
		}
		out = append(out, e)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeEntry(key, val []byte) (Entry, error) {
	i, ok := idFromKey(key)
	if !ok {
		return Entry{}, errCorrupt
	}
	header, payload, err := decodeRecord(val)
	if err != nil {
		return Entry{}, err
	}
	at, reason, err := decodeHeader(header)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: i.String(), Reason: reason, ReleasedAt: at, Data: payload}, nil
}

// Count returns the number of archived records.
func (a *Archive) Count() int64 { return a.count.Load() }

// Dropped returns the number of records discarded because the queue was full.
func (a *Archive) Dropped() uint64 { return a.dropped.Load() }

// Close stops accepting records and waits until queued ones are persisted.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
	a.logger.Info("archive closed", log.Int64("records", a.Count()), log.Uint64("dropped", a.Dropped()))
	return nil
}
