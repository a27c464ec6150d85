package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type recordingReleaser struct {
	mu   sync.Mutex
	recs []string
	why  []Reason
}

func (r *recordingReleaser) Release(rec []byte, reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, string(rec))
	r.why = append(r.why, reason)
}

func newDevice(t *testing.T, opts Options) *Device {
	t.Helper()
	d, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return d
}

func mustWrite(t *testing.T, d *Device, s string) {
	t.Helper()
	n, err := d.Write(context.Background(), []byte(s))
	if err != nil || n != len(s) {
		t.Fatalf("write %q: n=%d err=%v", s, n, err)
	}
}

func TestNewRejectsNegativeCapacity(t *testing.T) {
	if _, err := New(Options{Capacity: -1}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCommitOnTerminator(t *testing.T) {
	d := newDevice(t, Options{})
	ctx := context.Background()
	mustWrite(t, d, "ab")
	st, _ := d.Stats(ctx)
	if st.Records != 0 || st.PendingBytes != 2 {
		t.Fatalf("pending not held: %+v", st)
	}
	mustWrite(t, d, "c\n")
	recs, err := d.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 || string(recs[0].Data) != "abc\n" {
		t.Fatalf("unexpected records %+v", recs)
	}
	st, _ = d.Stats(ctx)
	if st.PendingBytes != 0 || st.Bytes != 4 || st.Commits != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestTerminatorMidChunkDoesNotSplit(t *testing.T) {
	d := newDevice(t, Options{})
	mustWrite(t, d, "a\nb")
	st, _ := d.Stats(context.Background())
	if st.Records != 0 || st.PendingBytes != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
	mustWrite(t, d, "\n")
	recs, _ := d.Records(context.Background())
	if len(recs) != 1 || string(recs[0].Data) != "a\nb\n" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestCustomTerminator(t *testing.T) {
	d := newDevice(t, Options{Terminator: ';'})
	mustWrite(t, d, "x\ny;")
	recs, _ := d.Records(context.Background())
	if len(recs) != 1 || string(recs[0].Data) != "x\ny;" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestEmptyWriteAndBareTerminator(t *testing.T) {
	d := newDevice(t, Options{})
	if n, err := d.Write(context.Background(), nil); n != 0 || err != nil {
		t.Fatalf("empty write: %d %v", n, err)
	}
	mustWrite(t, d, "\n")
	recs, _ := d.Records(context.Background())
	if len(recs) != 1 || string(recs[0].Data) != "\n" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestReadAtSlicing(t *testing.T) {
	d := newDevice(t, Options{})
	mustWrite(t, d, "hello\n")
	ctx := context.Background()
	tests := []struct {
		off     int64
		size    int
		want    string
		wantErr error
	}{
		{0, 3, "hel", nil},
		{3, 10, "lo\n", nil},
		{5, 1, "\n", nil},
		{6, 1, "", io.EOF},
		{100, 4, "", io.EOF},
		{-1, 4, "", io.EOF},
	}
	for _, tt := range tests {
		buf := make([]byte, tt.size)
		n, err := d.ReadAt(ctx, buf, tt.off)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("ReadAt(%d): err=%v want %v", tt.off, err, tt.wantErr)
		}
		if got := string(buf[:n]); got != tt.want {
			t.Fatalf("ReadAt(%d) = %q want %q", tt.off, got, tt.want)
		}
	}
}

func TestReadDoesNotCrossRecords(t *testing.T) {
	d := newDevice(t, Options{})
	mustWrite(t, d, "ab\n")
	mustWrite(t, d, "cde\n")
	buf := make([]byte, 16)
	n, err := d.ReadAt(context.Background(), buf, 1)
	if err != nil || string(buf[:n]) != "b\n" {
		t.Fatalf("got %q %v", buf[:n], err)
	}
	n, err = d.ReadAt(context.Background(), buf, 3)
	if err != nil || string(buf[:n]) != "cde\n" {
		t.Fatalf("got %q %v", buf[:n], err)
	}
}

func TestReadAtCopiesOut(t *testing.T) {
	d := newDevice(t, Options{})
	src := []byte("abc\n")
	if _, err := d.Write(context.Background(), src); err != nil {
		t.Fatalf("write: %v", err)
	}
	src[0] = 'X'
	buf := make([]byte, 4)
	n, _ := d.ReadAt(context.Background(), buf, 0)
	if string(buf[:n]) != "abc\n" {
		t.Fatalf("device aliased caller buffer: %q", buf[:n])
	}
}

func TestOverwriteReleasesOldest(t *testing.T) {
	rel := &recordingReleaser{}
	d := newDevice(t, Options{Capacity: 2, Releaser: rel})
	mustWrite(t, d, "a\n")
	mustWrite(t, d, "b\n")
	if len(rel.recs) != 0 {
		t.Fatalf("released early: %v", rel.recs)
	}
	mustWrite(t, d, "c\n")
	if len(rel.recs) != 1 || rel.recs[0] != "a\n" || rel.why[0] != ReasonEvicted {
		t.Fatalf("unexpected releases %v %v", rel.recs, rel.why)
	}
	buf := make([]byte, 8)
	n, err := d.ReadAt(context.Background(), buf, 0)
	if err != nil || string(buf[:n]) != "b\n" {
		t.Fatalf("got %q %v", buf[:n], err)
	}
	st, _ := d.Stats(context.Background())
	if st.Bytes != 4 || !st.Full || st.Released != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestEveryRecordReleasedExactlyOnce(t *testing.T) {
	rel := &recordingReleaser{}
	d := newDevice(t, Options{Capacity: 3, Releaser: rel})
	for i := 0; i < 10; i++ {
		mustWrite(t, d, fmt.Sprintf("r%d\n", i))
	}
	mustWrite(t, d, "partial")
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if len(rel.recs) != 10 {
		t.Fatalf("want 10 releases, got %d: %v", len(rel.recs), rel.recs)
	}
	seen := map[string]int{}
	evicted, shutdown := 0, 0
	for i, r := range rel.recs {
		seen[r]++
		switch rel.why[i] {
		case ReasonEvicted:
			evicted++
		case ReasonShutdown:
			shutdown++
		}
	}
	for k, v := range seen {
		if v != 1 {
			t.Fatalf("%q released %d times", k, v)
		}
	}
	if evicted != 7 || shutdown != 3 {
		t.Fatalf("evicted=%d shutdown=%d", evicted, shutdown)
	}
	if rel.recs[9] != "r9\n" {
		t.Fatalf("shutdown order: %v", rel.recs[7:])
	}
}

func TestClosedDevice(t *testing.T) {
	d := newDevice(t, Options{})
	mustWrite(t, d, "a\n")
	ctx := context.Background()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := d.Write(ctx, []byte("b\n")); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close: %v", err)
	}
	if _, err := d.ReadAt(ctx, make([]byte, 1), 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("read after close: %v", err)
	}
	if _, err := d.FindPos(ctx, 0, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("findpos after close: %v", err)
	}
	st, _ := d.Stats(ctx)
	if !st.Closed || st.Records != 0 || st.Bytes != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPendingTooLarge(t *testing.T) {
	d := newDevice(t, Options{MaxPendingBytes: 4})
	ctx := context.Background()
	mustWrite(t, d, "abc")
	if _, err := d.Write(ctx, []byte("de")); !errors.Is(err, ErrPendingTooLarge) {
		t.Fatalf("expected ErrPendingTooLarge, got %v", err)
	}
	st, _ := d.Stats(ctx)
	if st.PendingBytes != 3 {
		t.Fatalf("pending changed on failure: %+v", st)
	}
	mustWrite(t, d, "\n")
	recs, _ := d.Records(ctx)
	if len(recs) != 1 || string(recs[0].Data) != "abc\n" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestInterruptedLockChangesNothing(t *testing.T) {
	d := newDevice(t, Options{})
	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Write(ctx, []byte("x\n"))
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected interrupted deadline error, got %v", err)
	}
	if _, err := d.ReadAt(ctx, make([]byte, 1), 0); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected interrupted read, got %v", err)
	}
	d.sem.Release(1)
	st, err := d.Stats(context.Background())
	if err != nil || st.PendingBytes != 0 || st.Records != 0 {
		t.Fatalf("state changed: %+v %v", st, err)
	}
}

func TestFindPos(t *testing.T) {
	d := newDevice(t, Options{})
	mustWrite(t, d, "ab\n")
	mustWrite(t, d, "cde\n")
	ctx := context.Background()
	pos, err := d.FindPos(ctx, 1, 2)
	if err != nil || pos != 5 {
		t.Fatalf("FindPos(1,2) = %d %v", pos, err)
	}
	if _, err := d.FindPos(ctx, 1, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.FindPos(ctx, 2, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentWritersKeepRecordsWhole(t *testing.T) {
	const writers, perWriter = 8, 50
	d := newDevice(t, Options{Capacity: writers * perWriter})
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				if _, err := d.Write(context.Background(), []byte(fmt.Sprintf("w%d-%d\n", w, i))); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs, _ := d.Records(context.Background())
	if len(recs) != writers*perWriter {
		t.Fatalf("want %d records, got %d", writers*perWriter, len(recs))
	}
	var total int64
	for _, r := range recs {
		if r.Position != total {
			t.Fatalf("record %d at %d, want %d", r.Index, r.Position, total)
		}
		if strings.Count(string(r.Data), "\n") != 1 || !bytes.HasPrefix(r.Data, []byte("w")) {
			t.Fatalf("torn record %q", r.Data)
		}
		total += int64(len(r.Data))
	}
	if sz, _ := d.Size(context.Background()); sz != total {
		t.Fatalf("size %d != %d", sz, total)
	}
}

func TestConcurrentReadersAndEviction(t *testing.T) {
	d := newDevice(t, Options{Capacity: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < 500; i++ {
			if _, err := d.Write(gctx, []byte("line\n")); err != nil {
				return err
			}
		}
		cancel()
		return nil
	})
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			buf := make([]byte, 3)
			for gctx.Err() == nil {
				n, err := d.ReadAt(gctx, buf, 2)
				if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, ErrInterrupted) {
					return err
				}
				if err == nil && string(buf[:n]) != "ne\n" {
					return fmt.Errorf("read %q", buf[:n])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("concurrent: %v", err)
	}
}

func TestHandleCursor(t *testing.T) {
	d := newDevice(t, Options{})
	h := d.Open()
	if h.ID() == "" || h.ID() == d.Open().ID() {
		t.Fatalf("handle ids not unique")
	}
	if _, err := h.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := h.Write([]byte("world\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if h.Offset() != 0 {
		t.Fatalf("write moved cursor")
	}
	buf := make([]byte, 4)
	n, err := h.Read(buf)
	if err != nil || string(buf[:n]) != "hell" || h.Offset() != 4 {
		t.Fatalf("first read %q %v off=%d", buf[:n], err, h.Offset())
	}
	rest, err := io.ReadAll(h)
	if err != nil || string(rest) != "o\nworld\n" {
		t.Fatalf("rest %q %v", rest, err)
	}
	if n, err := h.Read(buf); n != 0 || err != io.EOF {
		t.Fatalf("expected EOF, got %d %v", n, err)
	}

	other := d.Open()
	all, _ := io.ReadAll(other)
	if string(all) != "hello\nworld\n" {
		t.Fatalf("independent cursor read %q", all)
	}

	_ = h.Close()
	if _, err := h.Read(buf); !errors.Is(err, ErrClosed) {
		t.Fatalf("read on closed handle: %v", err)
	}
	if _, err := h.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("write on closed handle: %v", err)
	}
}

func TestHandleSeek(t *testing.T) {
	d := newDevice(t, Options{})
	mustWrite(t, d, "abc\n")
	h := d.Open()
	if _, err := io.ReadAll(h); err != nil {
		t.Fatalf("read: %v", err)
	}
	tests := []struct {
		off     int64
		want    string
		wantErr error
	}{
		{off: 0, want: "abc\n"},
		{off: 2, want: "c\n"},
		{off: 100, want: ""},
		{off: -1, wantErr: ErrInvalidOffset},
	}
	for _, tt := range tests {
		before := h.Offset()
		err := h.Seek(tt.off)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("seek %d: got %v want %v", tt.off, err, tt.wantErr)
			}
			if h.Offset() != before {
				t.Fatalf("failed seek moved cursor %d -> %d", before, h.Offset())
			}
			continue
		}
		if err != nil {
			t.Fatalf("seek %d: %v", tt.off, err)
		}
		got, err := io.ReadAll(h)
		if err != nil || string(got) != tt.want {
			t.Fatalf("read after seek %d: %q %v", tt.off, got, err)
		}
	}
	_ = h.Close()
	if err := h.Seek(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("seek on closed handle: %v", err)
	}
}

func TestStatsAndSizeAfterClose(t *testing.T) {
	d := newDevice(t, Options{Capacity: 4})
	mustWrite(t, d, "a\nb\n")
	ctx := context.Background()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	st, err := d.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after close: %v", err)
	}
	if !st.Closed || st.Records != 0 || st.Bytes != 0 || st.Commits != 2 || st.Capacity != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if n, err := d.Size(ctx); err != nil || n != 0 {
		t.Fatalf("size after close: %d %v", n, err)
	}
}

func TestWaitForCommit(t *testing.T) {
	d := newDevice(t, Options{})
	if d.WaitForCommit(10 * time.Millisecond) {
		t.Fatalf("woke without a commit")
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = d.Write(context.Background(), []byte("x\n"))
	}()
	if !d.WaitForCommit(2 * time.Second) {
		t.Fatalf("timed out waiting for commit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	_ = d.Close(context.Background())
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait after close: %v", err)
	}
}

type countingObserver struct {
	nopObserver
	commits, evictions, written int
}

func (o *countingObserver) ObserveCommit(int)   { o.commits++ }
func (o *countingObserver) ObserveEviction(int) { o.evictions++ }
func (o *countingObserver) ObserveWrite(n int)  { o.written += n }

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	d := newDevice(t, Options{Capacity: 1, Observer: obs})
	mustWrite(t, d, "a")
	mustWrite(t, d, "\n")
	mustWrite(t, d, "b\n")
	if obs.commits != 2 || obs.evictions != 1 || obs.written != 4 {
		t.Fatalf("unexpected observations %+v", *obs)
	}
}

func TestRecordsSinceSurvivesEviction(t *testing.T) {
	d := newDevice(t, Options{Capacity: 2})
	ctx := context.Background()
	mustWrite(t, d, "a\n")
	recs, _ := d.RecordsSince(ctx, 0)
	if len(recs) != 1 || recs[0].Seq != 1 {
		t.Fatalf("unexpected %+v", recs)
	}
	mustWrite(t, d, "b\n")
	mustWrite(t, d, "c\n")
	recs, _ = d.RecordsSince(ctx, 1)
	if len(recs) != 2 || recs[0].Seq != 2 || string(recs[1].Data) != "c\n" {
		t.Fatalf("unexpected %+v", recs)
	}
	if recs[0].Index != 0 || recs[1].Position != 2 {
		t.Fatalf("index/position not relative to oldest: %+v", recs)
	}
	recs, _ = d.RecordsSince(ctx, 3)
	if len(recs) != 0 {
		t.Fatalf("expected nothing new, got %+v", recs)
	}
}
