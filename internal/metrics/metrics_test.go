package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rzbill/linelog/internal/device"
	pebblestore "github.com/rzbill/linelog/internal/storage/pebble"
)

var (
	_ device.Observer         = (*Metrics)(nil)
	_ pebblestore.MetricsHook = StorageHook{}
)

func TestDeviceObserver(t *testing.T) {
	m := New()
	m.ObserveCommit(4)
	m.ObserveCommit(2)
	m.ObserveEviction(4)
	m.ObserveRelease("evicted")
	m.ObserveRejectedWrite("pending_too_large")
	m.ObserveWrite(6)
	m.ObserveState(1, 2, 3)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"commits", testutil.ToFloat64(m.CommitsTotal), 2},
		{"evictions", testutil.ToFloat64(m.EvictionsTotal), 1},
		{"released", testutil.ToFloat64(m.ReleasesTotal.WithLabelValues("evicted")), 1},
		{"rejected", testutil.ToFloat64(m.RejectedWrites.WithLabelValues("pending_too_large")), 1},
		{"written", testutil.ToFloat64(m.BytesWrittenTotal), 6},
		{"records", testutil.ToFloat64(m.RetainedRecords), 1},
		{"bytes", testutil.ToFloat64(m.RetainedBytes), 2},
		{"pending", testutil.ToFloat64(m.PendingBytes), 3},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestSocketGauge(t *testing.T) {
	m := New()
	m.ObserveConnOpened()
	m.ObserveConnOpened()
	m.ObserveConnClosed()
	if got := testutil.ToFloat64(m.SocketConnections); got != 1 {
		t.Fatalf("connections = %v", got)
	}
}

func TestStorageHookAndExposition(t *testing.T) {
	m := New()
	m.Storage().ObserveBatchCommit(time.Millisecond, 3, 128)
	m.ObserveArchived()
	if got := testutil.ToFloat64(m.StorageBytesTotal.WithLabelValues("commit")); got != 128 {
		t.Fatalf("commit bytes = %v", got)
	}
	expected := `
# HELP linelog_archive_writes_total Released records persisted to the archive.
# TYPE linelog_archive_writes_total counter
linelog_archive_writes_total 1
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "linelog_archive_writes_total"); err != nil {
		t.Fatalf("exposition: %v", err)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveCommit(1)
	if testutil.ToFloat64(b.CommitsTotal) != 0 {
		t.Fatalf("registries share collectors")
	}
}
