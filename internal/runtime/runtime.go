package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rzbill/linelog/internal/archive"
	cfgpkg "github.com/rzbill/linelog/internal/config"
	"github.com/rzbill/linelog/internal/device"
	"github.com/rzbill/linelog/internal/metrics"
	pebblestore "github.com/rzbill/linelog/internal/storage/pebble"
	"github.com/rzbill/linelog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	// DataDir holds the archive store. Unused when the archive is disabled.
	DataDir string
	Config  cfgpkg.Config
	Logger  log.Logger
	// Metrics is created when nil.
	Metrics *metrics.Metrics
}

// Runtime wires the device, its archive and metrics for a single node.
type Runtime struct {
	dev     *device.Device
	arch    *archive.Archive
	db      *pebblestore.DB
	metrics *metrics.Metrics
	config  cfgpkg.Config
	logger  log.Logger
}

// Open validates the configuration and initializes every component.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("runtime: invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	rt := &Runtime{metrics: m, config: opts.Config, logger: logger}

	var releaser device.Releaser
	if opts.Config.Archive.Enabled {
		if opts.DataDir == "" {
			return nil, errors.New("runtime: DataDir is required when the archive is enabled")
		}
		fsync, _ := opts.Config.FsyncMode()
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir: filepath.Join(opts.DataDir, "archive"),
			Fsync:   fsync,
			Metrics: m.Storage(),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		arch, err := archive.New(db, archive.Options{
			QueueSize:  opts.Config.Archive.QueueSize,
			MaxRecords: opts.Config.Archive.MaxRecords,
			Observer:   m,
			Logger:     logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.db, rt.arch, releaser = db, arch, arch
	}

	dev, err := device.New(device.Options{
		Capacity:        opts.Config.Device.Capacity,
		Terminator:      opts.Config.TerminatorByte(),
		MaxPendingBytes: opts.Config.Device.MaxPendingBytes,
		Releaser:        releaser,
		Observer:        m,
		Logger:          logger,
	})
	if err != nil {
		_ = rt.closeArchive()
		return nil, err
	}
	rt.dev = dev
	logger.Info("runtime ready",
		log.Int("capacity", opts.Config.Device.Capacity),
		log.Bool("archive", rt.arch != nil),
	)
	return rt, nil
}

// Close releases retained records, drains the archive and closes storage.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.dev != nil {
		errs = append(errs, r.dev.Close(ctx))
	}
	errs = append(errs, r.closeArchive())
	return errors.Join(errs...)
}

func (r *Runtime) closeArchive() error {
	var errs []error
	if r.arch != nil {
		errs = append(errs, r.arch.Close())
		r.arch = nil
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	return errors.Join(errs...)
}

// CheckHealth reports whether the device is open and storage answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	st, err := r.dev.Stats(ctx)
	if err != nil {
		return err
	}
	if st.Closed {
		return device.ErrClosed
	}
	if r.db != nil {
		it, err := r.db.NewIter(nil)
		if err != nil {
			return err
		}
		return it.Close()
	}
	return nil
}

// Device returns the shared device.
func (r *Runtime) Device() *device.Device { return r.dev }

// Archive returns the archive, or nil when disabled.
func (r *Runtime) Archive() *archive.Archive { return r.arch }

// Metrics returns the process collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() log.Logger { return r.logger }
