package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/linelog/internal/config"
	"github.com/rzbill/linelog/internal/runtime"
	grpcserver "github.com/rzbill/linelog/internal/server/grpc"
	httpserver "github.com/rzbill/linelog/internal/server/http"
	socketserver "github.com/rzbill/linelog/internal/server/socket"
	logpkg "github.com/rzbill/linelog/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = os.Getenv

// Options for Run. Empty addresses disable the matching front end.
type Options struct {
	DataDir    string
	GRPCAddr   string
	HTTPAddr   string
	SocketAddr string
	Config     cfgpkg.Config
	// Logger is built from Config.Log when nil.
	Logger logpkg.Logger
	// Ready, when set, is called once every listener is bound.
	Ready func(Addrs)
}

// Addrs reports the bound listener addresses.
type Addrs struct {
	GRPC   string
	HTTP   string
	Socket string
}

// Run opens the runtime, starts the configured servers and blocks until ctx
// is cancelled or a server fails. Retained records are released on the way
// out.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = getenvDefault("LINELOG_DATA_DIR", cfgpkg.DefaultDataDir())
	}
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&opts.Config.Log)
		if err != nil {
			return err
		}
		logger = l
		logpkg.RedirectStdLog(logger)
	}

	rt, err := runtime.Open(runtime.Options{DataDir: opts.DataDir, Config: opts.Config, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(cctx); err != nil {
			logger.Error("runtime close failed", logpkg.Err(err))
		}
	}()

	logger.Info("starting linelog server",
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("socket", opts.SocketAddr),
		logpkg.Int("capacity", opts.Config.Device.Capacity),
		logpkg.Bool("archive", opts.Config.Archive.Enabled),
	)

	l, err := listen(opts)
	if err != nil {
		return err
	}
	if opts.Ready != nil {
		opts.Ready(l.addrs())
	}

	g, gctx := errgroup.WithContext(sctx)
	if l.grpc != nil {
		gsrv := grpcserver.New(rt, logger)
		g.Go(func() error { return gsrv.Serve(gctx, l.grpc) })
	}
	if l.http != nil {
		hsrv := httpserver.New(rt, logger)
		g.Go(func() error { return hsrv.Serve(gctx, l.http) })
	}
	if l.socket != nil {
		cfg := opts.Config.Socket
		ssrv := socketserver.New(rt.Device(), socketserver.Options{
			Terminator:   opts.Config.TerminatorByte(),
			ReadTimeout:  time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
			WriteTimeout: time.Duration(cfg.WriteTimeoutMs) * time.Millisecond,
			ReadBufBytes: cfg.ReadBufBytes,
			Observer:     rt.Metrics(),
			Logger:       logger,
		})
		g.Go(func() error { return ssrv.Serve(gctx, l.socket) })
	}
	err = g.Wait()
	logger.Info("linelog server stopped")
	return err
}
