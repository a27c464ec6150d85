package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rzbill/linelog/internal/runtime"
	"github.com/rzbill/linelog/pkg/log"
)

// DeviceService is the health service name that tracks the device.
const DeviceService = "linelog.Device"

// DefaultHealthInterval is how often runtime health is re-evaluated.
const DefaultHealthInterval = 2 * time.Second

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt       *runtime.Runtime
	grpc     *grpc.Server
	health   *health.Server
	lis      net.Listener
	logger   log.Logger
	interval time.Duration
}

// New constructs a gRPC server with the health and reflection services.
func New(rt *runtime.Runtime, logger log.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithComponent("grpc")
	opts = append(opts, grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	s := &Server{
		rt:       rt,
		grpc:     grpc.NewServer(opts...),
		health:   health.NewServer(),
		logger:   logger,
		interval: DefaultHealthInterval,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.refreshHealth(context.Background())
	return s
}

// SetHealthInterval changes the health polling period. Call before serving.
func (s *Server) SetHealthInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// refreshHealth maps runtime.CheckHealth onto the overall and device
// serving status.
func (s *Server) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(DeviceService, status)
}

func (s *Server) watchHealth(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cctx, cancel := context.WithTimeout(ctx, s.interval)
			s.refreshHealth(cctx)
			cancel()
		}
	}
}

// Serve serves on an existing listener until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	go s.watchHealth(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	s.logger.Info("grpc listening", log.Str("addr", l.Addr().String()))
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func unaryLogger(logger log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []log.Field{log.Str("method", info.FullMethod), log.Duration("elapsed", time.Since(start))}
		if err != nil {
			logger.Warn("grpc call failed", append(fields, log.Err(err))...)
		} else {
			logger.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
