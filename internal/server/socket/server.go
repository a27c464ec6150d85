package socket

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/linelog/internal/device"
	"github.com/rzbill/linelog/pkg/log"
)

// DefaultAddr is the conventional listen address.
const DefaultAddr = ":9000"

// Observer tracks open connections.
type Observer interface {
	ObserveConnOpened()
	ObserveConnClosed()
}

type nopObserver struct{}

func (nopObserver) ObserveConnOpened() {}
func (nopObserver) ObserveConnClosed() {}

// Options configures a Server.
type Options struct {
	// Terminator marks a chunk after which retained contents are echoed.
	Terminator byte
	// ReadTimeout closes idle connections; zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReadBufBytes int
	Observer     Observer
	Logger       log.Logger
}

// Server accepts raw TCP connections and feeds them to a device.
type Server struct {
	dev    *device.Device
	opts   Options
	logger log.Logger

	mu     sync.Mutex
	lis    net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a socket server for dev.
func New(dev *device.Device, opts Options) *Server {
	if opts.Terminator == 0 {
		opts.Terminator = device.DefaultTerminator
	}
	if opts.ReadBufBytes <= 0 {
		opts.ReadBufBytes = 4096
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	return &Server{
		dev:    dev,
		opts:   opts,
		logger: opts.Logger.WithComponent("socket"),
		conns:  make(map[net.Conn]struct{}),
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

// Serve accepts connections on l until ctx is done, then closes every open
// connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("socket listening", log.Str("addr", l.Addr().String()))

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	var err error
	for {
		conn, aerr := l.Accept()
		if aerr != nil {
			if ctx.Err() == nil && !errors.Is(aerr, net.ErrClosed) {
				err = aerr
			}
			break
		}
		if !s.track(conn) {
			_ = conn.Close()
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
	s.Close()
	s.wg.Wait()
	return err
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.opts.Observer.ObserveConnOpened()
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		s.opts.Observer.ObserveConnClosed()
	}
	_ = c.Close()
}

// Close stops accepting and closes open connections. It is safe to call
// more than once.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.lis != nil {
		_ = s.lis.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	h := s.dev.Open()
	defer h.Close()
	logger := s.logger.With(
		log.Str("conn_id", uuid.NewString()),
		log.Str("remote", conn.RemoteAddr().String()),
		log.Str(log.HandleIDKey, h.ID()),
	)
	logger.Info("accepted connection")
	defer logger.Info("closed connection")

	buf := make([]byte, s.opts.ReadBufBytes)
	out := make([]byte, s.opts.ReadBufBytes)
	for {
		if s.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := h.WriteContext(ctx, chunk); werr != nil {
				logger.Warn("write rejected", log.Err(werr), log.Int("size", n))
				return
			}
			if chunk[n-1] == s.opts.Terminator {
				if eerr := s.echo(ctx, conn, h, out); eerr != nil {
					logger.Warn("echo failed", log.Err(eerr))
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read ended", log.Err(err))
			}
			return
		}
	}
}

// echo streams the retained contents from offset 0 back to the client.
func (s *Server) echo(ctx context.Context, conn net.Conn, h *device.Handle, out []byte) error {
	if err := h.Seek(0); err != nil {
		return err
	}
	var pending bytes.Buffer
	for {
		n, err := h.ReadContext(ctx, out)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		pending.Write(out[:n])
	}
	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	_, err := pending.WriteTo(conn)
	return err
}
