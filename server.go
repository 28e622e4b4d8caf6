package wirecheck

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Handler runs one session over an accepted connection.
// The server closes the connection after Handle returns.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn) error

// Handle calls f(ctx, conn).
func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// Server accepts one connection at a time and runs a Handler on it to
// completion before accepting the next.
type Server struct {
	listener net.Listener
	logger   Logger

	mu       sync.Mutex
	shutdown bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func newServer(opts []ServerOption) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates a server bound to the given address.
// A bind failure matches ErrBind.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	s := newServer(opts)

	listener, err := listenConfig().Listen(context.Background(), "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}
	s.listener = listener
	return s, nil
}

// Listen binds port on every interface. It tries a dual-stack IPv6 socket
// first and falls back to IPv4 when the host cannot provide one.
// A bind failure matches ErrBind.
func Listen(port int, opts ...ServerOption) (*Server, error) {
	s := newServer(opts)
	lc := listenConfig()
	ctx := context.Background()
	p := strconv.Itoa(port)

	listener, err := lc.Listen(ctx, "tcp6", net.JoinHostPort("::", p))
	if err != nil {
		s.logger.Warn("dual-stack bind failed, falling back to IPv4", "port", port, "error", err)

		listener, err = lc.Listen(ctx, "tcp4", net.JoinHostPort("0.0.0.0", p))
		if err != nil {
			return nil, fmt.Errorf("%w: port %d: %w", ErrBind, port, err)
		}
	}

	s.listener = listener
	return s, nil
}

// Serve accepts connections and runs handler on each one in turn.
// It returns ctx.Err() once the context is canceled, nil after Close, and the
// handler's error as soon as a session fails.
// Canceling the context also closes the connection of the running session.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr().String())

	group, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	group.Go(func() error {
		select {
		case <-ctx.Done():
		case <-done:
		}
		s.markShutdown()
		_ = s.listener.Close()
		return nil
	})

	group.Go(func() error {
		defer close(done)
		return s.acceptLoop(ctx, handler)
	})

	return group.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, handler Handler) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShutdown() {
				s.logger.Info("server stopped", "addr", s.listener.Addr().String())
				return ctx.Err()
			}

			// Check if it's a temporary error
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return errors.Wrap(err, "accept")
		}

		if err := s.session(ctx, handler, conn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (s *Server) session(ctx context.Context, handler Handler, conn net.Conn) error {
	remote := conn.RemoteAddr().String()
	s.logger.Info("client connected", "remote_addr", remote)

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err := handler.Handle(ctx, conn)
	_ = conn.Close()

	if err != nil {
		s.logger.Error("session failed", "remote_addr", remote, "error", err)
		return err
	}
	s.logger.Info("client disconnected", "remote_addr", remote)
	return nil
}

func (s *Server) markShutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Close stops the server by closing the underlying listener.
// A blocked Accept returns and Serve returns nil.
func (s *Server) Close() error {
	s.markShutdown()
	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
