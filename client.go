package wirecheck

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Dial resolves host and tries every address it maps to, in order, until one
// accepts. If none does, the error matches ErrConnect.
// The returned Conn is configured with opt.
func Dial(ctx context.Context, host string, port int, opt ...Option) (*Conn, error) {
	opts, err := buildOptions(opt)
	if err != nil {
		return nil, err
	}
	logger := opts.logger

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrConnect, host, err)
	}

	var dialer net.Dialer
	var lastErr error
	for _, addr := range addrs {
		target := net.JoinHostPort(addr.String(), strconv.Itoa(port))
		logger.Info("attempting to connect", "addr", target)

		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			logger.Warn("failed to connect", "addr", target, "error", err)
			lastErr = err
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		logger.Info("connected", "addr", target)
		return newConnWithOptions(conn, opts), nil
	}

	logger.Warn("no working connections", "host", host, "port", port)
	if lastErr == nil {
		return nil, fmt.Errorf("%w: %s:%d: no addresses", ErrConnect, host, port)
	}
	return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnect, host, port, lastErr)
}
