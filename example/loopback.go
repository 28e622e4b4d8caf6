package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Zereker/wirecheck"
)

// One server, one client, one session over loopback. The server requests
// every exchange and the client answers them.
func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}

	server, err := wirecheck.New(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(98)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	suite := wirecheck.DefaultSuite(4 * 1024 * 1024)
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Serve(ctx, wirecheck.HandlerFunc(func(ctx context.Context, raw net.Conn) error {
			conn, err := wirecheck.NewConn(raw)
			if err != nil {
				return err
			}
			defer conn.Close()

			err = suite.Run(conn, wirecheck.Requester)
			// One session is all this example runs.
			_ = server.Close()
			return err
		}))
	})

	group.Go(func() error {
		port := server.Addr().(*net.TCPAddr).Port
		conn, err := wirecheck.Dial(ctx, "127.0.0.1", port)
		if err != nil {
			return err
		}
		defer conn.Close()

		return suite.Run(conn, wirecheck.Responder)
	})

	if err := group.Wait(); err != nil {
		slog.Error("session failed", "error", err)
		os.Exit(1)
	}
	slog.Info("all tests passed")
}
