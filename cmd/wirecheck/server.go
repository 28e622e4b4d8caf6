package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"

	"github.com/Zereker/wirecheck"
)

func newServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server <port>",
		Short: "Accept clients one at a time and request every exchange",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			if err := a.openLog("server"); err != nil {
				return err
			}
			suite, err := a.cfg.Suite()
			if err != nil {
				return err
			}

			srv, err := wirecheck.Listen(port, wirecheck.ServerLoggerOption(a.logger))
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.Serve(cmd.Context(), sessionHandler(a, suite))
		},
	}
}

// sessionHandler runs the requesting half of suite over each client.
func sessionHandler(a *app, suite wirecheck.Suite) wirecheck.Handler {
	return wirecheck.HandlerFunc(func(ctx context.Context, raw net.Conn) error {
		conn, err := wirecheck.NewConn(raw, a.connOptions()...)
		if err != nil {
			return err
		}
		defer conn.Close()

		return suite.Run(conn, wirecheck.Requester)
	})
}
