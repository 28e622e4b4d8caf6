package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Zereker/wirecheck"
)

func newClientCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "client <ip> <port>",
		Short: "Connect to a server and answer every exchange",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			if err := a.openLog("client"); err != nil {
				return err
			}
			suite, err := a.cfg.Suite()
			if err != nil {
				return err
			}

			conn, err := wirecheck.Dial(cmd.Context(), args[0], port, a.connOptions()...)
			if err != nil {
				return err
			}
			defer conn.Close()

			// Unblock a pending read on SIGINT/SIGTERM.
			stop := context.AfterFunc(cmd.Context(), func() { _ = conn.Close() })
			defer stop()

			if err := suite.Run(conn, wirecheck.Responder); err != nil {
				if ctxErr := cmd.Context().Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}
			return nil
		},
	}
}
