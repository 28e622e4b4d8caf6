package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Zereker/wirecheck"
	"github.com/Zereker/wirecheck/internal/config"
	"github.com/Zereker/wirecheck/internal/logging"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitBind    = 98
	exitConnect = 111
)

// errUsage marks argument and configuration problems.
var errUsage = errors.New("usage")

type app struct {
	cfgFile string
	cfg     config.Config
	logger  *logging.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "wirecheck",
		Short:         "Verify a peer's implementation of the wirecheck framing protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "TOML config file")
	root.AddCommand(newServerCmd(a), newClientCmd(a))
	return root
}

// openLog starts the role's log sink; the file defaults to <role>.log.
func (a *app) openLog(role string) error {
	file := a.cfg.Log.File
	if file == "" {
		file = role + ".log"
	}

	logger, err := logging.New(logging.Options{
		Level:   a.cfg.Log.Level,
		File:    file,
		NoColor: a.cfg.Log.NoColor,
	})
	if err != nil {
		return fmt.Errorf("%w: open log: %w", errUsage, err)
	}
	a.logger = logger
	return nil
}

func (a *app) connOptions() []wirecheck.Option {
	return append(a.cfg.ConnOptions(), wirecheck.LoggerOption(a.logger))
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", errUsage, raw)
	}
	return port, nil
}

func execute(args []string) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	code := exitCode(err)

	if a.logger != nil {
		if code != exitOK {
			a.logger.Error("exiting with error", "code", code, "error", err)
		} else {
			a.logger.Info("shutting down")
		}
		_ = a.logger.Close()
	} else if err != nil {
		fmt.Fprintln(os.Stderr, "wirecheck:", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, wirecheck.ErrBind):
		return exitBind
	case errors.Is(err, wirecheck.ErrConnect):
		return exitConnect
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		return exitFailed
	}
}
