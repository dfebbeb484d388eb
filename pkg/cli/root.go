/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/logging"
	"github.com/NVIDIA/specrun/pkg/runner"
)

const (
	name           = "specrun"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "specrun - conditional packaging recipe evaluator",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		EnableShellCompletion: true,
		ShellComplete:         commandLister,
		Description: `Parse, resolve, lint and build RPM-style packaging recipes.

A recipe is resolved against a build context (distro, arch, bconds and
defines) into a flat recipe, which the build command runs through the
prepare, build, install, check and package stages. The package stage writes
a manifest of the build root that publish pushes to an OCI registry.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("SPECRUN_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file with build defaults, overridden by flags",
				Sources: cli.EnvVars("SPECRUN_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "metrics-file",
				Usage:   "write Prometheus metrics in text format to this file on exit",
				Sources: cli.EnvVars("SPECRUN_METRICS_FILE"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			initLogger(cmd.String("log-level"))
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			return writeMetrics(cmd.String("metrics-file"), prometheus.DefaultGatherer)
		},
		// Exit codes are decided by Execute.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			parseCmd(),
			fmtCmd(),
			resolveCmd(),
			lintCmd(),
			matrixCmd(),
			buildCmd(),
			publishCmd(),
			serveCmd(),
		},
	}
}

// Execute runs the root command and exits the process on failure.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().Run(ctx, os.Args)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status. A failed stage
// exits with the status of its failing command.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *runner.StageError
	if errors.As(err, &se) && se.ExitCode > 0 {
		return se.ExitCode
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) && ec.ExitCode() > 0 {
		return ec.ExitCode()
	}
	return 1
}

// initLogger configures slog once flags are parsed so --log-level takes
// effect before any command executes.
func initLogger(level string) {
	logging.SetDefaultStructuredLoggerWithLevel(name, version, level)
	slog.Debug("starting",
		"name", name,
		"version", version,
		"commit", commit,
		"date", date,
		"logLevel", level)
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	slog.Debug("metrics written", "path", path)
	return nil
}

// commandLister prints the visible subcommands, one per line, for shell
// completion.
func commandLister(_ context.Context, cmd *cli.Command) {
	if cmd == nil {
		return
	}
	var w io.Writer = os.Stdout
	if cmd.Writer != nil {
		w = cmd.Writer
	}
	for _, c := range cmd.Commands {
		if c.Hidden {
			continue
		}
		fmt.Fprintln(w, c.Name)
	}
}
