/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/api"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the recipe API over HTTP",
		Description: `Start the HTTP API with the parse, fmt, resolve and lint endpoints under
/v1, plus /health, /ready and /metrics. The server shuts down gracefully
on SIGINT or SIGTERM.

Examples:
  specrun serve --port 8080
  curl -X POST --data-binary @foo.spec 'localhost:8080/v1/resolve?distro=suse@1500'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Usage:   "address to listen on (default: all interfaces)",
				Sources: cli.EnvVars("SPECRUN_ADDRESS"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "port to listen on (default: $PORT or 8080)",
				Sources: cli.EnvVars("SPECRUN_PORT"),
			},
			&cli.BoolFlag{
				Name:  "implicit-default",
				Usage: "resolve requests that omit implicitDefault as if it were true",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			return api.Serve(ctx, api.Options{
				Version:         version,
				Address:         cmd.String("address"),
				Port:            int(cmd.Int("port")),
				ImplicitDefault: cfg.ImplicitDefault,
			})
		},
	}
}
