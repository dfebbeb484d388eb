/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/runner"
)

func workdirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "workdir",
		Usage:   "directory holding BUILD, BUILDROOT and OUTPUT",
		Value:   defaults.WorkDir,
		Sources: cli.EnvVars("SPECRUN_WORKDIR"),
	}
}

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Run the lifecycle stages of a recipe",
		ArgsUsage: "FILE",
		Description: `Resolve a recipe and run its prepare, build, install, check and package
stages in order. Each stage runs as one shell script with the recipe
macros expanded. The first failing stage halts the run and the process
exits with the status of the failing command.

The package stage writes a manifest of the build root for each package
to OUTPUT/` + defaults.ManifestFileName + `, which publish pushes to an OCI registry.

Examples:
  specrun build --distro auto foo.spec
  specrun build --until install --nocheck foo.spec
  specrun build --dry-run --distro fedora foo.spec`,
		Flags: append(contextFlags(),
			workdirFlag(),
			&cli.StringFlag{
				Name:    "sourcedir",
				Usage:   "directory holding Source and Patch files",
				Sources: cli.EnvVars("SPECRUN_SOURCEDIR"),
			},
			&cli.StringFlag{
				Name:    "shell",
				Usage:   "shell that runs stage scripts",
				Sources: cli.EnvVars("SPECRUN_SHELL"),
			},
			&cli.StringFlag{
				Name:  "until",
				Usage: "stop after this stage (prepare, build, install, check, package)",
			},
			&cli.BoolFlag{
				Name:  "nocheck",
				Usage: "skip the check stage",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the expanded stage scripts instead of running them",
			},
			&cli.DurationFlag{
				Name:  "stage-timeout",
				Usage: "timeout for a single stage",
				Value: defaults.StageTimeout,
			},
			outputFlag(),
			formatFlag(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			outFormat, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}
			rec, err := resolveRecipe(ctx, cmd, cfg)
			if err != nil {
				return err
			}

			dryRun := cmd.Bool("dry-run")
			// Stage output goes to stderr so stdout carries only the result,
			// except for a dry run where the scripts are the result.
			var stdout io.Writer = os.Stderr
			if dryRun {
				stdout = os.Stdout
			}

			r, err := runner.New(runner.Options{
				WorkDir:      cfg.WorkDir,
				SourceDir:    cfg.SourceDir,
				Shell:        cfg.Shell,
				Arch:         cfg.Arch,
				Until:        runner.Stage(cmd.String("until")),
				SkipCheck:    cmd.Bool("nocheck"),
				DryRun:       dryRun,
				StageTimeout: cmd.Duration("stage-timeout"),
				Stdout:       stdout,
				Stderr:       os.Stderr,
				Version:      version,
			})
			if err != nil {
				return err
			}

			res, runErr := r.Run(ctx, rec)
			if res != nil && (!dryRun || cmd.String("output") != "") {
				if err := writeResult(ctx, cmd, outFormat, res); err != nil {
					slog.Error("failed to write build result", "error", err)
				}
			}
			return runErr
		},
	}
}
