/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/ci"
	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/serializer"
)

func matrixCmd() *cli.Command {
	return &cli.Command{
		Name:      "matrix",
		Usage:     "List the build contexts a recipe distinguishes",
		ArgsUsage: "FILE",
		Description: `Enumerate every distro, distro version and architecture combination the
recipe's conditionals tell apart and resolve the recipe under each. With
--provider, emit a CI workflow that builds every combination that resolves.

Examples:
  specrun matrix foo.spec
  specrun matrix --arches x86_64 --distros fedora foo.spec
  specrun matrix --provider github --run-check -o .github/workflows/foo.yaml foo.spec`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "distros",
				Usage: "additional distros to include (can be repeated)",
			},
			&cli.StringSliceFlag{
				Name:  "arches",
				Usage: fmt.Sprintf("architectures to include (default: %v)", recipe.DefaultMatrixArches),
			},
			&cli.BoolFlag{
				Name:  "implicit-default",
				Usage: "select nothing, instead of failing, for a conditional with no matching branch and no %else",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "emit a workflow for this CI provider (github)",
			},
			&cli.BoolFlag{
				Name:  "run-check",
				Usage: "run the %check stage in generated CI builds",
			},
			&cli.StringSliceFlag{
				Name:  "branch",
				Usage: "branches that trigger the generated workflow (default: main)",
			},
			&cli.StringFlag{
				Name:  "specrun-version",
				Value: "latest",
				Usage: "specrun version installed by the generated workflow",
			},
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			outFormat, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}
			opts, err := matrixOptions(cmd)
			if err != nil {
				return err
			}
			opts.ImplicitDefault = cfg.ImplicitDefault

			var provider ci.Provider
			if cmd.IsSet("provider") {
				if provider, err = ci.ParseProvider(cmd.String("provider")); err != nil {
					return err
				}
				src := cmd.Args().First()
				if src == serializer.StdinSource || serializer.IsURL(src) {
					return fmt.Errorf("--provider requires a local recipe path, got %q", src)
				}
			}

			doc, err := readRecipe(ctx, cmd)
			if err != nil {
				return err
			}
			m := recipe.BuildMatrix(doc, opts)
			slog.Debug("matrix built", "source", m.Source, "cells", len(m.Cells), "buildable", len(m.Buildable()))

			if provider == "" {
				return writeResult(ctx, cmd, outFormat, m)
			}
			wf, err := ci.GitHub(m, ci.Options{
				Recipe:   cmd.Args().First(),
				RunCheck: cmd.Bool("run-check"),
				Branches: cmd.StringSlice("branch"),
				Version:  cmd.String("specrun-version"),
			})
			if err != nil {
				return err
			}
			return writeResult(ctx, cmd, outFormat, wf)
		},
	}
}

func matrixOptions(cmd *cli.Command) (recipe.MatrixOptions, error) {
	opts := recipe.MatrixOptions{Arches: cmd.StringSlice("arches")}
	for _, d := range cmd.StringSlice("distros") {
		profile, err := recipe.ParseDistroProfile(d)
		if err != nil {
			return opts, err
		}
		opts.Distros = append(opts.Distros, string(profile))
	}
	return opts, nil
}
