/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/serializer"
	"github.com/NVIDIA/specrun/pkg/specfile"
)

func parseCmd() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Parse a recipe and print its outline",
		ArgsUsage: "FILE",
		Description: `Parse a recipe without resolving it and print the tags, sections,
conditionals and bconds it declares. FILE may be a path, an http(s) URL,
or - for stdin.

Examples:
  specrun parse foo.spec
  specrun parse --format json https://example.com/foo.spec`,
		Flags: []cli.Flag{
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
			doc, err := readRecipe(ctx, cmd)
			if err != nil {
				return err
			}
			return writeResult(ctx, cmd, outFormat, doc.Outline())
		},
	}
}

func fmtCmd() *cli.Command {
	return &cli.Command{
		Name:      "fmt",
		Usage:     "Print a recipe in canonical form",
		ArgsUsage: "FILE",
		Description: `Re-emit a recipe with canonical tag spelling and layout. Formatting is
idempotent and keeps every tag, section and conditional.

Examples:
  specrun fmt foo.spec
  specrun fmt --write foo.spec
  specrun fmt --check foo.spec`,
		Flags: []cli.Flag{
			outputFlag(),
			&cli.BoolFlag{
				Name:    "write",
				Aliases: []string{"w"},
				Usage:   "rewrite FILE in place",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "exit with status 1 when FILE is not in canonical form",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src := cmd.Args().First()
			if cmd.Bool("write") && (src == serializer.StdinSource || serializer.IsURL(src)) {
				return fmt.Errorf("--write requires a local file, got %q", src)
			}
			doc, orig, err := readRecipeSource(ctx, cmd)
			if err != nil {
				return err
			}
			out := specfile.FormatString(doc)

			if cmd.Bool("check") {
				if string(orig) != out {
					return cli.Exit(fmt.Sprintf("%s is not formatted", src), 1)
				}
				return nil
			}

			if cmd.Bool("write") {
				return serializer.WriteToFile(src, []byte(out))
			}
			if path := cmd.String("output"); path != "" && path != "-" {
				return serializer.WriteToFile(path, []byte(out))
			}
			_, err = fmt.Fprint(os.Stdout, out)
			return err
		},
	}
}

func resolveCmd() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a recipe against a build context",
		ArgsUsage: "FILE",
		Description: `Evaluate every conditional of a recipe against the build context and print
the flat recipe: tags, macros, stage scripts and the file lists of every
package. A conditional that matches no branch and has no %else fails
unless --implicit-default is set.

Examples:
  specrun resolve --distro suse --distro-version 1500 foo.spec
  specrun resolve --distro auto --with docs --format json foo.spec
  specrun resolve -D suse_version=1600 foo.spec`,
		Flags: append(contextFlags(),
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
			return writeResult(ctx, cmd, outFormat, rec)
		},
	}
}

func lintCmd() *cli.Command {
	return &cli.Command{
		Name:      "lint",
		Usage:     "Check a recipe under every build context",
		ArgsUsage: "FILE",
		Description: `Check that every conditional selects exactly one branch for every value of
its family, that the required tags are present, that License is a valid
SPDX expression, and that every declared package has a %files section.

Examples:
  specrun lint foo.spec
  specrun lint --distros fedora,azurelinux --fail-on-error foo.spec`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fail-on-error",
				Usage: "exit with status 1 when the report has errors",
			},
			&cli.StringSliceFlag{
				Name:  "distros",
				Usage: "additional distros to check conditionals against (can be repeated)",
			},
			&cli.BoolFlag{
				Name:  "skip-license",
				Usage: "skip SPDX validation of the License tag",
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
			opts, err := lintOptions(cmd)
			if err != nil {
				return err
			}
			doc, err := readRecipe(ctx, cmd)
			if err != nil {
				return err
			}

			rep := recipe.Check(doc, opts)
			if err := writeResult(ctx, cmd, outFormat, rep); err != nil {
				return err
			}
			if cmd.Bool("fail-on-error") && rep.HasErrors() {
				return cli.Exit(fmt.Sprintf("%s: %d errors, %d warnings", doc.Source,
					rep.Count(recipe.SeverityError), rep.Count(recipe.SeverityWarning)), 1)
			}
			return nil
		},
	}
}

func lintOptions(cmd *cli.Command) (recipe.CheckOptions, error) {
	opts := recipe.CheckOptions{SkipLicense: cmd.Bool("skip-license")}
	for _, d := range cmd.StringSlice("distros") {
		profile, err := recipe.ParseDistroProfile(d)
		if err != nil {
			return opts, err
		}
		if opts.Domains == nil {
			opts.Domains = map[recipe.Family][]string{}
		}
		opts.Domains[recipe.FamilyDistro] = append(opts.Domains[recipe.FamilyDistro], string(profile))
	}
	return opts, nil
}
