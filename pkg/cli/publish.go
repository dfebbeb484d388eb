/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/config"
	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/oci"
	"github.com/NVIDIA/specrun/pkg/runner"
)

func publishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Push a built package to an OCI registry",
		ArgsUsage: "[REFERENCE]",
		Description: `Push the files of one manifest package as an OCI artifact. The files are
verified against the manifest digests before the push. The tag defaults
to the package EVR. Transient registry errors are retried with
exponential backoff.

REFERENCE is a full reference such as oci://ghcr.io/nvidia/packages:1.0-1.
Without it, --registry and --repository (or the publish section of the
config file) name the destination.

Examples:
  specrun publish --registry ghcr.io --repository nvidia/packages
  specrun publish --package foo-devel --plain-http oci://localhost:5000/packages
  specrun publish --manifest out/manifest.yaml --buildroot out/root oci://ghcr.io/nvidia/foo:dev`,
		Flags: []cli.Flag{
			workdirFlag(),
			&cli.StringFlag{
				Name:  "manifest",
				Usage: "manifest written by the package stage (default: WORKDIR/OUTPUT/" + defaults.ManifestFileName + ")",
			},
			&cli.StringFlag{
				Name:  "buildroot",
				Usage: "install root the manifest paths are relative to (default: WORKDIR/BUILDROOT)",
			},
			&cli.StringFlag{
				Name:  "package",
				Usage: "manifest package to publish, required when the manifest has more than one",
			},
			&cli.StringFlag{
				Name:    "registry",
				Usage:   "OCI registry host, e.g. ghcr.io",
				Sources: cli.EnvVars("SPECRUN_REGISTRY"),
			},
			&cli.StringFlag{
				Name:    "repository",
				Usage:   "repository path within the registry",
				Sources: cli.EnvVars("SPECRUN_REPOSITORY"),
			},
			&cli.StringFlag{
				Name:  "tag",
				Usage: "image tag (default: the package EVR)",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "use HTTP instead of HTTPS for the registry",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "skip TLS certificate verification",
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "retries after the first push attempt",
				Value: defaults.PublishMaxRetries,
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
			ref, err := publishReference(cmd, cfg)
			if err != nil {
				return err
			}

			r, err := runner.New(runner.Options{WorkDir: cfg.WorkDir})
			if err != nil {
				return err
			}
			layout := r.Layout()
			manifestPath := cmd.String("manifest")
			if manifestPath == "" {
				manifestPath = filepath.Join(layout.OutputDir, defaults.ManifestFileName)
			}
			buildRoot := cmd.String("buildroot")
			if buildRoot == "" {
				buildRoot = layout.BuildRoot
			}

			res, err := oci.Push(ctx, oci.PushOptions{
				ManifestPath: manifestPath,
				BuildRoot:    buildRoot,
				Package:      cmd.String("package"),
				Reference:    ref,
				PlainHTTP:    cfg.Publish.PlainHTTP,
				InsecureTLS:  cfg.Publish.InsecureSkipTLSVerify,
				MaxRetries:   int(cmd.Int("max-retries")),
			})
			if err != nil {
				return err
			}
			return writeResult(ctx, cmd, outFormat, res)
		},
	}
}

// publishReference builds the destination from the REFERENCE argument or
// the registry and repository settings. --tag overrides either.
func publishReference(cmd *cli.Command, cfg *config.Config) (*oci.Reference, error) {
	target := cmd.Args().First()
	if target == "" {
		if cfg.Publish.Registry == "" || cfg.Publish.Repository == "" {
			return nil, fmt.Errorf("a reference argument or both --registry and --repository are required")
		}
		target = strings.TrimSuffix(cfg.Publish.Registry, "/") + "/" + strings.TrimPrefix(cfg.Publish.Repository, "/")
	}
	ref, err := oci.ParseReference(target)
	if err != nil {
		return nil, err
	}
	if tag := cmd.String("tag"); tag != "" {
		ref = ref.WithTag(tag)
	}
	return ref, nil
}
