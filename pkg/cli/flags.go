/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/config"
	"github.com/NVIDIA/specrun/pkg/host"
	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/serializer"
	"github.com/NVIDIA/specrun/pkg/specfile"
)

// distroAuto selects the distro of the running host.
const distroAuto = "auto"

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file path (default: stdout)",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Usage:   fmt.Sprintf("output format (%s)", strings.Join(serializer.SupportedFormats(), ", ")),
		Value:   string(serializer.FormatYAML),
		Sources: cli.EnvVars("SPECRUN_FORMAT"),
	}
}

// contextFlags select the build context a recipe is resolved against.
func contextFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name: "distro",
			Usage: fmt.Sprintf("target distro (%s, other, or %s for the host)",
				strings.Join(recipe.GetDistroProfiles(), ", "), distroAuto),
			Sources: cli.EnvVars("SPECRUN_DISTRO"),
		},
		&cli.StringFlag{
			Name:    "distro-version",
			Usage:   "value of the distro version macro, e.g. 1500 for %suse_version",
			Sources: cli.EnvVars("SPECRUN_DISTRO_VERSION"),
		},
		&cli.StringFlag{
			Name:    "arch",
			Usage:   "target architecture (RPM spelling, e.g. x86_64)",
			Sources: cli.EnvVars("SPECRUN_ARCH"),
		},
		&cli.StringSliceFlag{
			Name:  "with",
			Usage: "enable a bcond feature (can be repeated)",
		},
		&cli.StringSliceFlag{
			Name:  "without",
			Usage: "disable a bcond feature (can be repeated)",
		},
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "define a macro (format: name=value, can be repeated)",
		},
		&cli.BoolFlag{
			Name:  "implicit-default",
			Usage: "select nothing, instead of failing, for a conditional with no matching branch and no %else",
		},
	}
}

// loadConfig reads the --config file and overlays the flags set on cmd.
func loadConfig(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if err := applyFlags(ctx, cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
	strs := map[string]*string{
		"workdir":        &cfg.WorkDir,
		"sourcedir":      &cfg.SourceDir,
		"shell":          &cfg.Shell,
		"distro":         &cfg.Distro,
		"distro-version": &cfg.DistroVersion,
		"arch":           &cfg.Arch,
		"format":         &cfg.Format,
		"registry":       &cfg.Publish.Registry,
		"repository":     &cfg.Publish.Repository,
	}
	for flag, dst := range strs {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	if cmd.IsSet("with") {
		cfg.With = cmd.StringSlice("with")
	}
	if cmd.IsSet("without") {
		cfg.Without = cmd.StringSlice("without")
	}
	if cmd.IsSet("implicit-default") {
		cfg.ImplicitDefault = cmd.Bool("implicit-default")
	}
	if cmd.IsSet("plain-http") {
		cfg.Publish.PlainHTTP = cmd.Bool("plain-http")
	}
	if cmd.IsSet("insecure-tls") {
		cfg.Publish.InsecureSkipTLSVerify = cmd.Bool("insecure-tls")
	}

	defines, err := parseDefines(cmd.StringSlice("define"))
	if err != nil {
		return err
	}
	if len(defines) > 0 && cfg.Defines == nil {
		cfg.Defines = make(map[string]string, len(defines))
	}
	for k, v := range defines {
		cfg.Defines[k] = v
	}

	if strings.EqualFold(cfg.Distro, distroAuto) {
		return detectHost(ctx, cfg)
	}
	return nil
}

// detectHost replaces the auto distro with the one in os-release. An
// explicit distro version or arch is kept.
func detectHost(ctx context.Context, cfg *config.Config) error {
	rel, err := host.ReadRelease(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect host distro: %w", err)
	}
	profile, ver := rel.Distro()
	cfg.Distro = string(profile)
	if profile == recipe.DistroAny {
		cfg.Distro = "other"
	}
	if cfg.DistroVersion == "" {
		cfg.DistroVersion = ver
	}
	if cfg.Arch == "" {
		cfg.Arch = host.Arch()
	}
	slog.Debug("detected host context", "id", rel.ID, "distro", cfg.Distro,
		"distroVersion", cfg.DistroVersion, "arch", cfg.Arch)
	return nil
}

func parseDefines(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		k = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(k), "%"))
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid define %q, expected name=value", v)
		}
		out[k] = val
	}
	return out, nil
}

// parseOutputFormat returns the --format value of cmd.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	f := serializer.Format(cmd.String("format"))
	if f == "" || f.IsUnknown() {
		return "", fmt.Errorf("unknown output format %q, expected one of %v", f, serializer.SupportedFormats())
	}
	return f, nil
}

// outputFormat prefers the --format flag, then the config file.
func outputFormat(cmd *cli.Command, cfg *config.Config) (serializer.Format, error) {
	if !cmd.IsSet("format") && cfg != nil && cfg.Format != "" {
		return serializer.Format(cfg.Format), nil
	}
	return parseOutputFormat(cmd)
}

// writeResult serializes v to --output or stdout.
func writeResult(ctx context.Context, cmd *cli.Command, format serializer.Format, v any) error {
	ser := serializer.NewFileWriterOrStdout(format, cmd.String("output"))
	defer func() {
		if err := ser.Close(); err != nil {
			slog.Warn("failed to close serializer", "error", err)
		}
	}()
	return ser.Serialize(ctx, v)
}

// readRecipe parses the recipe named by the first argument: a file, an
// http(s) URL, or "-" for stdin.
func readRecipe(ctx context.Context, cmd *cli.Command) (*recipe.Document, error) {
	doc, _, err := readRecipeSource(ctx, cmd)
	return doc, err
}

// readRecipeSource is readRecipe that also returns the raw text.
func readRecipeSource(ctx context.Context, cmd *cli.Command) (*recipe.Document, []byte, error) {
	if cmd.Args().Len() != 1 {
		return nil, nil, fmt.Errorf("expected exactly one recipe argument, got %d", cmd.Args().Len())
	}
	src := cmd.Args().First()
	data, err := serializer.ReadSource(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	if src == serializer.StdinSource {
		src = "stdin"
	}
	doc, err := specfile.Parse(bytes.NewReader(data), src)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// resolveRecipe parses and resolves the recipe argument against the
// context built from cfg.
func resolveRecipe(ctx context.Context, cmd *cli.Command, cfg *config.Config) (*recipe.Recipe, error) {
	doc, err := readRecipe(ctx, cmd)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ContextOptions()
	if err != nil {
		return nil, err
	}
	rctx := recipe.NewContext(opts...)
	slog.Debug("resolving recipe", "source", doc.Source, "context", rctx.String())

	var ropts []recipe.ResolveOption
	if cfg.ImplicitDefault {
		ropts = append(ropts, recipe.WithImplicitDefault())
	}
	return recipe.Resolve(doc, rctx, ropts...)
}
