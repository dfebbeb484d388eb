/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/specrun/pkg/ci"
	"github.com/NVIDIA/specrun/pkg/config"
	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/manifest"
	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/runner"
)

const fooSpec = `Name: foo
Version: 1.0
Release: 1
Summary: The foo tool
License: MIT

%description
Foo.

%if 0%{?suse_version}
%files
%{python3_sitelib}/foo
%else
%files
%{_bindir}/foo
%endif
`

const suseOnlySpec = `Name: foo
Version: 1.0
%if 0%{?suse_version}
Summary: suse
%endif
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	return newRootCmd().Run(context.Background(), append([]string{name}, args...))
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestParseCommand(t *testing.T) {
	spec := writeFile(t, "foo.spec", fooSpec)
	out := filepath.Join(t.TempDir(), "outline.json")

	require.NoError(t, runCLI(t, "parse", "--format", "json", "--output", out, spec))

	var got recipe.Outline
	readJSON(t, out, &got)
	assert.Equal(t, spec, got.Source)
	require.Len(t, got.Conditionals, 1)
	assert.NotEmpty(t, got.Conditionals[0].Branches)
	assert.NotEmpty(t, got.Tags)
}

func TestParseCommandErrors(t *testing.T) {
	bad := writeFile(t, "bad.spec", "Name: foo\n%if 0%{?suse_version}\n")

	err := runCLI(t, "parse", bad)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeParse), err.Error())

	assert.Error(t, runCLI(t, "parse"), "missing argument")
	assert.Error(t, runCLI(t, "parse", filepath.Join(t.TempDir(), "missing.spec")))
	assert.Error(t, runCLI(t, "parse", "--format", "xml", writeFile(t, "foo.spec", fooSpec)))
}

func TestFmtCommand(t *testing.T) {
	spec := writeFile(t, "foo.spec", "name: foo\nversion: 1.0\n")
	out := filepath.Join(t.TempDir(), "formatted.spec")

	require.NoError(t, runCLI(t, "fmt", "--output", out, spec))
	formatted, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(formatted), "Name: foo")
	assert.Contains(t, string(formatted), "Version: 1.0")

	err = runCLI(t, "fmt", "--check", spec)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	assert.NoError(t, runCLI(t, "fmt", "--check", out), "formatted output is canonical")

	require.NoError(t, runCLI(t, "fmt", "--write", spec))
	rewritten, err := os.ReadFile(spec)
	require.NoError(t, err)
	assert.Equal(t, string(formatted), string(rewritten))
}

func TestFmtCommandWriteRequiresFile(t *testing.T) {
	assert.Error(t, runCLI(t, "fmt", "--write", "-"))
	assert.Error(t, runCLI(t, "fmt", "--write", "https://example.com/foo.spec"))
}

func TestResolveCommand(t *testing.T) {
	spec := writeFile(t, "foo.spec", fooSpec)

	tests := []struct {
		name      string
		args      []string
		wantGlobs []string
	}{
		{"other distro takes else branch", []string{"--distro", "other"}, []string{"%{_bindir}/foo"}},
		{"no context takes else branch", nil, []string{"%{_bindir}/foo"}},
		{"suse takes if branch", []string{"--distro", "suse", "--distro-version", "1500"}, []string{"%{python3_sitelib}/foo"}},
		{"suse via define", []string{"-D", "suse_version=1500"}, []string{"%{python3_sitelib}/foo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "recipe.json")
			args := append([]string{"resolve", "--format", "json", "--output", out}, tt.args...)
			require.NoError(t, runCLI(t, append(args, spec)...))

			var got recipe.Recipe
			readJSON(t, out, &got)
			assert.Equal(t, "foo", got.Name())
			require.Len(t, got.Packages, 1)
			assert.Equal(t, tt.wantGlobs, got.Packages[0].Globs())
		})
	}
}

func TestResolveCommandUnresolved(t *testing.T) {
	spec := writeFile(t, "suse.spec", suseOnlySpec)
	out := filepath.Join(t.TempDir(), "recipe.json")

	err := runCLI(t, "resolve", "--distro", "fedora", "--output", out, spec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnresolvedCondition), err.Error())
	assert.Equal(t, 1, exitCode(err))

	assert.NoError(t, runCLI(t, "resolve", "--distro", "fedora", "--implicit-default", "--output", out, spec))
}

func TestResolveCommandConfigFile(t *testing.T) {
	spec := writeFile(t, "foo.spec", fooSpec)
	cfg := writeFile(t, "specrun.yaml", "distro: suse\ndistroVersion: \"1500\"\nformat: json\n")

	out := filepath.Join(t.TempDir(), "recipe.json")
	require.NoError(t, runCLI(t, "--config", cfg, "resolve", "--output", out, spec))
	var got recipe.Recipe
	readJSON(t, out, &got)
	require.Len(t, got.Packages, 1)
	assert.Equal(t, []string{"%{python3_sitelib}/foo"}, got.Packages[0].Globs())

	// flags override the file
	require.NoError(t, runCLI(t, "--config", cfg, "resolve", "--distro", "other", "--output", out, spec))
	readJSON(t, out, &got)
	assert.Equal(t, []string{"%{_bindir}/foo"}, got.Packages[0].Globs())
}

func TestResolveCommandInvalidContext(t *testing.T) {
	spec := writeFile(t, "foo.spec", fooSpec)

	err := runCLI(t, "resolve", "--distro", "plan9", spec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest), err.Error())

	err = runCLI(t, "resolve", "--with", "docs", "--without", "docs", spec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest), err.Error())

	assert.Error(t, runCLI(t, "resolve", "-D", "novalue", spec))
}

func TestLintCommand(t *testing.T) {
	spec := writeFile(t, "suse.spec", suseOnlySpec)
	out := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, runCLI(t, "lint", "--format", "json", "--output", out, spec))
	var rep recipe.Report
	readJSON(t, out, &rep)
	assert.True(t, rep.HasErrors())

	codes := make([]string, 0, len(rep.Issues))
	for _, i := range rep.Issues {
		codes = append(codes, i.Code)
	}
	assert.Contains(t, codes, recipe.IssueUnresolved)

	err := runCLI(t, "lint", "--fail-on-error", "--output", out, spec)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	assert.Error(t, runCLI(t, "lint", "--distros", "plan9", spec))
}

func TestLintOptions(t *testing.T) {
	var got recipe.CheckOptions
	cmd := lintCmd()
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		var err error
		got, err = lintOptions(c)
		return err
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"lint", "--distros", "fedora,sles", "--skip-license"}))
	assert.True(t, got.SkipLicense)
	assert.Equal(t, []string{"fedora", "suse"}, got.Domains[recipe.FamilyDistro])
}

func TestMatrixCommand(t *testing.T) {
	spec := writeFile(t, "foo.spec", fooSpec)
	out := filepath.Join(t.TempDir(), "matrix.json")

	require.NoError(t, runCLI(t, "matrix", "--format", "json", "--output", out, spec))
	var m recipe.Matrix
	readJSON(t, out, &m)
	assert.Equal(t, "foo", m.Name)
	assert.Len(t, m.Cells, 4)
	assert.Len(t, m.Buildable(), 4)

	require.NoError(t, runCLI(t, "matrix", "--arches", "x86_64", "--distros", "fedora",
		"--format", "json", "--output", out, spec))
	m = recipe.Matrix{}
	readJSON(t, out, &m)
	assert.Len(t, m.Cells, 3)
}

func TestMatrixCommandWorkflow(t *testing.T) {
	spec := writeFile(t, "suse.spec", suseOnlySpec)
	out := filepath.Join(t.TempDir(), "workflow.json")

	require.NoError(t, runCLI(t, "matrix", "--provider", "github", "--arches", "x86_64",
		"--format", "json", "--output", out, spec))
	var wf ci.Workflow
	readJSON(t, out, &wf)
	job, ok := wf.Jobs["build"]
	require.True(t, ok)
	require.NotNil(t, job.Strategy)
	require.Len(t, job.Strategy.Matrix.Include, 1)
	assert.Equal(t, "suse", job.Strategy.Matrix.Include[0].Distro)

	assert.Error(t, runCLI(t, "matrix", "--provider", "gitlab", spec))
	assert.Error(t, runCLI(t, "matrix", "--provider", "github", "-"))
	assert.Error(t, runCLI(t, "matrix", "--distros", "plan9", spec))
}

const buildSpec = `Name: foo
Version: 1.0
Release: 1
Summary: Foo
License: MIT

%description
Foo.

%install
mkdir -p "$RPM_BUILD_ROOT/usr/bin"
echo foo > "$RPM_BUILD_ROOT/usr/bin/foo"
chmod 0755 "$RPM_BUILD_ROOT/usr/bin/foo"

%files
/usr/bin/foo
`

func TestBuildCommand(t *testing.T) {
	sh := requireShell(t)
	spec := writeFile(t, "foo.spec", buildSpec)
	work := filepath.Join(t.TempDir(), "work")
	out := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, runCLI(t, "build", "--shell", sh, "--workdir", work,
		"--format", "json", "--output", out, spec))

	var res runner.Result
	readJSON(t, out, &res)
	assert.Equal(t, "foo", res.Recipe)
	assert.Empty(t, res.Failed)
	assert.Equal(t, filepath.Join(work, defaults.OutputDirName, defaults.ManifestFileName), res.ManifestPath)

	m, err := manifest.Load(res.ManifestPath)
	require.NoError(t, err)
	pkg, ok := m.Package("foo")
	require.True(t, ok)
	require.Len(t, pkg.Files, 1)
	assert.Equal(t, "/usr/bin/foo", pkg.Files[0].Path)
}

func TestBuildCommandStageFailure(t *testing.T) {
	sh := requireShell(t)
	spec := writeFile(t, "foo.spec", "Name: foo\nVersion: 1.0\n\n%build\nexit 3\n\n%files\n")
	out := filepath.Join(t.TempDir(), "result.json")

	err := runCLI(t, "build", "--shell", sh, "--workdir", filepath.Join(t.TempDir(), "work"),
		"--format", "json", "--output", out, spec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStageExecution), err.Error())
	assert.Equal(t, 3, exitCode(err))

	var res runner.Result
	readJSON(t, out, &res)
	assert.Equal(t, runner.StageBuild, res.Failed)
}

func TestBuildCommandDryRun(t *testing.T) {
	spec := writeFile(t, "foo.spec", buildSpec)
	work := filepath.Join(t.TempDir(), "work")
	out := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, runCLI(t, "build", "--dry-run", "--workdir", work, "--format", "json", "--output", out, spec))

	var res runner.Result
	readJSON(t, out, &res)
	for _, s := range res.Stages {
		assert.NotEqual(t, runner.StatusSucceeded, s.Status, s.Stage)
	}
	_, err := os.Stat(work)
	assert.True(t, os.IsNotExist(err), "dry run must not create the work directory")
}

func TestBuildCommandInvalidStage(t *testing.T) {
	spec := writeFile(t, "foo.spec", buildSpec)
	err := runCLI(t, "build", "--until", "deploy", "--dry-run", spec)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest), err.Error())
}

func TestPublishReference(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		cfg     config.Publish
		want    string
		wantErr bool
	}{
		{
			name: "argument",
			args: []string{"oci://ghcr.io/nvidia/packages:1.0-1"},
			want: "oci://ghcr.io/nvidia/packages:1.0-1",
		},
		{
			name: "registry and repository",
			cfg:  config.Publish{Registry: "ghcr.io/", Repository: "/nvidia/packages"},
			want: "oci://ghcr.io/nvidia/packages",
		},
		{
			name: "tag flag overrides",
			args: []string{"--tag", "dev", "oci://ghcr.io/nvidia/packages:1.0-1"},
			want: "oci://ghcr.io/nvidia/packages:dev",
		},
		{
			name:    "nothing set",
			wantErr: true,
		},
		{
			name:    "registry only",
			cfg:     config.Publish{Registry: "ghcr.io"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := publishCmd()
			cmd.Action = func(_ context.Context, c *cli.Command) error {
				ref, err := publishReference(c, &config.Config{Publish: tt.cfg})
				if tt.wantErr {
					assert.Error(t, err)
					return nil
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, ref.String())
				return nil
			}
			require.NoError(t, cmd.Run(context.Background(), append([]string{"publish"}, tt.args...)))
		})
	}
}

func TestPublishCommandMissingManifest(t *testing.T) {
	work := filepath.Join(t.TempDir(), "work")
	err := runCLI(t, "publish", "--workdir", work, "oci://registry.example.com/nvidia/packages")
	require.Error(t, err)
}
