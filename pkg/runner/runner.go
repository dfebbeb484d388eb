// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/macro"
	"github.com/NVIDIA/specrun/pkg/manifest"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

// Options configures a Runner.
type Options struct {
	// WorkDir holds BUILD, BUILDROOT and OUTPUT. Defaults to defaults.WorkDir.
	WorkDir string

	// SourceDir holds Source and Patch files. Defaults to the current directory.
	SourceDir string

	// Shell runs stage scripts when Executor is nil.
	Shell string

	// Arch is the target architecture. Defaults to the recipe context
	// selection, then the host.
	Arch string

	// Until stops the pipeline after the named stage.
	Until Stage

	// SkipCheck skips the check stage.
	SkipCheck bool

	// DryRun writes the expanded scripts to Stdout instead of running them.
	DryRun bool

	// StageTimeout bounds each stage. Defaults to defaults.StageTimeout.
	StageTimeout time.Duration

	Stdout io.Writer
	Stderr io.Writer

	// Executor defaults to a ShellExecutor.
	Executor Executor

	// Version is recorded in the manifest.
	Version string
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
	StatusPlanned   StageStatus = "planned"
)

// StageResult records one stage of a run.
type StageResult struct {
	Stage    Stage         `json:"stage" yaml:"stage"`
	Status   StageStatus   `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Result is the outcome of a run. It is returned alongside an error when a
// stage fails.
type Result struct {
	RunID        string             `json:"runId" yaml:"runId"`
	Recipe       string             `json:"recipe" yaml:"recipe"`
	Layout       Layout             `json:"layout" yaml:"layout"`
	Stages       []StageResult      `json:"stages" yaml:"stages"`
	Failed       Stage              `json:"failed,omitempty" yaml:"failed,omitempty"`
	Manifest     *manifest.Manifest `json:"-" yaml:"-"`
	ManifestPath string             `json:"manifestPath,omitempty" yaml:"manifestPath,omitempty"`
}

// Runner executes recipes. A Runner may be reused; each Run gets its own
// run ID and macro state.
type Runner struct {
	opts   Options
	exec   Executor
	layout Layout
}

// New validates options and resolves the run layout.
func New(opts Options) (*Runner, error) {
	if opts.Until != "" {
		if _, err := ParseStage(string(opts.Until)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid stage", err)
		}
	}
	layout, err := newLayout(opts.WorkDir, opts.SourceDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid layout", err)
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaults.StageTimeout
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	ex := opts.Executor
	if ex == nil {
		ex = &ShellExecutor{Shell: opts.Shell, KillGrace: defaults.StageKillGrace}
	}
	return &Runner{opts: opts, exec: ex, layout: layout}, nil
}

// Layout returns the directories a run uses.
func (r *Runner) Layout() Layout {
	return r.layout
}

// run carries the state of a single Run.
type run struct {
	*Runner
	id   string
	rec  *recipe.Recipe
	exp  *macro.Expander
	arch string
	log  *slog.Logger
	res  *Result
}

// Run executes the lifecycle stages of rec in order and halts at the first
// failure.
func (r *Runner) Run(ctx context.Context, rec *recipe.Recipe) (*Result, error) {
	if rec == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "recipe is required")
	}

	id := uuid.NewString()
	arch := r.arch(rec)
	st := &run{
		Runner: r,
		id:     id,
		rec:    rec,
		exp:    newExpander(rec, r.layout, arch),
		arch:   arch,
		log:    slog.With("runId", id, "recipe", rec.Name()),
		res:    &Result{RunID: id, Recipe: rec.Name(), Layout: r.layout},
	}

	if !r.opts.DryRun {
		for _, dir := range []string{r.layout.BuildDir, r.layout.BuildRoot, r.layout.OutputDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return st.res, errors.Wrap(errors.ErrCodeInternal, "failed to create work directory", err)
			}
		}
	}

	st.log.Info("starting run", "workDir", r.layout.WorkDir, "arch", arch, "dryRun", r.opts.DryRun)
	for _, stage := range Stages() {
		if err := ctx.Err(); err != nil {
			return st.res, cancelled(stage, err)
		}

		sr, err := st.stage(ctx, stage)
		st.res.Stages = append(st.res.Stages, sr)
		if err != nil {
			st.res.Failed = stage
			stageFailures.WithLabelValues(string(stage)).Inc()
			st.log.Error("stage failed", "stage", stage, "error", err)
			return st.res, err
		}
		if stage == r.opts.Until {
			st.log.Info("stopping after requested stage", "stage", stage)
			break
		}
	}
	st.log.Info("run complete", "stages", len(st.res.Stages))
	return st.res, nil
}

func (r *Runner) arch(rec *recipe.Recipe) string {
	if r.opts.Arch != "" {
		return r.opts.Arch
	}
	if rec.Context != nil {
		if sel := rec.Context.Selection(recipe.FamilyArch); sel.Profile != "" {
			return sel.Profile
		}
	}
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

func (st *run) stage(ctx context.Context, stage Stage) (StageResult, error) {
	sr := StageResult{Stage: stage}
	if stage == StageCheck && st.opts.SkipCheck {
		sr.Status, sr.Reason = StatusSkipped, "check disabled"
		st.log.Info("skipping stage", "stage", stage, "reason", sr.Reason)
		return sr, nil
	}

	start := time.Now()
	var err error
	if stage == StagePackage {
		sr, err = st.pkg(ctx, sr)
	} else {
		sr, err = st.script(ctx, sr)
	}
	sr.Duration = time.Since(start)
	if sr.Status != StatusSkipped {
		stageDuration.WithLabelValues(string(stage)).Observe(sr.Duration.Seconds())
	}
	return sr, err
}

func (st *run) script(ctx context.Context, sr StageResult) (StageResult, error) {
	stage := sr.Stage
	lines := st.rec.Script(stage.Section())
	if !hasCommands(lines) {
		sr.Status, sr.Reason = StatusSkipped, "no script"
		st.log.Info("skipping stage", "stage", stage, "reason", sr.Reason)
		return sr, nil
	}

	pre := preamble(st.exp, st.rec, st.layout, st.arch)
	body, err := st.exp.ExpandLines(lines)
	if err != nil {
		sr.Status = StatusFailed
		return sr, errors.WrapWithContext(errors.ErrCodeStageExecution,
			fmt.Sprintf("stage %s: macro expansion failed", stage), err,
			map[string]any{"stage": string(stage)})
	}
	script := pre + "\n" + strings.Join(body, "\n") + "\n"

	if st.opts.DryRun {
		sr.Status = StatusPlanned
		fmt.Fprintf(st.opts.Stdout, "### %s\n%s\n", stage, script)
		return sr, nil
	}

	if stage == StageInstall {
		if err := resetDir(st.layout.BuildRoot); err != nil {
			sr.Status = StatusFailed
			return sr, errors.WrapWithContext(errors.ErrCodeInternal, "failed to reset build root", err,
				map[string]any{"stage": string(stage)})
		}
	}

	st.log.Info("running stage", "stage", stage, "lines", len(body))
	sctx, cancel := context.WithTimeout(ctx, st.opts.StageTimeout)
	defer cancel()

	res, err := st.exec.Run(sctx, Command{
		Stage:  stage,
		Script: script,
		Dir:    st.layout.BuildDir,
		Stdout: st.opts.Stdout,
		Stderr: st.opts.Stderr,
	})
	if err != nil {
		sr.Status = StatusFailed
		if ctx.Err() == nil && stderrors.Is(err, context.DeadlineExceeded) {
			return sr, errors.WrapWithContext(errors.ErrCodeTimeout,
				fmt.Sprintf("stage %s exceeded %s", stage, st.opts.StageTimeout), err,
				map[string]any{"stage": string(stage)})
		}
		if ctx.Err() != nil {
			return sr, cancelled(stage, err)
		}
		return sr, errors.WrapWithContext(errors.ErrCodeStageExecution,
			fmt.Sprintf("stage %s could not be run", stage), err,
			map[string]any{"stage": string(stage)})
	}
	if res.ExitCode != 0 {
		sr.Status = StatusFailed
		se := &StageError{
			Stage:    stage,
			Command:  lastTraceLine(res.Stderr),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
		return sr, errors.WrapWithContext(errors.ErrCodeStageExecution,
			fmt.Sprintf("stage %s failed", stage), se,
			map[string]any{"stage": string(stage), "exitCode": se.ExitCode, "command": se.Command})
	}

	sr.Status = StatusSucceeded
	return sr, nil
}

func (st *run) pkg(ctx context.Context, sr StageResult) (StageResult, error) {
	if st.opts.DryRun {
		sr.Status = StatusPlanned
		fmt.Fprintf(st.opts.Stdout, "### %s\n# manifest %s -> %s\n", sr.Stage, st.layout.BuildRoot, st.layout.OutputDir)
		return sr, nil
	}

	m, err := manifest.Build(ctx, manifest.BuildOptions{
		Recipe:    st.rec,
		Expander:  st.exp,
		BuildRoot: st.layout.BuildRoot,
		BuildDir:  buildSubdir(st.exp, st.layout),
		Arch:      st.arch,
		RunID:     st.id,
		Version:   st.opts.Version,
	})
	if err != nil {
		sr.Status = StatusFailed
		return sr, err
	}
	path, err := manifest.Write(ctx, st.layout.OutputDir, m)
	if err != nil {
		sr.Status = StatusFailed
		return sr, errors.WrapWithContext(errors.ErrCodeStageExecution, "failed to write manifest", err,
			map[string]any{"stage": string(sr.Stage)})
	}

	st.res.Manifest = m
	st.res.ManifestPath = path
	sr.Status = StatusSucceeded
	return sr, nil
}

// hasCommands reports whether a script has anything besides blanks and
// comments.
func hasCommands(lines []string) bool {
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t != "" && !strings.HasPrefix(t, "#") {
			return true
		}
	}
	return false
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func cancelled(stage Stage, err error) error {
	return errors.WrapWithContext(errors.ErrCodeUnavailable,
		fmt.Sprintf("run cancelled before stage %s completed", stage), err,
		map[string]any{"stage": string(stage)})
}
