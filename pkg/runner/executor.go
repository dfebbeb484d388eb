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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/NVIDIA/specrun/pkg/defaults"
)

// Command is one stage script invocation.
type Command struct {
	Stage  Stage
	Script string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// ExecResult is the outcome of a command that ran to completion.
type ExecResult struct {
	ExitCode int

	// Stderr holds the tail of the command's standard error.
	Stderr string
}

// Executor runs stage scripts. Run returns an error only when the command
// could not be run or was cancelled; a non-zero exit is reported through
// ExecResult.ExitCode.
type Executor interface {
	Run(ctx context.Context, cmd Command) (ExecResult, error)
}

// ShellExecutor runs scripts with "sh -e -x -c".
type ShellExecutor struct {
	// Shell defaults to defaults.Shell.
	Shell string

	// KillGrace is the delay between SIGTERM and SIGKILL on cancellation.
	KillGrace time.Duration
}

// Run implements Executor.
func (e *ShellExecutor) Run(ctx context.Context, c Command) (ExecResult, error) {
	shell := e.Shell
	if shell == "" {
		shell = defaults.Shell
	}
	grace := e.KillGrace
	if grace <= 0 {
		grace = defaults.StageKillGrace
	}

	cmd := exec.CommandContext(ctx, shell, "-e", "-x", "-c", c.Script)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	tail := newTailBuffer(defaults.StageStderrTailBytes)
	cmd.Stdout = orDiscard(c.Stdout)
	cmd.Stderr = io.MultiWriter(orDiscard(c.Stderr), tail)

	err := cmd.Run()
	res := ExecResult{Stderr: tail.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.ExitCode = 128 + int(status.Signal())
		}
		return res, nil
	}
	return res, fmt.Errorf("failed to run %s: %w", shell, err)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
