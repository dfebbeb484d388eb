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
	"fmt"
	"strings"
)

// StageError describes a stage that exited non-zero.
type StageError struct {
	Stage Stage `json:"stage" yaml:"stage"`

	// Command is the last traced shell command, the one that failed.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	ExitCode int    `json:"exitCode" yaml:"exitCode"`
	Stderr   string `json:"stderr,omitempty" yaml:"stderr,omitempty"`
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("stage %s exited with status %d", e.Stage, e.ExitCode)
	}
	return fmt.Sprintf("stage %s exited with status %d running %q", e.Stage, e.ExitCode, e.Command)
}

// lastTraceLine returns the last "+ cmd" line of sh -x output.
func lastTraceLine(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimLeft(line, "+")
		if trimmed != line && strings.HasPrefix(trimmed, " ") {
			return strings.TrimSpace(trimmed)
		}
	}
	return ""
}
