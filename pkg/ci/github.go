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

// Package ci renders CI workflows that build a recipe across its matrix.
package ci

import (
	"fmt"
	"strings"

	"github.com/NVIDIA/specrun/pkg/recipe"
)

// Provider names a CI system.
type Provider string

// Supported providers.
const (
	ProviderGitHub Provider = "github"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderGitHub:
		return ProviderGitHub, nil
	}
	return "", fmt.Errorf("unsupported CI provider: %s", s)
}

const (
	defaultRunner = "ubuntu-latest"
	armRunner     = "ubuntu-24.04-arm"
	installPath   = "github.com/NVIDIA/specrun/cmd/specrun"
)

// Options configures a generated workflow.
type Options struct {
	// Recipe is the recipe path relative to the repository root.
	Recipe string

	// RunCheck keeps the %check stage in CI builds.
	RunCheck bool

	// Branches trigger the workflow on push. Defaults to main.
	Branches []string

	// Version is the specrun version installed in CI. Defaults to latest.
	Version string
}

// Workflow is a GitHub Actions workflow document.
type Workflow struct {
	Name string         `json:"name" yaml:"name"`
	On   Triggers       `json:"on" yaml:"on"`
	Jobs map[string]Job `json:"jobs" yaml:"jobs"`
}

// Triggers lists the events that start a workflow.
type Triggers struct {
	Push        *Push    `json:"push,omitempty" yaml:"push,omitempty"`
	PullRequest struct{} `json:"pull_request" yaml:"pull_request"`
}

// Push restricts push triggers to branches.
type Push struct {
	Branches []string `json:"branches" yaml:"branches"`
}

// Job is one workflow job.
type Job struct {
	RunsOn   string    `json:"runs-on" yaml:"runs-on"`
	Strategy *Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Steps    []Step    `json:"steps" yaml:"steps"`
}

// Strategy expands a job over matrix entries.
type Strategy struct {
	FailFast bool        `json:"fail-fast" yaml:"fail-fast"`
	Matrix   MatrixBlock `json:"matrix" yaml:"matrix"`
}

// MatrixBlock holds explicit matrix entries.
type MatrixBlock struct {
	Include []Entry `json:"include" yaml:"include"`
}

// Entry is one matrix combination.
type Entry struct {
	Distro        string `json:"distro" yaml:"distro"`
	DistroVersion string `json:"distro-version,omitempty" yaml:"distro-version,omitempty"`
	Arch          string `json:"arch" yaml:"arch"`
	Runner        string `json:"runner" yaml:"runner"`
}

// Step is one job step.
type Step struct {
	Name string            `json:"name,omitempty" yaml:"name,omitempty"`
	Uses string            `json:"uses,omitempty" yaml:"uses,omitempty"`
	With map[string]string `json:"with,omitempty" yaml:"with,omitempty"`
	Run  string            `json:"run,omitempty" yaml:"run,omitempty"`
}

// GitHub renders a workflow that builds every buildable cell of m.
func GitHub(m *recipe.Matrix, opts Options) (*Workflow, error) {
	if opts.Recipe == "" {
		return nil, fmt.Errorf("recipe path is required")
	}
	cells := m.Buildable()
	if len(cells) == 0 {
		return nil, fmt.Errorf("%s resolves under no build context", m.Source)
	}

	branches := opts.Branches
	if len(branches) == 0 {
		branches = []string{"main"}
	}
	ver := opts.Version
	if ver == "" {
		ver = "latest"
	}

	include := make([]Entry, 0, len(cells))
	for _, c := range cells {
		include = append(include, Entry{
			Distro:        distroName(c.Distro),
			DistroVersion: c.DistroVersion,
			Arch:          c.Arch,
			Runner:        runnerFor(c.Arch),
		})
	}

	name := m.Name
	if name == "" {
		name = "recipe"
	}
	return &Workflow{
		Name: name,
		On:   Triggers{Push: &Push{Branches: branches}},
		Jobs: map[string]Job{
			"build": {
				RunsOn: "${{ matrix.runner }}",
				Strategy: &Strategy{
					Matrix: MatrixBlock{Include: include},
				},
				Steps: []Step{
					{Uses: "actions/checkout@v4"},
					{Uses: "actions/setup-go@v5", With: map[string]string{"go-version": "stable"}},
					{Name: "Install specrun", Run: "go install " + installPath + "@" + ver},
					{Name: "Build", Run: buildCommand(opts)},
				},
			},
		},
	}, nil
}

func buildCommand(opts Options) string {
	args := []string{
		"specrun build",
		`--distro "${{ matrix.distro }}"`,
		`--distro-version "${{ matrix.distro-version }}"`,
		"--arch ${{ matrix.arch }}",
	}
	if !opts.RunCheck {
		args = append(args, "--nocheck")
	}
	args = append(args, opts.Recipe)
	return strings.Join(args, " ")
}

func distroName(profile string) string {
	if profile == "" {
		return "other"
	}
	return profile
}

func runnerFor(arch string) string {
	if arch == "aarch64" {
		return armRunner
	}
	return defaultRunner
}
