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

package manifest

import (
	"time"
)

// FileType classifies a manifest entry.
type FileType string

const (
	FileTypeRegular FileType = "file"
	FileTypeDir     FileType = "dir"
	FileTypeSymlink FileType = "symlink"
	FileTypeGhost   FileType = "ghost"
)

// File is one packaged path.
type File struct {
	Path       string   `json:"path" yaml:"path"`
	Type       FileType `json:"type" yaml:"type"`
	Size       int64    `json:"size,omitempty" yaml:"size,omitempty"`
	Mode       string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	SHA256     string   `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Target     string   `json:"target,omitempty" yaml:"target,omitempty"`
	Directives []string `json:"directives,omitempty" yaml:"directives,omitempty"`

	// source is the file on disk; empty for ghosts and after Load.
	source string
}

// Package is one output package and its files.
type Package struct {
	Name     string   `json:"name" yaml:"name"`
	EVR      string   `json:"evr" yaml:"evr"`
	Arch     string   `json:"arch" yaml:"arch"`
	Summary  string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	License  string   `json:"license,omitempty" yaml:"license,omitempty"`
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	Provides []string `json:"provides,omitempty" yaml:"provides,omitempty"`
	Globs    []string `json:"globs,omitempty" yaml:"globs,omitempty"`
	Files    []File   `json:"files" yaml:"files"`
}

// Metadata describes the run that produced a manifest.
type Metadata struct {
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`
	RunID       string    `json:"runId,omitempty" yaml:"runId,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
}

// Manifest is the output of the package stage.
type Manifest struct {
	Kind       string    `json:"kind" yaml:"kind"`
	APIVersion string    `json:"apiVersion" yaml:"apiVersion"`
	Metadata   Metadata  `json:"metadata" yaml:"metadata"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Context    string    `json:"context,omitempty" yaml:"context,omitempty"`
	Packages   []Package `json:"packages" yaml:"packages"`
	Unpackaged []string  `json:"unpackaged,omitempty" yaml:"unpackaged,omitempty"`
	Warnings   []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Package returns the package with the given name.
func (m *Manifest) Package(name string) (*Package, bool) {
	for i := range m.Packages {
		if m.Packages[i].Name == name {
			return &m.Packages[i], true
		}
	}
	return nil, false
}

// FileCount returns the number of entries across all packages.
func (m *Manifest) FileCount() int {
	n := 0
	for _, p := range m.Packages {
		n += len(p.Files)
	}
	return n
}
