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

package recipe

import (
	"strings"

	"github.com/NVIDIA/specrun/pkg/version"
)

// Script is the body of one build stage section.
type Script struct {
	Section Section  `json:"section" yaml:"section"`
	Lines   []string `json:"lines" yaml:"lines"`
}

// Scriptlet is an install-time script. Scriptlets are recorded, never run.
type Scriptlet struct {
	Section Section  `json:"section" yaml:"section"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	Lines   []string `json:"lines" yaml:"lines"`
}

// FileSpec is one resolved %files line; paths are unexpanded globs.
type FileSpec struct {
	Line       int      `json:"line" yaml:"line"`
	Directives []string `json:"directives,omitempty" yaml:"directives,omitempty"`
	Paths      []string `json:"paths" yaml:"paths"`
}

// Package is one output package of a resolved recipe.
type Package struct {
	Name        string      `json:"name" yaml:"name"`
	Ref         PackageRef  `json:"-" yaml:"-"`
	Tags        []Tag       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Requires    []string    `json:"requires,omitempty" yaml:"requires,omitempty"`
	Provides    []string    `json:"provides,omitempty" yaml:"provides,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	HasFiles    bool        `json:"hasFiles" yaml:"hasFiles"`
	Files       []FileSpec  `json:"files,omitempty" yaml:"files,omitempty"`
	FileLists   []string    `json:"fileLists,omitempty" yaml:"fileLists,omitempty"`
	Scriptlets  []Scriptlet `json:"scriptlets,omitempty" yaml:"scriptlets,omitempty"`
}

// Tag returns the last value of key, or "".
func (p *Package) Tag(key string) string {
	return lookupTag(p.Tags, key)
}

// Globs returns every file path of the package in declaration order.
func (p *Package) Globs() []string {
	var out []string
	for _, f := range p.Files {
		out = append(out, f.Paths...)
	}
	return out
}

// Macro is a user macro definition in effect after resolution.
type Macro struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Bcond is a build feature and its resolved state.
type Bcond struct {
	Name    string `json:"name" yaml:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// AppliedBranch records the branch chosen for one conditional.
type AppliedBranch struct {
	Line   int    `json:"line" yaml:"line"`
	Family Family `json:"family" yaml:"family"`

	// Branch is the guard text of the chosen branch, "%else", or "" when
	// nothing was selected.
	Branch string `json:"branch" yaml:"branch"`
}

// Recipe is the effective recipe for one context. It is read-only after
// Resolve returns.
type Recipe struct {
	Source          string          `json:"source" yaml:"source"`
	Context         *Context        `json:"context" yaml:"context"`
	Metadata        []Tag           `json:"metadata" yaml:"metadata"`
	BuildRequires   []string        `json:"buildRequires,omitempty" yaml:"buildRequires,omitempty"`
	Macros          []Macro         `json:"macros,omitempty" yaml:"macros,omitempty"`
	Bconds          []Bcond         `json:"bconds,omitempty" yaml:"bconds,omitempty"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Scripts         []Script        `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Packages        []Package       `json:"packages" yaml:"packages"`
	Changelog       []string        `json:"changelog,omitempty" yaml:"changelog,omitempty"`
	AppliedBranches []AppliedBranch `json:"appliedBranches,omitempty" yaml:"appliedBranches,omitempty"`
}

// Tag returns the last value of a main package tag, or "".
func (r *Recipe) Tag(key string) string {
	return lookupTag(r.Metadata, key)
}

// Name returns the main package name.
func (r *Recipe) Name() string { return r.Tag(TagName) }

// Version returns the main package version.
func (r *Recipe) Version() string { return r.Tag(TagVersion) }

// Release returns the main package release.
func (r *Recipe) Release() string { return r.Tag(TagRelease) }

// EVR returns the epoch:version-release of the main package.
func (r *Recipe) EVR() (version.EVR, error) {
	return version.NewEVR(r.Tag(TagEpoch), r.Version(), r.Release())
}

// Script returns the lines of a stage section, or nil.
func (r *Recipe) Script(s Section) []string {
	for _, sc := range r.Scripts {
		if sc.Section == s {
			return sc.Lines
		}
	}
	return nil
}

// Package returns the package with the given full name.
func (r *Recipe) Package(name string) (*Package, bool) {
	for i := range r.Packages {
		if r.Packages[i].Name == name {
			return &r.Packages[i], true
		}
	}
	return nil, false
}

// Sources returns Source and Patch tags keyed "SOURCE<n>" / "PATCH<n>",
// the macro names RPM gives them.
func (r *Recipe) Sources() map[string]string {
	out := map[string]string{}
	for _, t := range r.Metadata {
		kind, n, ok := SourceIndex(t.Key)
		if !ok {
			continue
		}
		out[strings.ToUpper(kind)+n] = t.Value
	}
	return out
}

// BcondEnabled reports the resolved state of a build feature.
func (r *Recipe) BcondEnabled(name string) bool {
	for _, b := range r.Bconds {
		if b.Name == name {
			return b.Enabled
		}
	}
	return false
}

func lookupTag(tags []Tag, key string) string {
	key = CanonicalTag(key)
	v := ""
	for _, t := range tags {
		if t.Key == key {
			v = t.Value
		}
	}
	return v
}
