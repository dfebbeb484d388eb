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
	"slices"

	"github.com/NVIDIA/specrun/pkg/errors"
)

// DefaultMatrixArches are the architectures a matrix covers when none are
// requested.
var DefaultMatrixArches = []string{"x86_64", "aarch64"}

// MatrixOptions configures BuildMatrix.
type MatrixOptions struct {
	// Distros adds distro profiles to those the recipe's guards name.
	Distros []string

	// Arches replaces DefaultMatrixArches.
	Arches []string

	// ImplicitDefault resolves every cell with WithImplicitDefault.
	ImplicitDefault bool
}

// MatrixCell is one build context of a matrix and its resolution outcome.
type MatrixCell struct {
	Distro        string           `json:"distro" yaml:"distro"`
	DistroVersion string           `json:"distroVersion,omitempty" yaml:"distroVersion,omitempty"`
	Arch          string           `json:"arch" yaml:"arch"`
	Packages      []string         `json:"packages,omitempty" yaml:"packages,omitempty"`
	Code          errors.ErrorCode `json:"code,omitempty" yaml:"code,omitempty"`
	Error         string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Buildable reports whether the recipe resolved for the cell.
func (c MatrixCell) Buildable() bool {
	return c.Error == ""
}

// Matrix is the set of build contexts a recipe distinguishes.
type Matrix struct {
	Source string       `json:"source" yaml:"source"`
	Name   string       `json:"name,omitempty" yaml:"name,omitempty"`
	Cells  []MatrixCell `json:"cells" yaml:"cells"`
}

// Buildable returns the cells whose recipe resolved.
func (m *Matrix) Buildable() []MatrixCell {
	var out []MatrixCell
	for _, c := range m.Cells {
		if c.Buildable() {
			out = append(out, c)
		}
	}
	return out
}

// BuildMatrix enumerates distro profile, distro version and arch
// combinations and resolves doc under each. Distros come from the guards of
// doc plus opts.Distros, with the empty profile standing for any other
// distro. Versions are the values the distro's constraints compare against,
// plus the unset version.
func BuildMatrix(doc *Document, opts MatrixOptions) *Matrix {
	extra := map[Family][]string{}
	for _, d := range opts.Distros {
		extra[FamilyDistro] = append(extra[FamilyDistro], d)
	}
	domains := collectDomains(doc, extra)
	distros := domains[FamilyDistro]
	if !slices.Contains(distros, "") {
		distros = append([]string{""}, distros...)
	}
	versions := constraintValues(doc)

	arches := opts.Arches
	if len(arches) == 0 {
		arches = DefaultMatrixArches
	}

	var ropts []ResolveOption
	if opts.ImplicitDefault {
		ropts = append(ropts, WithImplicitDefault())
	}

	m := &Matrix{Source: doc.Source}
	for _, d := range distros {
		for _, v := range append([]string{""}, versions[d]...) {
			for _, a := range arches {
				cell := MatrixCell{Distro: d, DistroVersion: v, Arch: a}
				rec, err := Resolve(doc, NewContext(WithDistro(DistroProfile(d), v), WithArch(a)), ropts...)
				if err != nil {
					cell.Code = errors.CodeOf(err)
					cell.Error = err.Error()
				} else {
					if m.Name == "" {
						m.Name = rec.Name()
					}
					for _, p := range rec.Packages {
						cell.Packages = append(cell.Packages, p.Name)
					}
				}
				m.Cells = append(m.Cells, cell)
			}
		}
	}
	return m
}

// constraintValues maps each distro profile to the sorted versions its
// guards compare against.
func constraintValues(doc *Document) map[string][]string {
	out := map[string][]string{}
	for _, c := range doc.Conditionals() {
		for _, g := range conditionalGuards(c) {
			if g.Family != FamilyDistro || g.Constraint == nil {
				continue
			}
			for _, p := range g.Profiles {
				if !slices.Contains(out[p], g.Constraint.Value) {
					out[p] = append(out[p], g.Constraint.Value)
				}
			}
		}
	}
	for p := range out {
		slices.Sort(out[p])
	}
	return out
}
