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

// Outline is a serializable summary of a parsed document.
type Outline struct {
	Source       string           `json:"source" yaml:"source"`
	Tags         []OutlineTag     `json:"tags" yaml:"tags"`
	Sections     []OutlineSection `json:"sections" yaml:"sections"`
	Conditionals []OutlineCond    `json:"conditionals,omitempty" yaml:"conditionals,omitempty"`
	Bconds       []Bcond          `json:"bconds,omitempty" yaml:"bconds,omitempty"`
}

// OutlineTag is a tag with its position and owner.
type OutlineTag struct {
	Line    int    `json:"line" yaml:"line"`
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
}

// OutlineSection is a section header.
type OutlineSection struct {
	Line    int     `json:"line" yaml:"line"`
	Section Section `json:"section" yaml:"section"`
	Package string  `json:"package,omitempty" yaml:"package,omitempty"`
}

// OutlineCond summarizes a conditional.
type OutlineCond struct {
	Line     int      `json:"line" yaml:"line"`
	Family   Family   `json:"family" yaml:"family"`
	Depth    int      `json:"depth" yaml:"depth"`
	Branches []string `json:"branches" yaml:"branches"`
	Default  string   `json:"default,omitempty" yaml:"default,omitempty"`
}

// Outline summarizes the document.
func (d *Document) Outline() *Outline {
	o := &Outline{Source: d.Source}
	d.Walk(func(e Entry, depth int) bool {
		switch e := e.(type) {
		case *TagEntry:
			o.Tags = append(o.Tags, OutlineTag{Line: e.Line, Package: e.Package.Args(), Key: CanonicalTag(e.Key), Value: e.Value})
		case *SectionEntry:
			o.Sections = append(o.Sections, OutlineSection{Line: e.Line, Section: e.Section, Package: e.Package.Args()})
		case *BcondEntry:
			o.Bconds = append(o.Bconds, Bcond{Name: e.Name, Enabled: e.Default})
		case *Conditional:
			oc := OutlineCond{Line: e.Line, Family: e.Family, Depth: depth}
			for _, b := range e.Branches {
				oc.Branches = append(oc.Branches, b.Guard.Describe())
			}
			if e.Else != nil {
				oc.Default = "%else"
				if e.Else.Guard != nil {
					oc.Default = e.Else.Guard.Describe()
				}
			}
			o.Conditionals = append(o.Conditionals, oc)
		}
		return true
	})
	return o
}
