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
)

// Section identifies the part of a recipe an entry belongs to.
type Section string

// Section constants in the order RPM documents them.
const (
	SectionPreamble    Section = "preamble"
	SectionPackage     Section = "package"
	SectionDescription Section = "description"
	SectionPrep        Section = "prep"
	SectionBuild       Section = "build"
	SectionInstall     Section = "install"
	SectionCheck       Section = "check"
	SectionClean       Section = "clean"
	SectionFiles       Section = "files"
	SectionChangelog   Section = "changelog"
	SectionPre         Section = "pre"
	SectionPost        Section = "post"
	SectionPreun       Section = "preun"
	SectionPostun      Section = "postun"
	SectionPretrans    Section = "pretrans"
	SectionPosttrans   Section = "posttrans"
)

// ParseSection returns the section a %header names.
func ParseSection(name string) (Section, bool) {
	s := Section(name)
	switch s {
	case SectionPackage, SectionDescription, SectionPrep, SectionBuild, SectionInstall,
		SectionCheck, SectionClean, SectionFiles, SectionChangelog, SectionPre,
		SectionPost, SectionPreun, SectionPostun, SectionPretrans, SectionPosttrans:
		return s, true
	}
	return "", false
}

// IsScript reports whether the section is a build stage script.
func (s Section) IsScript() bool {
	switch s {
	case SectionPrep, SectionBuild, SectionInstall, SectionCheck, SectionClean:
		return true
	}
	return false
}

// IsScriptlet reports whether the section is an install-time scriptlet.
func (s Section) IsScriptlet() bool {
	switch s {
	case SectionPre, SectionPost, SectionPreun, SectionPostun, SectionPretrans, SectionPosttrans:
		return true
	}
	return false
}

// PerPackage reports whether the section header takes a package name.
func (s Section) PerPackage() bool {
	return s == SectionPackage || s == SectionDescription || s == SectionFiles || s.IsScriptlet()
}

// AcceptsTags reports whether preamble tags may appear in the section.
func (s Section) AcceptsTags() bool {
	return s == SectionPreamble || s == SectionPackage
}

// PackageRef names a package. The zero value is the main package; Full
// marks a name given with -n, otherwise Name is a suffix of the main name.
type PackageRef struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Full bool   `json:"full,omitempty" yaml:"full,omitempty"`
}

// IsMain reports whether the reference is the main package.
func (p PackageRef) IsMain() bool {
	return p.Name == ""
}

// Resolve returns the package name given the main package name.
func (p PackageRef) Resolve(mainName string) string {
	switch {
	case p.Name == "":
		return mainName
	case p.Full:
		return p.Name
	default:
		return mainName + "-" + p.Name
	}
}

// Args renders the reference as header arguments.
func (p PackageRef) Args() string {
	switch {
	case p.Name == "":
		return ""
	case p.Full:
		return "-n " + p.Name
	default:
		return p.Name
	}
}

// Entry is one element of a Fragment. Implementations are the *Entry types
// of this package and *Conditional.
type Entry interface {
	// Pos returns the 1-based source line.
	Pos() int
	entry()
}

// TagEntry is a preamble tag such as "Name: foo".
type TagEntry struct {
	Line    int        `json:"line" yaml:"line"`
	Package PackageRef `json:"package" yaml:"package"`
	Key     string     `json:"key" yaml:"key"`
	Value   string     `json:"value" yaml:"value"`
}

// MacroEntry is a %global or %define line.
type MacroEntry struct {
	Line  int    `json:"line" yaml:"line"`
	Kind  string `json:"kind" yaml:"kind"`
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// BcondEntry declares a build feature and its default. %bcond_with X
// defaults to off, %bcond_without X to on.
type BcondEntry struct {
	Line    int    `json:"line" yaml:"line"`
	Name    string `json:"name" yaml:"name"`
	Default bool   `json:"default" yaml:"default"`
}

// SectionEntry is a section header such as "%files -n foo".
type SectionEntry struct {
	Line    int        `json:"line" yaml:"line"`
	Section Section    `json:"section" yaml:"section"`
	Package PackageRef `json:"package" yaml:"package"`

	// FileList is the -f argument of %files.
	FileList string `json:"fileList,omitempty" yaml:"fileList,omitempty"`

	// Options holds header arguments that do not affect evaluation, such as
	// a scriptlet interpreter given with -p.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// TextEntry is one line of a description, script, scriptlet or changelog.
type TextEntry struct {
	Line    int        `json:"line" yaml:"line"`
	Section Section    `json:"section" yaml:"section"`
	Package PackageRef `json:"package" yaml:"package"`
	Text    string     `json:"text" yaml:"text"`
}

// FileEntry is one %files line.
type FileEntry struct {
	Line       int        `json:"line" yaml:"line"`
	Package    PackageRef `json:"package" yaml:"package"`
	Directives []string   `json:"directives,omitempty" yaml:"directives,omitempty"`
	Paths      []string   `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// DirectiveEntry is an opaque preamble macro line, kept for formatting.
type DirectiveEntry struct {
	Line int    `json:"line" yaml:"line"`
	Text string `json:"text" yaml:"text"`
}

// Branch is one guarded arm of a Conditional.
type Branch struct {
	Line    int       `json:"line" yaml:"line"`
	Keyword string    `json:"keyword" yaml:"keyword"`
	Guard   *Guard    `json:"guard,omitempty" yaml:"guard,omitempty"`
	Body    *Fragment `json:"body" yaml:"body"`
}

// Conditional is one %if/%elif/%else/%endif chain. All guards share one
// family. Else is the default; when two adjacent single-branch chains with
// complementary guards are merged, Else keeps the second chain's guard.
type Conditional struct {
	Line     int      `json:"line" yaml:"line"`
	Family   Family   `json:"family" yaml:"family"`
	Branches []Branch `json:"branches" yaml:"branches"`
	Else     *Branch  `json:"else,omitempty" yaml:"else,omitempty"`
}

// Merged reports whether the conditional was built from two complementary
// chains.
func (c *Conditional) Merged() bool {
	return c.Else != nil && c.Else.Guard != nil
}

func (e *TagEntry) Pos() int       { return e.Line }
func (e *MacroEntry) Pos() int     { return e.Line }
func (e *BcondEntry) Pos() int     { return e.Line }
func (e *SectionEntry) Pos() int   { return e.Line }
func (e *TextEntry) Pos() int      { return e.Line }
func (e *FileEntry) Pos() int      { return e.Line }
func (e *DirectiveEntry) Pos() int { return e.Line }
func (c *Conditional) Pos() int    { return c.Line }

func (*TagEntry) entry()       {}
func (*MacroEntry) entry()     {}
func (*BcondEntry) entry()     {}
func (*SectionEntry) entry()   {}
func (*TextEntry) entry()      {}
func (*FileEntry) entry()      {}
func (*DirectiveEntry) entry() {}
func (*Conditional) entry()    {}

// Fragment is an ordered list of entries.
type Fragment struct {
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Append adds entries to the fragment.
func (f *Fragment) Append(e ...Entry) {
	f.Entries = append(f.Entries, e...)
}

// Document is a parsed, unresolved recipe.
type Document struct {
	Source string    `json:"source" yaml:"source"`
	Root   *Fragment `json:"root" yaml:"root"`
}

// Walk visits every entry depth first, including entries in all branches.
// Returning false from fn stops descent into a conditional.
func (d *Document) Walk(fn func(e Entry, depth int) bool) {
	if d == nil || d.Root == nil {
		return
	}
	walkFragment(d.Root, 0, fn)
}

func walkFragment(f *Fragment, depth int, fn func(Entry, int) bool) {
	if f == nil {
		return
	}
	for _, e := range f.Entries {
		if !fn(e, depth) {
			continue
		}
		c, ok := e.(*Conditional)
		if !ok {
			continue
		}
		for _, b := range c.Branches {
			walkFragment(b.Body, depth+1, fn)
		}
		if c.Else != nil {
			walkFragment(c.Else.Body, depth+1, fn)
		}
	}
}

// Tags returns every tag in the document in source order, across all
// branches.
func (d *Document) Tags() []*TagEntry {
	var tags []*TagEntry
	d.Walk(func(e Entry, _ int) bool {
		if t, ok := e.(*TagEntry); ok {
			tags = append(tags, t)
		}
		return true
	})
	return tags
}

// Conditionals returns every conditional, outer ones first.
func (d *Document) Conditionals() []*Conditional {
	var cs []*Conditional
	d.Walk(func(e Entry, _ int) bool {
		if c, ok := e.(*Conditional); ok {
			cs = append(cs, c)
		}
		return true
	})
	return cs
}

// ParseFileLine splits a %files line into directives and paths.
func ParseFileLine(line string) (directives, paths []string) {
	for _, tok := range splitFileTokens(line) {
		if strings.HasPrefix(tok, "%") && isFileDirective(tok) {
			directives = append(directives, strings.TrimPrefix(tok, "%"))
			continue
		}
		paths = append(paths, tok)
	}
	return directives, paths
}

var fileDirectives = []string{
	"doc", "license", "dir", "config", "ghost", "exclude", "attr", "defattr",
	"verify", "lang", "docdir", "readme", "caps",
}

func isFileDirective(tok string) bool {
	name := strings.TrimPrefix(tok, "%")
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	for _, d := range fileDirectives {
		if name == d {
			return true
		}
	}
	return false
}

// HasDirective reports whether a directive list contains name, with or
// without arguments.
func HasDirective(directives []string, name string) bool {
	for _, d := range directives {
		if d == name || strings.HasPrefix(d, name+"(") {
			return true
		}
	}
	return false
}

// splitFileTokens splits on whitespace outside parentheses and quotes.
func splitFileTokens(line string) []string {
	var (
		toks  []string
		cur   strings.Builder
		depth int
		quote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			quote = !quote
		case r == '(' && !quote:
			depth++
			cur.WriteRune(r)
		case r == ')' && !quote:
			depth--
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0 && !quote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
