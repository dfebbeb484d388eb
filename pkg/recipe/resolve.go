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
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/macro"
)

type resolveOptions struct {
	implicitDefault bool
}

// ResolveOption configures Resolve.
type ResolveOption func(*resolveOptions)

// WithImplicitDefault makes a conditional without %else select nothing when
// no branch matches, instead of failing with UNRESOLVED_CONDITION.
func WithImplicitDefault() ResolveOption {
	return func(o *resolveOptions) {
		o.implicitDefault = true
	}
}

// Resolve selects one branch of every conditional in doc for ctx and folds
// the active entries into a Recipe. Neither doc nor ctx is modified.
func Resolve(doc *Document, ctx *Context, opts ...ResolveOption) (*Recipe, error) {
	start := time.Now()
	defer func() {
		resolveDuration.Observe(time.Since(start).Seconds())
	}()

	o := &resolveOptions{}
	for _, opt := range opts {
		opt(o)
	}

	rec, err := resolve(doc, ctx, o)
	switch {
	case err == nil:
		resolveTotal.WithLabelValues("success").Inc()
	case errors.IsCode(err, errors.ErrCodeUnresolvedCondition):
		resolveTotal.WithLabelValues("unresolved").Inc()
	case errors.IsCode(err, errors.ErrCodeAmbiguousCondition):
		resolveTotal.WithLabelValues("ambiguous").Inc()
	default:
		resolveTotal.WithLabelValues("error").Inc()
	}
	return rec, err
}

type tagValue struct {
	Tag
	depth int
}

type pkgState struct {
	ref        PackageRef
	line       int
	declared   bool
	tags       []tagValue
	desc       []string
	hasFiles   bool
	files      []FileSpec
	fileLists  []string
	scriptlets []Scriptlet
}

type resolver struct {
	doc     *Document
	ctx     *Context
	opts    *resolveOptions
	exp     *macro.Expander
	pkgs    map[PackageRef]*pkgState
	order   []PackageRef
	scripts map[Section][]string
	macros  []Macro
	bconds  []string
	log     []string
	applied []AppliedBranch
}

func resolve(doc *Document, ctx *Context, o *resolveOptions) (*Recipe, error) {
	if doc == nil || doc.Root == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "document is empty")
	}
	r := &resolver{
		doc:     doc,
		ctx:     ctx.Clone(),
		opts:    o,
		exp:     macro.New(),
		pkgs:    map[PackageRef]*pkgState{},
		scripts: map[Section][]string{},
	}
	r.pkg(PackageRef{}, 0).declared = true

	if err := r.walk(doc.Root, 0); err != nil {
		return nil, err
	}
	return r.finish()
}

func (r *resolver) pkg(ref PackageRef, line int) *pkgState {
	p, ok := r.pkgs[ref]
	if !ok {
		p = &pkgState{ref: ref, line: line}
		r.pkgs[ref] = p
		if !ref.IsMain() {
			r.order = append(r.order, ref)
		}
	}
	return p
}

func (r *resolver) walk(f *Fragment, depth int) error {
	if f == nil {
		return nil
	}
	for _, e := range f.Entries {
		switch e := e.(type) {
		case *TagEntry:
			r.addTag(e, depth)
		case *MacroEntry:
			if err := r.defineMacro(e); err != nil {
				return err
			}
		case *BcondEntry:
			r.addBcond(e)
		case *SectionEntry:
			r.enterSection(e)
		case *TextEntry:
			r.addText(e)
		case *FileEntry:
			p := r.pkg(e.Package, e.Line)
			p.files = append(p.files, FileSpec{Line: e.Line, Directives: e.Directives, Paths: e.Paths})
		case *DirectiveEntry:
			// opaque preamble macros have no effect on resolution
		case *Conditional:
			if err := r.choose(e, depth); err != nil {
				return err
			}
		default:
			return errors.New(errors.ErrCodeInternal, fmt.Sprintf("unknown entry %T", e))
		}
	}
	return nil
}

func (r *resolver) addTag(e *TagEntry, depth int) {
	p := r.pkg(e.Package, e.Line)
	key := CanonicalTag(e.Key)
	if !IsListTag(key) {
		for i := range p.tags {
			if p.tags[i].Key != key {
				continue
			}
			// branch tags override base tags regardless of order
			if depth >= p.tags[i].depth {
				p.tags[i].Value = e.Value
				p.tags[i].depth = depth
			}
			r.defineTagMacro(e.Package, key, p.tags[i].Value)
			return
		}
	}
	p.tags = append(p.tags, tagValue{Tag: Tag{Key: key, Value: e.Value}, depth: depth})
	r.defineTagMacro(e.Package, key, e.Value)
}

// defineTagMacro mirrors RPM, which defines %{name}, %{version}... as the
// main package tags are read.
func (r *resolver) defineTagMacro(ref PackageRef, key, value string) {
	if !ref.IsMain() {
		return
	}
	switch key {
	case TagName, TagVersion, TagRelease, TagEpoch, TagSummary, TagLicense, TagURL:
		r.exp.Define(strings.ToLower(key), value)
	}
}

func (r *resolver) defineMacro(e *MacroEntry) error {
	if e.Kind == "undefine" {
		r.exp.Undefine(e.Name)
		r.macros = slices.DeleteFunc(r.macros, func(m Macro) bool { return m.Name == e.Name })
		return nil
	}
	value := e.Value
	if e.Kind == "global" {
		v, err := r.exp.Expand(value)
		if err != nil {
			return errors.WrapWithContext(errors.ErrCodeParse,
				fmt.Sprintf("line %d: expanding %%global %s", e.Line, e.Name), err,
				map[string]any{"line": e.Line})
		}
		value = v
	}
	r.exp.Define(e.Name, value)
	for i := range r.macros {
		if r.macros[i].Name == e.Name {
			r.macros[i].Value = value
			return nil
		}
	}
	r.macros = append(r.macros, Macro{Name: e.Name, Value: value})
	return nil
}

func (r *resolver) addBcond(e *BcondEntry) {
	sel := Selection{}
	if e.Default {
		sel.Profile = ProfileOn
	}
	r.ctx.setDefault(FeatureFamily(e.Name), sel)
	if !slices.Contains(r.bconds, e.Name) {
		r.bconds = append(r.bconds, e.Name)
	}
	r.syncBcondMacro(e.Name)
}

func (r *resolver) syncBcondMacro(name string) {
	if r.ctx.Selection(FeatureFamily(name)).Profile == ProfileOn {
		r.exp.Define("with_"+name, "1")
	} else {
		r.exp.Undefine("with_" + name)
	}
}

func (r *resolver) enterSection(e *SectionEntry) {
	if !e.Section.PerPackage() {
		return
	}
	p := r.pkg(e.Package, e.Line)
	switch {
	case e.Section == SectionPackage:
		p.declared = true
	case e.Section == SectionFiles:
		p.hasFiles = true
		if e.FileList != "" {
			p.fileLists = append(p.fileLists, e.FileList)
		}
	case e.Section.IsScriptlet():
		p.scriptlets = append(p.scriptlets, Scriptlet{Section: e.Section, Options: e.Options})
	}
}

func (r *resolver) addText(e *TextEntry) {
	switch {
	case e.Section == SectionDescription:
		p := r.pkg(e.Package, e.Line)
		p.desc = append(p.desc, e.Text)
	case e.Section.IsScript():
		r.scripts[e.Section] = append(r.scripts[e.Section], e.Text)
	case e.Section.IsScriptlet():
		p := r.pkg(e.Package, e.Line)
		for i := len(p.scriptlets) - 1; i >= 0; i-- {
			if p.scriptlets[i].Section == e.Section {
				p.scriptlets[i].Lines = append(p.scriptlets[i].Lines, e.Text)
				return
			}
		}
		p.scriptlets = append(p.scriptlets, Scriptlet{Section: e.Section, Lines: []string{e.Text}})
	case e.Section == SectionChangelog:
		r.log = append(r.log, e.Text)
	}
}

func (r *resolver) choose(c *Conditional, depth int) error {
	var matched []int
	for i, b := range c.Branches {
		if b.Guard != nil && b.Guard.Matches(r.ctx) {
			matched = append(matched, i)
		}
	}

	sel := r.ctx.Selection(c.Family)
	switch {
	case len(matched) > 1:
		texts := make([]string, 0, len(matched))
		for _, i := range matched {
			texts = append(texts, c.Branches[i].Guard.Text)
		}
		return errors.NewWithContext(errors.ErrCodeAmbiguousCondition,
			fmt.Sprintf("line %d: %d branches of %s conditional match %s=%q", c.Line, len(matched), c.Family, c.Family, sel.Profile),
			map[string]any{"line": c.Line, "family": string(c.Family), "branches": texts, "profile": sel.Profile})

	case len(matched) == 1:
		b := c.Branches[matched[0]]
		r.applied = append(r.applied, AppliedBranch{Line: c.Line, Family: c.Family, Branch: b.Guard.Text})
		slog.Debug("conditional resolved", "line", c.Line, "family", c.Family, "branch", b.Guard.Text)
		return r.walk(b.Body, depth+1)

	case c.Else != nil:
		branch := "%else"
		if c.Else.Guard != nil {
			branch = c.Else.Guard.Text
		}
		r.applied = append(r.applied, AppliedBranch{Line: c.Line, Family: c.Family, Branch: branch})
		slog.Debug("conditional resolved", "line", c.Line, "family", c.Family, "branch", branch)
		return r.walk(c.Else.Body, depth+1)

	case r.opts.implicitDefault, c.Family == FamilyConst:
		// a false %if 0 block selects nothing
		r.applied = append(r.applied, AppliedBranch{Line: c.Line, Family: c.Family})
		return nil

	default:
		return errors.NewWithContext(errors.ErrCodeUnresolvedCondition,
			fmt.Sprintf("line %d: no branch of %s conditional matches %s=%q and there is no %%else", c.Line, c.Family, c.Family, sel.Profile),
			map[string]any{"line": c.Line, "family": string(c.Family), "profile": sel.Profile})
	}
}

func (r *resolver) finish() (*Recipe, error) {
	for k, v := range r.ctx.Defines {
		r.exp.Define(k, v)
	}
	for _, name := range r.bconds {
		r.syncBcondMacro(name)
	}

	mainPkg := r.pkgs[PackageRef{}]
	mainName, err := r.expand(lookupTagValue(mainPkg.tags, TagName), 0)
	if err != nil {
		return nil, err
	}
	if mainName == "" {
		return nil, errors.New(errors.ErrCodeParse, "recipe has no Name tag")
	}

	rec := &Recipe{
		Source:          r.doc.Source,
		Context:         r.ctx.Clone(),
		Macros:          slices.Clone(r.macros),
		Changelog:       trimBlank(r.log),
		AppliedBranches: r.applied,
	}
	for _, name := range r.bconds {
		rec.Bconds = append(rec.Bconds, Bcond{Name: name, Enabled: r.ctx.Selection(FeatureFamily(name)).Profile == ProfileOn})
	}
	for _, s := range []Section{SectionPrep, SectionBuild, SectionInstall, SectionCheck, SectionClean} {
		if lines, ok := r.scripts[s]; ok {
			rec.Scripts = append(rec.Scripts, Script{Section: s, Lines: trimBlank(lines)})
		}
	}

	refs := append([]PackageRef{{}}, r.order...)
	for _, ref := range refs {
		p := r.pkgs[ref]
		if !p.declared {
			return nil, errors.NewWithContext(errors.ErrCodeParse,
				fmt.Sprintf("line %d: package %q is not declared", p.line, ref.Resolve(mainName)),
				map[string]any{"line": p.line})
		}
		pkg, err := r.buildPackage(p, mainName)
		if err != nil {
			return nil, err
		}
		rec.Packages = append(rec.Packages, pkg)
	}

	rec.Metadata = rec.Packages[0].Tags
	rec.Description = rec.Packages[0].Description
	for _, t := range rec.Metadata {
		if TagBase(t.Key) == TagBuildRequires {
			rec.BuildRequires = append(rec.BuildRequires, SplitDeps(t.Value)...)
		}
	}
	return rec, nil
}

func (r *resolver) buildPackage(p *pkgState, mainName string) (Package, error) {
	name := mainName
	if !p.ref.IsMain() {
		n, err := r.expand(p.ref.Name, p.line)
		if err != nil {
			return Package{}, err
		}
		name = PackageRef{Name: n, Full: p.ref.Full}.Resolve(mainName)
	}

	pkg := Package{
		Name:       name,
		Ref:        p.ref,
		HasFiles:   p.hasFiles,
		Files:      p.files,
		FileLists:  p.fileLists,
		Scriptlets: p.scriptlets,
	}
	for _, t := range p.tags {
		v, err := r.expand(t.Value, 0)
		if err != nil {
			return Package{}, err
		}
		pkg.Tags = append(pkg.Tags, Tag{Key: t.Key, Value: v})
		switch TagBase(t.Key) {
		case TagRequires:
			pkg.Requires = append(pkg.Requires, SplitDeps(v)...)
		case TagProvides:
			pkg.Provides = append(pkg.Provides, SplitDeps(v)...)
		}
	}
	desc, err := r.expand(strings.Join(trimBlank(p.desc), "\n"), p.line)
	if err != nil {
		return Package{}, err
	}
	pkg.Description = desc
	return pkg, nil
}

func (r *resolver) expand(s string, line int) (string, error) {
	out, err := r.exp.Expand(s)
	if err != nil {
		return "", errors.WrapWithContext(errors.ErrCodeParse,
			fmt.Sprintf("line %d: expanding %q", line, s), err, map[string]any{"line": line})
	}
	return out, nil
}

func lookupTagValue(tags []tagValue, key string) string {
	for _, t := range tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// trimBlank drops leading and trailing blank lines.
func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return nil
	}
	return slices.Clone(lines[start:end])
}
