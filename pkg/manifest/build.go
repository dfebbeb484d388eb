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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/macro"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

// StageName is the lifecycle stage manifest errors are attributed to.
const StageName = "package"

const (
	defaultDocDir     = "/usr/share/doc"
	defaultLicenseDir = "/usr/share/licenses"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Recipe is the resolved recipe whose packages are manifested.
	Recipe *recipe.Recipe

	// Expander expands %files globs. It should carry the macros the stages
	// ran with; a bare expander is used when nil.
	Expander *macro.Expander

	// BuildRoot is the staged install tree.
	BuildRoot string

	// BuildDir holds relative %doc and %license files and -f file lists,
	// normally %{_builddir}/%{buildsubdir}.
	BuildDir string

	// Arch is used for packages without BuildArch.
	Arch string

	RunID   string
	Version string
}

type builder struct {
	opts   BuildOptions
	exp    *macro.Expander
	root   *tree
	docs   *tree
	owners map[string][]string
	seen   map[string]bool
	warn   []string
}

// Build matches every package's file list against the build root and
// hashes the claimed files.
func Build(ctx context.Context, opts BuildOptions) (*Manifest, error) {
	if opts.Recipe == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "recipe is required")
	}
	if opts.BuildRoot == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "build root is required")
	}

	exp := opts.Expander
	if exp == nil {
		exp = macro.New()
	}
	root, err := scanTree(opts.BuildRoot)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to scan build root", err)
	}

	b := &builder{
		opts:   opts,
		exp:    exp,
		root:   root,
		owners: map[string][]string{},
		seen:   map[string]bool{},
	}

	rec := opts.Recipe
	m := &Manifest{
		Kind:       defaults.ManifestKind,
		APIVersion: defaults.ManifestAPIVersion,
		Metadata: Metadata{
			GeneratedAt: time.Now().UTC(),
			RunID:       opts.RunID,
			Version:     opts.Version,
		},
		Source: rec.Source,
	}
	if rec.Context != nil {
		m.Context = rec.Context.String()
	}

	for i := range rec.Packages {
		p := &rec.Packages[i]
		if !p.HasFiles {
			slog.Debug("package has no %files section, skipping", "package", p.Name)
			continue
		}
		mp, err := b.buildPackage(p)
		if err != nil {
			return nil, err
		}
		m.Packages = append(m.Packages, mp)
	}

	owners := make([]string, 0, len(b.owners))
	for p := range b.owners {
		owners = append(owners, p)
	}
	sort.Strings(owners)
	for _, p := range owners {
		if pkgs := b.owners[p]; len(pkgs) > 1 {
			b.warnf("file %s is claimed by %s", p, strings.Join(pkgs, ", "))
		}
	}

	for _, key := range root.paths {
		if b.seen[key] || root.info[key].IsDir() {
			continue
		}
		m.Unpackaged = append(m.Unpackaged, key)
	}
	if len(m.Unpackaged) > 0 {
		b.warnf("%d installed files are not packaged", len(m.Unpackaged))
	}
	m.Warnings = b.warn

	if err := hashFiles(ctx, m); err != nil {
		return nil, err
	}
	for _, p := range m.Packages {
		for _, f := range p.Files {
			manifestFiles.WithLabelValues(string(f.Type)).Inc()
		}
	}

	slog.Info("manifest built",
		"packages", len(m.Packages),
		"files", m.FileCount(),
		"unpackaged", len(m.Unpackaged))
	return m, nil
}

func (b *builder) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn(msg)
	b.warn = append(b.warn, msg)
}

func (b *builder) tag(p *recipe.Package, key string) string {
	if v := p.Tag(key); v != "" {
		return v
	}
	return b.opts.Recipe.Tag(key)
}

func (b *builder) buildPackage(p *recipe.Package) (Package, error) {
	rec := b.opts.Recipe
	evr, err := rec.EVR()
	if err != nil {
		return Package{}, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid version", err)
	}
	arch := b.tag(p, recipe.TagBuildArch)
	if arch == "" {
		arch = b.opts.Arch
	}

	mp := Package{
		Name:     p.Name,
		EVR:      evr.String(),
		Arch:     arch,
		Summary:  p.Tag(recipe.TagSummary),
		License:  b.tag(p, recipe.TagLicense),
		Requires: p.Requires,
		Provides: p.Provides,
		Files:    []File{},
	}

	specs := p.Files
	for _, list := range p.FileLists {
		more, err := b.readFileList(list)
		if err != nil {
			return Package{}, err
		}
		specs = append(specs, more...)
	}

	claimed := map[string]int{}
	excluded := map[string]bool{}
	for _, spec := range specs {
		for _, raw := range spec.Paths {
			pattern, err := b.exp.Expand(raw)
			if err != nil {
				return Package{}, b.fail(p.Name, raw, fmt.Sprintf("failed to expand %q", raw), err)
			}
			mp.Globs = append(mp.Globs, pattern)
			if err := b.claim(&mp, spec.Directives, pattern, claimed, excluded); err != nil {
				return Package{}, err
			}
		}
	}

	if len(excluded) > 0 {
		kept := mp.Files[:0]
		for _, f := range mp.Files {
			if !excluded[f.Path] {
				kept = append(kept, f)
			}
		}
		mp.Files = kept
	}
	for _, f := range mp.Files {
		b.owners[f.Path] = append(b.owners[f.Path], p.Name)
	}
	sort.Slice(mp.Files, func(i, j int) bool {
		return treeKey(mp.Files[i].Path) < treeKey(mp.Files[j].Path)
	})
	return mp, nil
}

func (b *builder) claim(mp *Package, directives []string, pattern string, claimed map[string]int, excluded map[string]bool) error {
	ghost := recipe.HasDirective(directives, "ghost")
	exclude := recipe.HasDirective(directives, "exclude")
	dirOnly := recipe.HasDirective(directives, "dir")

	src, dest := b.root, ""
	if !strings.HasPrefix(pattern, "/") {
		switch {
		case recipe.HasDirective(directives, "license"):
			dest = path.Join(b.macroOr("_licensedir", defaultLicenseDir), mp.Name)
		case recipe.HasDirective(directives, "doc"):
			dest = path.Join(b.macroOr("_docdir", defaultDocDir), mp.Name)
		default:
			return b.fail(mp.Name, pattern, fmt.Sprintf("file path %q must be absolute", pattern), nil)
		}
		docs, err := b.docTree()
		if err != nil {
			return err
		}
		src = docs
		pattern = "/" + pattern
	}

	keys, err := src.match(pattern, dirOnly)
	if err != nil {
		return b.fail(mp.Name, pattern, "invalid file glob", err)
	}

	if len(keys) == 0 {
		switch {
		case exclude:
			b.warnf("package %s: %%exclude %s matched nothing", mp.Name, pattern)
			return nil
		case ghost && isLiteral(pattern):
			b.record(mp, File{Path: dest + path.Clean(pattern), Type: FileTypeGhost, Directives: directives}, claimed)
			return nil
		default:
			return b.fail(mp.Name, pattern, fmt.Sprintf("package %s: file not found: %s", mp.Name, pattern), nil)
		}
	}

	for _, key := range keys {
		if src == b.root {
			b.seen[key] = true
		}
		if exclude {
			excluded[dest+key] = true
			continue
		}
		f := fileFor(src, key, dest, directives)
		if ghost {
			f = File{Path: f.Path, Type: FileTypeGhost, Directives: directives}
		} else if src != b.root {
			if err := b.installDoc(&f, src.info[key]); err != nil {
				return b.fail(mp.Name, pattern, "failed to install documentation file", err)
			}
		}
		b.record(mp, f, claimed)
	}
	return nil
}

// installDoc copies a %doc or %license file from the build directory to
// its packaged location under the build root.
func (b *builder) installDoc(f *File, info os.FileInfo) error {
	dst := b.root.abs(f.Path)
	switch f.Type {
	case FileTypeDir:
		return os.MkdirAll(dst, 0o755)
	case FileTypeRegular:
		if err := copyFile(f.source, dst, info.Mode().Perm()); err != nil {
			return err
		}
		f.source = dst
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (b *builder) record(mp *Package, f File, claimed map[string]int) {
	if i, ok := claimed[f.Path]; ok {
		if len(f.Directives) > 0 {
			mp.Files[i].Directives = f.Directives
		}
		return
	}
	claimed[f.Path] = len(mp.Files)
	mp.Files = append(mp.Files, f)
}

func fileFor(t *tree, key, dest string, directives []string) File {
	info := t.info[key]
	f := File{
		Path:       dest + key,
		Mode:       fmt.Sprintf("%04o", info.Mode().Perm()),
		Directives: directives,
	}
	switch {
	case info.IsDir():
		f.Type = FileTypeDir
	case info.Mode()&os.ModeSymlink != 0:
		f.Type = FileTypeSymlink
		if target, err := os.Readlink(t.abs(key)); err == nil {
			f.Target = target
		}
	default:
		f.Type = FileTypeRegular
		f.Size = info.Size()
		f.source = t.abs(key)
	}
	if mode, ok := attrMode(directives); ok {
		f.Mode = mode
	}
	return f
}

// attrMode returns the mode of an %attr(mode,user,group) directive.
func attrMode(directives []string) (string, bool) {
	for _, d := range directives {
		args, ok := strings.CutPrefix(d, "attr(")
		if !ok {
			continue
		}
		mode := strings.TrimSpace(strings.Split(strings.TrimSuffix(args, ")"), ",")[0])
		if mode == "" || mode == "-" {
			return "", false
		}
		if len(mode) < 4 {
			mode = strings.Repeat("0", 4-len(mode)) + mode
		}
		return mode, true
	}
	return "", false
}

func (b *builder) macroOr(name, fallback string) string {
	if !b.exp.IsDefined(name) {
		return fallback
	}
	v, err := b.exp.Expand("%{" + name + "}")
	if err != nil || v == "" {
		return fallback
	}
	return v
}

func (b *builder) docTree() (*tree, error) {
	if b.docs != nil {
		return b.docs, nil
	}
	docs, err := scanTree(b.opts.BuildDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to scan build directory", err)
	}
	b.docs = docs
	return docs, nil
}

// readFileList loads a %files -f list from the build directory.
func (b *builder) readFileList(name string) ([]recipe.FileSpec, error) {
	expanded, err := b.exp.Expand(name)
	if err != nil {
		return nil, b.fail("", name, fmt.Sprintf("failed to expand file list %q", name), err)
	}
	p := expanded
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.opts.BuildDir, p)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, b.fail("", expanded, "failed to open file list", err)
	}
	defer f.Close()

	var specs []recipe.FileSpec
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directives, paths := recipe.ParseFileLine(line)
		specs = append(specs, recipe.FileSpec{Line: n, Directives: directives, Paths: paths})
	}
	if err := scanner.Err(); err != nil {
		return nil, b.fail("", expanded, "failed to read file list", err)
	}
	return specs, nil
}

func (b *builder) fail(pkg, pattern, msg string, cause error) error {
	ctx := map[string]any{"stage": StageName, "pattern": pattern}
	if pkg != "" {
		ctx["package"] = pkg
	}
	if cause == nil {
		return errors.NewWithContext(errors.ErrCodeStageExecution, msg, ctx)
	}
	return errors.WrapWithContext(errors.ErrCodeStageExecution, msg, cause, ctx)
}
