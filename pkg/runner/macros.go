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
	"path/filepath"
	"runtime"
	"strings"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/macro"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

// Layout is the directory tree of one run. All paths are absolute.
type Layout struct {
	WorkDir   string `json:"workDir" yaml:"workDir"`
	SourceDir string `json:"sourceDir" yaml:"sourceDir"`
	BuildDir  string `json:"buildDir" yaml:"buildDir"`
	BuildRoot string `json:"buildRoot" yaml:"buildRoot"`
	OutputDir string `json:"outputDir" yaml:"outputDir"`
}

func newLayout(workDir, sourceDir string) (Layout, error) {
	if workDir == "" {
		workDir = defaults.WorkDir
	}
	if sourceDir == "" {
		sourceDir = defaults.SourceDir
	}
	work, err := filepath.Abs(workDir)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve work directory: %w", err)
	}
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve source directory: %w", err)
	}
	return Layout{
		WorkDir:   work,
		SourceDir: src,
		BuildDir:  filepath.Join(work, defaults.BuildDirName),
		BuildRoot: filepath.Join(work, defaults.BuildRootDirName),
		OutputDir: filepath.Join(work, defaults.OutputDirName),
	}, nil
}

// standardMacros are the path and tool macros every stage sees.
func standardMacros(l Layout, arch string) map[string]string {
	libdir := "lib"
	switch arch {
	case "x86_64", "aarch64", "ppc64le", "s390x", "riscv64":
		libdir = "lib64"
	}
	return map[string]string{
		"buildroot":       l.BuildRoot,
		"_builddir":       l.BuildDir,
		"_sourcedir":      l.SourceDir,
		"_prefix":         defaults.Prefix,
		"_exec_prefix":    "%{_prefix}",
		"_bindir":         "%{_exec_prefix}/bin",
		"_sbindir":        "%{_exec_prefix}/sbin",
		"_libdir":         "%{_exec_prefix}/" + libdir,
		"_libexecdir":     "%{_exec_prefix}/libexec",
		"_datadir":        "%{_prefix}/share",
		"_includedir":     "%{_prefix}/include",
		"_sysconfdir":     "/etc",
		"_localstatedir":  "/var",
		"_mandir":         "%{_datadir}/man",
		"_docdir":         "%{_datadir}/doc",
		"_licensedir":     "%{_datadir}/licenses",
		"python3":         defaults.Python3,
		"python3_sitelib": defaults.Python3Sitelib,
		"_arch":           arch,
		"_smp_mflags":     fmt.Sprintf("-j%d", runtime.NumCPU()),
	}
}

// newExpander layers, lowest first: standard macros, main package tags,
// recipe macros, Source/Patch paths, enabled features and context defines.
func newExpander(rec *recipe.Recipe, l Layout, arch string) *macro.Expander {
	exp := macro.New(macro.WithDefines(standardMacros(l, arch)))

	for _, t := range rec.Metadata {
		switch t.Key {
		case recipe.TagName, recipe.TagVersion, recipe.TagRelease, recipe.TagEpoch,
			recipe.TagSummary, recipe.TagLicense, recipe.TagURL:
			exp.Define(strings.ToLower(t.Key), t.Value)
		}
	}
	for _, m := range rec.Macros {
		exp.Define(m.Name, m.Value)
	}
	for key, src := range rec.Sources() {
		exp.Define(key, filepath.Join(l.SourceDir, macro.SourceBase(src)))
	}
	for _, b := range rec.Bconds {
		if b.Enabled {
			exp.Define("with_"+b.Name, "1")
		}
	}
	if rec.Context != nil {
		for k, v := range rec.Context.Defines {
			exp.Define(k, v)
		}
	}
	return exp
}

// preamble is prepended to every stage script. It must be computed before
// the stage body is expanded: %setup defines buildsubdir for later stages.
func preamble(exp *macro.Expander, rec *recipe.Recipe, l Layout, arch string) string {
	lines := []string{
		"umask 022",
		"cd " + quote(l.BuildDir),
	}
	if exp.IsDefined("buildsubdir") {
		lines = append(lines, "cd "+quote(exp.ExpandOrRaw("%{buildsubdir}")))
	}
	exports := []struct{ name, value string }{
		{"RPM_SOURCE_DIR", l.SourceDir},
		{"RPM_BUILD_DIR", l.BuildDir},
		{"RPM_BUILD_ROOT", l.BuildRoot},
		{"RPM_PACKAGE_NAME", rec.Name()},
		{"RPM_PACKAGE_VERSION", rec.Version()},
		{"RPM_PACKAGE_RELEASE", rec.Release()},
		{"RPM_ARCH", arch},
		{"LANG", "C"},
	}
	for _, e := range exports {
		lines = append(lines, fmt.Sprintf("%s=%s", e.name, quote(e.value)), "export "+e.name)
	}
	return strings.Join(lines, "\n")
}

// buildSubdir returns the directory %setup unpacked into, or the build dir.
func buildSubdir(exp *macro.Expander, l Layout) string {
	if !exp.IsDefined("buildsubdir") {
		return l.BuildDir
	}
	return filepath.Join(l.BuildDir, exp.ExpandOrRaw("%{buildsubdir}"))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
