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

package specfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

const fooSpec = `%global srcname foo
%bcond_without tests

Name:           foo
Version:        1.0
Release:        0
Summary:        Foo command line tool
License:        MIT
URL:            https://example.com/foo
Source:         https://example.com/foo-%{version}.tar.gz
BuildRequires:  python3-devel, python3-setuptools

%description
Foo does things.

%if 0%{?suse_version}
%package -n python3-foo
Summary:        Foo for SUSE
%description -n python3-foo
SUSE flavour of foo.
%endif

%prep
%autosetup -n %{srcname}-%{version}

%build
%py3_build

%install
%py3_install \
  --optimize=1

%check
%if %{with tests}
%pytest
%endif

%if 0%{?suse_version}
%files -n python3-foo
%license LICENSE
%{python3_sitelib}/foo
%endif
%if !0%{?suse_version}
%files
%doc README.md
%{_bindir}/foo
%endif

%changelog
* Mon Jan 01 2024 Dev <dev@example.com> - 1.0-0
- Initial package
`

func mustParse(t *testing.T, s string) *recipe.Document {
	t.Helper()
	doc, err := ParseString(s)
	require.NoError(t, err)
	return doc
}

func TestParse(t *testing.T) {
	doc := mustParse(t, fooSpec)

	tags := doc.Tags()
	require.NotEmpty(t, tags)
	assert.Equal(t, "Name", tags[0].Key)
	assert.Equal(t, "foo", tags[0].Value)

	var (
		macros  []*recipe.MacroEntry
		bconds  []*recipe.BcondEntry
		headers []recipe.Section
		files   []*recipe.FileEntry
	)
	doc.Walk(func(e recipe.Entry, _ int) bool {
		switch v := e.(type) {
		case *recipe.MacroEntry:
			macros = append(macros, v)
		case *recipe.BcondEntry:
			bconds = append(bconds, v)
		case *recipe.SectionEntry:
			headers = append(headers, v.Section)
		case *recipe.FileEntry:
			files = append(files, v)
		}
		return true
	})

	require.Len(t, macros, 1)
	assert.Equal(t, "global", macros[0].Kind)
	assert.Equal(t, "srcname", macros[0].Name)
	assert.Equal(t, "foo", macros[0].Value)

	require.Len(t, bconds, 1)
	assert.Equal(t, "tests", bconds[0].Name)
	assert.True(t, bconds[0].Default)

	assert.Equal(t, []recipe.Section{
		recipe.SectionDescription,
		recipe.SectionPackage, recipe.SectionDescription,
		recipe.SectionPrep, recipe.SectionBuild, recipe.SectionInstall, recipe.SectionCheck,
		recipe.SectionFiles, recipe.SectionFiles,
		recipe.SectionChangelog,
	}, headers)

	require.Len(t, files, 4)
	assert.Equal(t, []string{"license"}, files[0].Directives)
	assert.Equal(t, []string{"LICENSE"}, files[0].Paths)
	assert.Equal(t, recipe.PackageRef{Name: "python3-foo", Full: true}, files[0].Package)
	assert.Equal(t, []string{"%{_bindir}/foo"}, files[3].Paths)
	assert.True(t, files[3].Package.IsMain())
}

func TestParseMacroDefinitions(t *testing.T) {
	doc := mustParse(t, `%define  flavor   fancy build
%undefine _hardened_build
%definemore x
Name: foo
`)
	var macros []*recipe.MacroEntry
	var directives []string
	doc.Walk(func(e recipe.Entry, _ int) bool {
		switch v := e.(type) {
		case *recipe.MacroEntry:
			macros = append(macros, v)
		case *recipe.DirectiveEntry:
			directives = append(directives, v.Text)
		}
		return true
	})

	require.Len(t, macros, 2)
	assert.Equal(t, recipe.MacroEntry{Line: 1, Kind: "define", Name: "flavor", Value: "fancy build"}, *macros[0])
	assert.Equal(t, recipe.MacroEntry{Line: 2, Kind: "undefine", Name: "_hardened_build"}, *macros[1])
	assert.Equal(t, []string{"%definemore x"}, directives)
}

func TestParseContinuationLines(t *testing.T) {
	doc := mustParse(t, fooSpec)

	var install []string
	doc.Walk(func(e recipe.Entry, _ int) bool {
		if v, ok := e.(*recipe.TextEntry); ok && v.Section == recipe.SectionInstall {
			install = append(install, v.Text)
		}
		return true
	})
	require.NotEmpty(t, install)
	assert.Equal(t, "%py3_install \\\n  --optimize=1", install[0])
}

func TestParseMergesComplementaryConditionals(t *testing.T) {
	doc := mustParse(t, fooSpec)

	var top []*recipe.Conditional
	for _, e := range doc.Root.Entries {
		if c, ok := e.(*recipe.Conditional); ok {
			top = append(top, c)
		}
	}
	// the %package block, the %check block and the merged %files pair
	require.Len(t, top, 3)

	assert.False(t, top[0].Merged())
	assert.Nil(t, top[0].Else)
	assert.Equal(t, recipe.FeatureFamily("tests"), top[1].Family)

	files := top[2]
	assert.True(t, files.Merged())
	assert.Equal(t, recipe.FamilyDistro, files.Family)
	require.Len(t, files.Branches, 1)
	assert.Equal(t, "0%{?suse_version}", files.Branches[0].Guard.Text)
	require.NotNil(t, files.Else)
	assert.Equal(t, "!0%{?suse_version}", files.Else.Guard.Text)
}

func TestParseKeepsNonComplementaryConditionals(t *testing.T) {
	doc := mustParse(t, `Name: foo
%if 0%{?suse_version}
Summary: a
%endif
%if 0%{?fedora}
Summary: b
%endif
`)
	assert.Len(t, doc.Conditionals(), 2)
}

func TestParseMergesComplementsAcrossBlankLines(t *testing.T) {
	doc := mustParse(t, `Name: foo
Version: 1.0

%description
Foo.

%build
%if 0%{?suse_version}
make suse
%endif

# everyone else
%if !0%{?suse_version}
make other
%endif
`)
	conds := doc.Conditionals()
	require.Len(t, conds, 1)
	assert.True(t, conds[0].Merged())

	tests := []struct {
		name string
		ctx  *recipe.Context
		want string
	}{
		{"unset", recipe.NewContext(), "make other"},
		{"fedora", recipe.NewContext(recipe.WithDistro(recipe.DistroFedora, "40")), "make other"},
		{"suse", recipe.NewContext(recipe.WithDistro(recipe.DistroSUSE, "1500")), "make suse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := recipe.Resolve(doc, tt.ctx)
			require.NoError(t, err)
			script := rec.Script(recipe.SectionBuild)
			require.NotEmpty(t, script)
			assert.Equal(t, tt.want, script[0])
			assert.Contains(t, script, "# everyone else")
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{
			name:    "unterminated if",
			input:   "Name: foo\n%if 0%{?suse_version}\nSummary: a\n",
			wantMsg: "unterminated %if",
		},
		{
			name:    "endif without if",
			input:   "Name: foo\n%endif\n",
			wantMsg: "%endif without %if",
		},
		{
			name:    "else without if",
			input:   "Name: foo\n%else\n",
			wantMsg: "%else without %if",
		},
		{
			name:    "duplicate else",
			input:   "%if 0%{?suse_version}\n%else\n%else\n%endif\n",
			wantMsg: "duplicate %else",
		},
		{
			name:    "elif after else",
			input:   "%if 0%{?suse_version}\n%else\n%elif 0%{?fedora}\n%endif\n",
			wantMsg: "%elif after %else",
		},
		{
			name:    "elif on another family",
			input:   "%if 0%{?suse_version}\n%elif %{with tests}\n%endif\n",
			wantMsg: "selects on",
		},
		{
			name:    "invalid guard",
			input:   "%if 0%{?suse_version} && 0%{?fedora} || 0%{?rhel}\n%endif\n",
			wantMsg: "invalid guard",
		},
		{
			name:    "duplicate tag",
			input:   "Name: foo\nVersion: 1\nname: bar\n",
			wantMsg: "duplicate tag Name",
		},
		{
			name:    "empty tag",
			input:   "Name:\n",
			wantMsg: "tag Name has no value",
		},
		{
			name:    "not a tag",
			input:   "Name: foo\nthis is not a tag\n",
			wantMsg: "expected a tag",
		},
		{
			name:    "package without name",
			input:   "Name: foo\n%package\n",
			wantMsg: "%package requires a name",
		},
		{
			name:    "unsupported header option",
			input:   "Name: foo\n%files -x\n",
			wantMsg: "unsupported option -x",
		},
		{
			name:    "missing option value",
			input:   "Name: foo\n%files -n\n",
			wantMsg: "requires a value",
		},
		{
			name: "content after diverging branches",
			input: `Name: foo
%if 0%{?suse_version}
%files
/a
%endif
/b
`,
			wantMsg: "branches end in different sections",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseString(tt.input)
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.IsCode(err, errors.ErrCodeParse), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseErrorLine(t *testing.T) {
	_, err := Parse(strings.NewReader("Name: foo\nVersion: 1\nVersion: 2\n"), "foo.spec")
	require.Error(t, err)

	var se *errors.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Context["line"])
	assert.Equal(t, "foo.spec", se.Context["source"])
	assert.Contains(t, se.Message, "foo.spec:3:")
}

func TestParseBranchTagsAreNotDuplicates(t *testing.T) {
	doc := mustParse(t, `Name: foo
Summary: generic
%if 0%{?suse_version}
Summary: suse
%endif
`)
	assert.Len(t, doc.Tags(), 3)
}

func TestParseSameSectionAfterBranches(t *testing.T) {
	doc := mustParse(t, `Name: foo
%files
/a
%if 0%{?suse_version}
/b
%else
/c
%endif
/d
`)
	var paths []string
	doc.Walk(func(e recipe.Entry, _ int) bool {
		if f, ok := e.(*recipe.FileEntry); ok {
			paths = append(paths, f.Paths...)
		}
		return true
	})
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, paths)
}

func TestParseHeaderOptions(t *testing.T) {
	doc := mustParse(t, `Name: foo
%package devel
Summary: Headers
%files devel -f devel.lst
%post -p /sbin/ldconfig
`)
	var headers []*recipe.SectionEntry
	doc.Walk(func(e recipe.Entry, _ int) bool {
		if h, ok := e.(*recipe.SectionEntry); ok {
			headers = append(headers, h)
		}
		return true
	})
	require.Len(t, headers, 3)
	assert.Equal(t, recipe.PackageRef{Name: "devel"}, headers[0].Package)
	assert.Equal(t, "devel.lst", headers[1].FileList)
	assert.Equal(t, []string{"-p", "/sbin/ldconfig"}, headers[2].Options)
	assert.True(t, headers[2].Package.IsMain())
}
