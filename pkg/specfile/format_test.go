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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/specrun/pkg/recipe"
)

func TestFormat(t *testing.T) {
	doc := mustParse(t, `# comment
name:foo
version = 1.0
%description
Foo.
%files
%doc README
"/usr/share/foo/with space"
%if 0%{?suse_version}
%{_bindir}/foo
%else
%{_bindir}/foo-generic
%endif
`)

	want := `Name: foo
Version: 1.0

%description
Foo.

%files
%doc README
"/usr/share/foo/with space"
%if 0%{?suse_version}
%{_bindir}/foo
%else
%{_bindir}/foo-generic
%endif
`
	assert.Equal(t, want, FormatString(doc))
}

func TestFormatMergedConditional(t *testing.T) {
	doc := mustParse(t, `Name: foo
%if 0%{?suse_version}
Summary: suse
%endif
%if !0%{?suse_version}
Summary: other
%endif
`)
	want := `Name: foo
%if 0%{?suse_version}
Summary: suse
%endif
%if !0%{?suse_version}
Summary: other
%endif
`
	assert.Equal(t, want, FormatString(doc))
}

func TestFormatIsStable(t *testing.T) {
	first := FormatString(mustParse(t, fooSpec))
	second := FormatString(mustParse(t, first))
	assert.Equal(t, first, second)
}

func TestFormatNilDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Format(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestMetadataRoundTrip(t *testing.T) {
	orig := mustParse(t, fooSpec)
	again := mustParse(t, FormatString(orig))

	tagValues := func(doc *recipe.Document) []recipe.Tag {
		var out []recipe.Tag
		for _, e := range doc.Tags() {
			out = append(out, recipe.Tag{Key: recipe.CanonicalTag(e.Key), Value: e.Value})
		}
		return out
	}
	assert.Equal(t, tagValues(orig), tagValues(again))
	assert.Len(t, again.Conditionals(), len(orig.Conditionals()))

	contexts := map[string]*recipe.Context{
		"suse":  recipe.NewContext(recipe.WithDistro(recipe.DistroSUSE, "1500")),
		"other": recipe.NewContext(recipe.WithDistro(recipe.DistroAny, "")),
	}
	for name, ctx := range contexts {
		t.Run(name, func(t *testing.T) {
			a, err := recipe.Resolve(orig, ctx, recipe.WithImplicitDefault())
			require.NoError(t, err)
			b, err := recipe.Resolve(again, ctx, recipe.WithImplicitDefault())
			require.NoError(t, err)

			assert.Equal(t, a.Metadata, b.Metadata)
			assert.Equal(t, a.Description, b.Description)
			assert.Equal(t, a.Scripts, b.Scripts)
			assert.Equal(t, a.Changelog, b.Changelog)
			require.Len(t, b.Packages, len(a.Packages))
			for i := range a.Packages {
				assert.Equal(t, a.Packages[i].Name, b.Packages[i].Name)
				assert.Equal(t, a.Packages[i].Tags, b.Packages[i].Tags)
				assert.Equal(t, a.Packages[i].Globs(), b.Packages[i].Globs())
			}
		})
	}
}

func TestResolveSelectsOtherBranchFiles(t *testing.T) {
	doc := mustParse(t, `Name: foo
Version: 1.0

%description
Foo.

%if 0%{?suse_version}
%files
%{python3_sitelib}/foo
%{python3_sitelib}/foo-%{version}*-info
%else
%files
%{_bindir}/foo
%endif
`)

	rec, err := recipe.Resolve(doc, recipe.NewContext(recipe.WithDistro(recipe.DistroAny, "")))
	require.NoError(t, err)
	assert.Equal(t, "foo", rec.Name())
	assert.Equal(t, "1.0", rec.Version())
	require.Len(t, rec.Packages, 1)
	assert.Equal(t, []string{"%{_bindir}/foo"}, rec.Packages[0].Globs())

	rec, err = recipe.Resolve(doc, recipe.NewContext(recipe.WithDistro(recipe.DistroSUSE, "1500")))
	require.NoError(t, err)
	require.Len(t, rec.Packages, 1)
	assert.Equal(t, []string{"%{python3_sitelib}/foo", "%{python3_sitelib}/foo-%{version}*-info"}, rec.Packages[0].Globs())
}
