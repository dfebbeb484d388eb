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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalTag(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"name", "Name"},
		{"NAME", "Name"},
		{"Url", "URL"},
		{"buildrequires", "BuildRequires"},
		{"Requires(post)", "Requires(post)"},
		{"requires(pre)", "Requires(pre)"},
		{"source0", "Source0"},
		{"SOURCE", "Source"},
		{"patch12", "Patch12"},
		{"X-Custom", "X-Custom"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalTag(tt.input))
		})
	}
}

func TestTagClassification(t *testing.T) {
	assert.True(t, IsKnownTag("version"))
	assert.True(t, IsKnownTag("Source3"))
	assert.True(t, IsKnownTag("Requires(post)"))
	assert.False(t, IsKnownTag("Frobnicate"))

	assert.True(t, IsListTag("requires(post)"))
	assert.True(t, IsListTag("BuildRequires"))
	assert.False(t, IsListTag("Summary"))
	assert.False(t, IsListTag("Source1"))
}

func TestSourceIndex(t *testing.T) {
	kind, n, ok := SourceIndex("Source")
	assert.True(t, ok)
	assert.Equal(t, TagSource, kind)
	assert.Equal(t, "0", n)

	kind, n, ok = SourceIndex("patch7")
	assert.True(t, ok)
	assert.Equal(t, TagPatch, kind)
	assert.Equal(t, "7", n)

	_, _, ok = SourceIndex("SourceX")
	assert.False(t, ok)
}

func TestSplitDeps(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a >= 1.0, b c", []string{"a >= 1.0", "b", "c"}},
		{"python3-devel,python3-setuptools", []string{"python3-devel", "python3-setuptools"}},
		{"pkgconfig(libfoo) > 2", []string{"pkgconfig(libfoo) > 2"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitDeps(tt.input))
		})
	}
}
