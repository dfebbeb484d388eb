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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndLoad(t *testing.T) {
	buildRoot, buildDir := fooLayout(t)
	m, err := Build(context.Background(), BuildOptions{
		Recipe:    resolveRecipe(t, fooRecipe),
		BuildRoot: buildRoot,
		BuildDir:  buildDir,
		RunID:     "run-2",
	})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "OUTPUT")
	path, err := Write(context.Background(), out, m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "manifest.yaml"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "run-2", loaded.Metadata.RunID)
	require.Len(t, loaded.Packages, 2)
	assert.Equal(t, m.Packages[0].Files[1].SHA256, loaded.Packages[0].Files[1].SHA256)
	assert.Equal(t, m.Unpackaged, loaded.Unpackaged)

	sums, err := os.ReadFile(filepath.Join(out, "checksums.txt"))
	require.NoError(t, err)
	assert.Equal(t, string(Checksums(m)), string(sums))
	assert.Contains(t, string(sums), sum("foo-binary")+"  usr/bin/foo\n")
}

func TestChecksumsSorted(t *testing.T) {
	m := &Manifest{Packages: []Package{
		{Files: []File{{Path: "/usr/bin/z", SHA256: "bb"}, {Path: "/usr/bin/d", Type: FileTypeDir}}},
		{Files: []File{{Path: "/etc/a", SHA256: "aa"}}},
	}}
	assert.Equal(t, "aa  etc/a\nbb  usr/bin/z\n", string(Checksums(m)))
	assert.Empty(t, Checksums(&Manifest{}))
}

func TestLoadRejectsOtherKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: Something\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestManifestPackage(t *testing.T) {
	m := &Manifest{Packages: []Package{{Name: "foo"}, {Name: "foo-devel"}}}
	p, ok := m.Package("foo-devel")
	require.True(t, ok)
	assert.Equal(t, "foo-devel", p.Name)
	_, ok = m.Package("bar")
	assert.False(t, ok)
}
