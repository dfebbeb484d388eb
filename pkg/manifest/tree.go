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
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// tree is a snapshot of a directory keyed by "/"-rooted slash paths. Keys
// sort with "/" lowest so every subtree is contiguous.
type tree struct {
	root  string
	paths []string
	info  map[string]fs.FileInfo
}

func scanTree(root string) (*tree, error) {
	t := &tree{root: root, info: map[string]fs.FileInfo{}}
	if root == "" {
		return t, nil
	}
	if _, err := os.Stat(root); stderrors.Is(err, fs.ErrNotExist) {
		return t, nil
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := "/" + filepath.ToSlash(rel)
		t.paths = append(t.paths, key)
		t.info[key] = info
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	slices.SortFunc(t.paths, func(a, b string) int {
		return strings.Compare(treeKey(a), treeKey(b))
	})
	return t, nil
}

func treeKey(p string) string {
	return strings.ReplaceAll(p, "/", "\x00")
}

// match returns the keys a glob selects. A matched directory brings its
// whole subtree unless dirOnly is set.
func (t *tree) match(pattern string, dirOnly bool) ([]string, error) {
	pattern = path.Clean(pattern)
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid file glob %q: %w", pattern, err)
	}

	var out []string
	for i := 0; i < len(t.paths); i++ {
		p := t.paths[i]
		if !g.Match(p) {
			continue
		}
		out = append(out, p)
		if dirOnly || !t.info[p].IsDir() {
			continue
		}
		prefix := p + "/"
		for i+1 < len(t.paths) && strings.HasPrefix(t.paths[i+1], prefix) {
			i++
			out = append(out, t.paths[i])
		}
	}
	return out, nil
}

func (t *tree) abs(key string) string {
	return filepath.Join(t.root, filepath.FromSlash(key))
}

// isLiteral reports whether a pattern has no glob syntax.
func isLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?[{\\")
}
