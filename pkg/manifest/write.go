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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/serializer"
)

// Write stores m as manifest.yaml and checksums.txt under dir and returns
// the manifest path.
func Write(ctx context.Context, dir string, m *Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	manifestPath := filepath.Join(dir, defaults.ManifestFileName)
	f, err := os.Create(manifestPath)
	if err != nil {
		return "", fmt.Errorf("failed to create manifest: %w", err)
	}
	w := serializer.NewWriter(serializer.FormatYAML, f)
	if err := w.Serialize(ctx, m); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close manifest: %w", err)
	}

	if err := serializer.WriteToFile(filepath.Join(dir, defaults.ChecksumFileName), Checksums(m)); err != nil {
		return "", err
	}
	return manifestPath, nil
}

// Checksums renders sha256sum-style lines for every hashed file, sorted by
// path. Paths are relative to the install root.
func Checksums(m *Manifest) []byte {
	type entry struct{ path, sum string }
	var entries []entry
	for _, p := range m.Packages {
		for _, f := range p.Files {
			if f.SHA256 != "" {
				entries = append(entries, entry{strings.TrimPrefix(f.Path, "/"), f.SHA256})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.sum + "  " + e.path + "\n")
	}
	return []byte(sb.String())
}

// Load reads a manifest written by Write.
func Load(path string) (*Manifest, error) {
	m, err := serializer.FromFile[Manifest](path)
	if err != nil {
		return nil, err
	}
	if m.Kind != defaults.ManifestKind {
		return nil, fmt.Errorf("%s is not a %s (kind %q)", path, defaults.ManifestKind, m.Kind)
	}
	return m, nil
}
