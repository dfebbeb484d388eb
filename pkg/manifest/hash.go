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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/errors"
)

// hashFiles fills SHA256 for every regular file. Each goroutine writes only
// its own File.
func hashFiles(ctx context.Context, m *Manifest) error {
	start := time.Now()
	defer func() { hashDuration.Observe(time.Since(start).Seconds()) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaults.ManifestHashWorkers)

	for i := range m.Packages {
		for j := range m.Packages[i].Files {
			f := &m.Packages[i].Files[j]
			if f.source == "" {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sum, err := HashFile(f.source)
				if err != nil {
					return err
				}
				f.SHA256 = sum
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return errors.WrapWithContext(errors.ErrCodeStageExecution, "failed to hash packaged files", err,
			map[string]any{"stage": StageName})
	}
	return nil
}

// HashFile returns the hex sha256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
