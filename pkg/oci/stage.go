/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package oci

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/manifest"
)

// stagePackage lays out the package files in a temporary directory that
// mirrors the install root. Ghosts are not staged. The caller removes the
// returned directory.
func stagePackage(buildRoot string, pkg *manifest.Package) (string, int, error) {
	stageDir, err := os.MkdirTemp("", "specrun-push-*")
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create temp directory", err)
	}

	files := 0
	for _, f := range pkg.Files {
		if f.Type == manifest.FileTypeGhost {
			continue
		}
		if err := stageFile(buildRoot, stageDir, f); err != nil {
			os.RemoveAll(stageDir)
			return "", 0, err
		}
		files++
	}
	return stageDir, files, nil
}

func stageFile(buildRoot, stageDir string, f manifest.File) error {
	rel := strings.TrimPrefix(filepath.FromSlash(f.Path), string(filepath.Separator))
	src := filepath.Join(buildRoot, rel)
	dst := filepath.Join(stageDir, rel)

	if f.Type == manifest.FileTypeDir {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create directory", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create directory", err)
	}

	if f.Type == manifest.FileTypeSymlink {
		if err := os.Symlink(f.Target, dst); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create symlink", err)
		}
		return nil
	}

	sum, err := manifest.HashFile(src)
	if err != nil {
		return apperrors.WrapWithContext(apperrors.ErrCodeNotFound,
			"packaged file missing from build root", err, map[string]any{"path": f.Path})
	}
	if sum != f.SHA256 {
		return apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("file %s changed since it was packaged", f.Path),
			map[string]any{"path": f.Path, "want": f.SHA256, "got": sum})
	}

	return linkOrCopy(src, dst)
}

// linkOrCopy hard links src to dst, copying when the link cannot be made
// (for example across filesystems).
func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to open source file", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stat source file", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create staged file", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to copy file", err)
	}
	if err := out.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to close staged file", err)
	}
	return nil
}
