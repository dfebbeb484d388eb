/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package oci

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote/errcode"

	apperrors "github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/manifest"
)

// flakyTarget rejects manifest pushes until failures runs out.
type flakyTarget struct {
	*memory.Store

	mu       sync.Mutex
	failures int
	status   int
}

func (f *flakyTarget) Push(ctx context.Context, desc ociv1.Descriptor, r io.Reader) error {
	if desc.MediaType == ociv1.MediaTypeImageManifest {
		f.mu.Lock()
		fail := f.failures > 0
		if fail {
			f.failures--
		}
		f.mu.Unlock()
		if fail {
			return &errcode.ErrorResponse{
				Method:     http.MethodPut,
				URL:        &url.URL{Scheme: "https", Host: "registry.example.com"},
				StatusCode: f.status,
			}
		}
	}
	return f.Store.Push(ctx, desc, r)
}

func testManifest(t *testing.T) (string, *manifest.Manifest) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "share", "foo"), 0o755))
	bin := filepath.Join(root, "usr", "bin", "foo")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho foo\n"), 0o755))
	require.NoError(t, os.Symlink("foo", filepath.Join(root, "usr", "bin", "foo-link")))

	sum, err := manifest.HashFile(bin)
	require.NoError(t, err)

	m := &manifest.Manifest{
		Kind:       "PackageManifest",
		APIVersion: "specrun.nvidia.com/v1alpha1",
		Metadata:   manifest.Metadata{GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		Packages: []manifest.Package{{
			Name:    "foo",
			EVR:     "1:1.0-1",
			Arch:    "x86_64",
			Summary: "The foo tool",
			License: "MIT",
			Files: []manifest.File{
				{Path: "/usr/bin/foo", Type: manifest.FileTypeRegular, SHA256: sum},
				{Path: "/usr/bin/foo-link", Type: manifest.FileTypeSymlink, Target: "foo"},
				{Path: "/usr/share/foo", Type: manifest.FileTypeDir},
				{Path: "/var/log/foo.log", Type: manifest.FileTypeGhost},
			},
		}},
	}
	return root, m
}

func fetchManifest(t *testing.T, target *flakyTarget, tag string) ociv1.Manifest {
	t.Helper()
	ctx := context.Background()
	desc, err := target.Resolve(ctx, tag)
	require.NoError(t, err)
	raw, err := content.FetchAll(ctx, target, desc)
	require.NoError(t, err)
	var m ociv1.Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func testReference(t *testing.T) *Reference {
	t.Helper()
	ref, err := ParseReference("oci://registry.example.com/nvidia/packages")
	require.NoError(t, err)
	return ref
}

func TestPush(t *testing.T) {
	root, m := testManifest(t)
	target := &flakyTarget{Store: memory.New()}

	res, err := Push(context.Background(), PushOptions{
		Manifest:  m,
		BuildRoot: root,
		Reference: testReference(t),
		Target:    target,
	})
	require.NoError(t, err)

	assert.Equal(t, "registry.example.com/nvidia/packages:1_1.0-1", res.Reference)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.Digest)

	got := fetchManifest(t, target, "1_1.0-1")
	assert.Equal(t, ArtifactType, got.ArtifactType)
	require.Len(t, got.Layers, 1)
	assert.Equal(t, ociv1.MediaTypeImageLayerGzip, got.Layers[0].MediaType)
	assert.Equal(t, "foo", got.Annotations[ociv1.AnnotationTitle])
	assert.Equal(t, "1:1.0-1", got.Annotations[ociv1.AnnotationVersion])
	assert.Equal(t, "MIT", got.Annotations[ociv1.AnnotationLicenses])
	assert.Equal(t, "The foo tool", got.Annotations[ociv1.AnnotationDescription])
	assert.Equal(t, "2025-03-01T12:00:00Z", got.Annotations[ociv1.AnnotationCreated])
}

func TestPushIsReproducible(t *testing.T) {
	root, m := testManifest(t)

	push := func() string {
		res, err := Push(context.Background(), PushOptions{
			Manifest:  m,
			BuildRoot: root,
			Reference: testReference(t).WithTag("stable"),
			Target:    &flakyTarget{Store: memory.New()},
		})
		require.NoError(t, err)
		return res.Digest
	}
	assert.Equal(t, push(), push())
}

func TestPushFromManifestFile(t *testing.T) {
	root, m := testManifest(t)
	path, err := manifest.Write(context.Background(), t.TempDir(), m)
	require.NoError(t, err)

	target := &flakyTarget{Store: memory.New()}
	res, err := Push(context.Background(), PushOptions{
		ManifestPath: path,
		BuildRoot:    root,
		Package:      "foo",
		Reference:    testReference(t).WithTag("v1"),
		Target:       target,
	})
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/nvidia/packages:v1", res.Reference)
	fetchManifest(t, target, "v1")
}

func TestPushRetries(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		status       int
		maxRetries   int
		wantErr      bool
		wantAttempts int
	}{
		{name: "recovers from unavailable", failures: 2, status: http.StatusServiceUnavailable, maxRetries: 4, wantAttempts: 3},
		{name: "recovers from throttling", failures: 1, status: http.StatusTooManyRequests, maxRetries: 4, wantAttempts: 2},
		{name: "gives up after retries", failures: 10, status: http.StatusBadGateway, maxRetries: 2, wantErr: true},
		{name: "does not retry unauthorized", failures: 1, status: http.StatusUnauthorized, maxRetries: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, m := testManifest(t)
			target := &flakyTarget{Store: memory.New(), failures: tt.failures, status: tt.status}

			res, err := Push(context.Background(), PushOptions{
				Manifest:       m,
				BuildRoot:      root,
				Reference:      testReference(t),
				Target:         target,
				MaxRetries:     tt.maxRetries,
				InitialBackoff: time.Millisecond,
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
		})
	}
}

func TestPushUnauthorizedIsNotRetried(t *testing.T) {
	root, m := testManifest(t)
	target := &flakyTarget{Store: memory.New(), failures: 5, status: http.StatusUnauthorized}

	_, err := Push(context.Background(), PushOptions{
		Manifest:       m,
		BuildRoot:      root,
		Reference:      testReference(t),
		Target:         target,
		InitialBackoff: time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, 4, target.failures)
}

func TestPushErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(opts *PushOptions)
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "missing reference",
			mutate:   func(opts *PushOptions) { opts.Reference = nil },
			wantCode: apperrors.ErrCodeInvalidRequest,
		},
		{
			name:     "missing build root",
			mutate:   func(opts *PushOptions) { opts.BuildRoot = "" },
			wantCode: apperrors.ErrCodeInvalidRequest,
		},
		{
			name:     "unknown package",
			mutate:   func(opts *PushOptions) { opts.Package = "bar" },
			wantCode: apperrors.ErrCodeNotFound,
		},
		{
			name:     "changed file",
			mutate:   func(opts *PushOptions) { opts.Manifest.Packages[0].Files[0].SHA256 = "deadbeef" },
			wantCode: apperrors.ErrCodeInvalidRequest,
		},
		{
			name: "missing file",
			mutate: func(opts *PushOptions) {
				require.NoError(t, os.Remove(filepath.Join(opts.BuildRoot, "usr", "bin", "foo")))
			},
			wantCode: apperrors.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, m := testManifest(t)
			opts := PushOptions{
				Manifest:  m,
				BuildRoot: root,
				Reference: testReference(t),
				Target:    &flakyTarget{Store: memory.New()},
			}
			tt.mutate(&opts)

			_, err := Push(context.Background(), opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
		})
	}
}

func TestSelectPackage(t *testing.T) {
	m := &manifest.Manifest{Packages: []manifest.Package{{Name: "foo"}, {Name: "foo-devel"}}}

	_, err := selectPackage(m, "")
	require.Error(t, err)

	pkg, err := selectPackage(m, "foo-devel")
	require.NoError(t, err)
	assert.Equal(t, "foo-devel", pkg.Name)

	single := &manifest.Manifest{Packages: []manifest.Package{{Name: "foo"}}}
	pkg, err = selectPackage(single, "")
	require.NoError(t, err)
	assert.Equal(t, "foo", pkg.Name)
}

func TestStagePackage(t *testing.T) {
	root, m := testManifest(t)

	dir, files, err := stagePackage(root, &m.Packages[0])
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	assert.Equal(t, 3, files)
	assert.FileExists(t, filepath.Join(dir, "usr", "bin", "foo"))
	assert.DirExists(t, filepath.Join(dir, "usr", "share", "foo"))
	target, err := os.Readlink(filepath.Join(dir, "usr", "bin", "foo-link"))
	require.NoError(t, err)
	assert.Equal(t, "foo", target)
	assert.NoFileExists(t, filepath.Join(dir, "var", "log", "foo.log"))
}

func TestLinkOrCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	dst := filepath.Join(dir, "dst")
	require.NoError(t, linkOrCopy(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	require.Error(t, linkOrCopy(filepath.Join(dir, "missing"), filepath.Join(dir, "other")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", &errcode.ErrorResponse{StatusCode: http.StatusServiceUnavailable, URL: &url.URL{}}, true},
		{"too many requests", &errcode.ErrorResponse{StatusCode: http.StatusTooManyRequests, URL: &url.URL{}}, true},
		{"not found", &errcode.ErrorResponse{StatusCode: http.StatusNotFound, URL: &url.URL{}}, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestStripProtocol(t *testing.T) {
	assert.Equal(t, "ghcr.io", stripProtocol("https://ghcr.io"))
	assert.Equal(t, "localhost:5000", stripProtocol("http://localhost:5000"))
	assert.Equal(t, "ghcr.io", stripProtocol("ghcr.io"))
}

func TestCreateAuthClient(t *testing.T) {
	client := createAuthClient(false, true)
	require.NotNil(t, client.Client)
	transport, ok := client.Client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)

	plain := createAuthClient(true, true)
	transport, ok = plain.Client.Transport.(*http.Transport)
	require.True(t, ok)
	if transport.TLSClientConfig != nil {
		assert.False(t, transport.TLSClientConfig.InsecureSkipVerify)
	}
}
