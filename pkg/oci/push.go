/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package oci

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenk/backoff"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"

	"github.com/NVIDIA/specrun/pkg/defaults"
	apperrors "github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/manifest"
)

// ArtifactType is the media type for published packages.
const ArtifactType = "application/vnd.nvidia.specrun.package"

// PushOptions configures the OCI push operation.
type PushOptions struct {
	// ManifestPath is the manifest written by the package stage.
	// Ignored when Manifest is set.
	ManifestPath string
	// Manifest is an already loaded manifest.
	Manifest *manifest.Manifest
	// BuildRoot is the install root the manifest paths are relative to.
	BuildRoot string
	// Package selects the manifest package to publish.
	Package string
	// Reference is the destination; a missing tag is derived from the EVR.
	Reference *Reference
	// PlainHTTP uses HTTP instead of HTTPS for the registry connection.
	PlainHTTP bool
	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
	// Target replaces the remote repository, mostly for tests.
	Target oras.Target
}

// PushResult contains the result of a successful OCI push.
type PushResult struct {
	// Digest is the SHA256 digest of the pushed artifact.
	Digest string `json:"digest" yaml:"digest"`
	// Reference is the full image reference (registry/repository:tag).
	Reference string `json:"reference" yaml:"reference"`
	// Files is the number of files in the layer.
	Files int `json:"files" yaml:"files"`
	// Attempts is the number of push attempts made.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// Push publishes one manifest package to a registry using ORAS.
func Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	if opts.Reference == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "OCI reference is required")
	}
	if opts.BuildRoot == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "build root is required")
	}

	m := opts.Manifest
	if m == nil {
		loaded, err := manifest.Load(opts.ManifestPath)
		if err != nil {
			return nil, err
		}
		m = loaded
	}

	pkg, err := selectPackage(m, opts.Package)
	if err != nil {
		return nil, err
	}

	ref := opts.Reference.WithTag(opts.Reference.Tag)
	ref.Registry = stripProtocol(ref.Registry)
	if ref.Tag == "" {
		ref = ref.WithTag(TagForEVR(pkg.EVR))
	}
	if err = ref.Validate(); err != nil {
		return nil, err
	}

	stageDir, files, err := stagePackage(opts.BuildRoot, pkg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stageDir)

	fs, err := file.New(stageDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create file store", err)
	}
	defer func() { _ = fs.Close() }()

	// Deterministic tars keep the layer digest stable across pushes.
	fs.TarReproducible = true

	layerDesc, err := fs.Add(ctx, pkg.Name, ociv1.MediaTypeImageLayerGzip, stageDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to add package to store", err)
	}

	packOpts := oras.PackManifestOptions{
		Layers:              []ociv1.Descriptor{layerDesc},
		ManifestAnnotations: annotations(m, pkg),
	}
	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType, packOpts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to pack manifest", err)
	}
	if tagErr := fs.Tag(ctx, manifestDesc, ref.Tag); tagErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to tag manifest in local store", tagErr)
	}

	target := opts.Target
	if target == nil {
		repo, repoErr := remote.NewRepository(fmt.Sprintf("%s/%s", ref.Registry, ref.Repository))
		if repoErr != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to initialize remote repository", repoErr)
		}
		repo.PlainHTTP = opts.PlainHTTP
		repo.Client = createAuthClient(opts.PlainHTTP, opts.InsecureTLS)
		target = repo
	}

	attempts := 0
	var desc ociv1.Descriptor
	push := func() error {
		attempts++
		var copyErr error
		desc, copyErr = oras.Copy(ctx, fs, ref.Tag, target, ref.Tag, oras.DefaultCopyOptions)
		if copyErr != nil && !isTransient(copyErr) {
			return backoff.Permanent(copyErr)
		}
		return copyErr
	}
	notify := func(err error, wait time.Duration) {
		pushRetries.Inc()
		slog.Warn("push failed, retrying",
			"reference", ref.ImageReference(), "attempt", attempts, "wait", wait, "error", err)
	}

	if err = backoff.RetryNotify(push, retryPolicy(ctx, opts), notify); err != nil {
		pushFailures.Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.ErrCodeTimeout, "push timed out", ctx.Err())
		}
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeUnavailable,
			"failed to push artifact to registry", err,
			map[string]any{"reference": ref.ImageReference(), "attempts": attempts})
	}

	slog.Info("package published",
		"package", pkg.Name, "reference", ref.ImageReference(), "digest", desc.Digest.String(), "attempts", attempts)

	return &PushResult{
		Digest:    desc.Digest.String(),
		Reference: ref.ImageReference(),
		Files:     files,
		Attempts:  attempts,
	}, nil
}

// selectPackage picks the named package, or the only one when name is empty.
func selectPackage(m *manifest.Manifest, name string) (*manifest.Package, error) {
	if name == "" {
		if len(m.Packages) != 1 {
			return nil, apperrors.New(apperrors.ErrCodeInvalidRequest,
				fmt.Sprintf("manifest has %d packages, one must be selected", len(m.Packages)))
		}
		return &m.Packages[0], nil
	}
	pkg, ok := m.Package(name)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, fmt.Sprintf("package %q not in manifest", name))
	}
	return pkg, nil
}

func annotations(m *manifest.Manifest, pkg *manifest.Package) map[string]string {
	a := map[string]string{
		ociv1.AnnotationTitle:   pkg.Name,
		ociv1.AnnotationVersion: pkg.EVR,
	}
	if pkg.License != "" {
		a[ociv1.AnnotationLicenses] = pkg.License
	}
	if pkg.Summary != "" {
		a[ociv1.AnnotationDescription] = pkg.Summary
	}
	if !m.Metadata.GeneratedAt.IsZero() {
		a[ociv1.AnnotationCreated] = m.Metadata.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return a
}

func retryPolicy(ctx context.Context, opts PushOptions) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaults.PublishInitialBackoff
	if opts.InitialBackoff > 0 {
		b.InitialInterval = opts.InitialBackoff
	}
	b.MaxInterval = defaults.PublishMaxBackoff
	b.MaxElapsedTime = defaults.PublishTimeout
	b.Multiplier = 2.0
	b.Reset()

	retries := defaults.PublishMaxRetries
	if opts.MaxRetries > 0 {
		retries = opts.MaxRetries
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// isTransient reports whether a push error is worth retrying.
func isTransient(err error) bool {
	var resp *errcode.ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// stripProtocol removes http:// or https:// prefix from a registry URL.
func stripProtocol(registry string) string {
	registry = strings.TrimPrefix(registry, "https://")
	registry = strings.TrimPrefix(registry, "http://")
	return registry
}

// createAuthClient creates an HTTP client with optional TLS configuration
// and Docker credential support.
func createAuthClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		slog.Debug("docker credentials unavailable", "error", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	client := &auth.Client{
		Client: &http.Client{Transport: transport},
		Cache:  auth.NewCache(),
	}
	if credStore != nil {
		client.Credential = credentials.Credential(credStore)
	}
	return client
}
