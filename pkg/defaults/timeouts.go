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

package defaults

import "time"

// Build layout defaults. Paths are relative to the work directory.
const (
	// WorkDir is the default work directory for builds.
	WorkDir = ".specrun"

	// BuildDirName holds unpacked sources (%{_builddir}).
	BuildDirName = "BUILD"

	// BuildRootDirName is the staged install tree (%{buildroot}).
	BuildRootDirName = "BUILDROOT"

	// OutputDirName receives manifest.yaml and checksums.txt.
	OutputDirName = "OUTPUT"

	// SourceDir is the default location of Source/Patch files.
	SourceDir = "."

	// Shell runs stage scripts.
	Shell = "/bin/sh"

	// Prefix is the default %{_prefix}.
	Prefix = "/usr"

	// Python3 is the default %{python3} interpreter.
	Python3 = "python3"

	// Python3Sitelib is the default %{python3_sitelib}.
	Python3Sitelib = "/usr/lib/python3/site-packages"
)

// Stage execution limits.
const (
	// StageTimeout bounds a single stage script.
	StageTimeout = 2 * time.Hour

	// StageStderrTailBytes is how much trailing stderr a failed stage keeps.
	StageStderrTailBytes = 4096

	// StageKillGrace is how long a cancelled stage gets between SIGTERM and SIGKILL.
	StageKillGrace = 5 * time.Second
)

// Manifest generation.
const (
	// ManifestHashWorkers bounds concurrent file hashing in the package stage.
	ManifestHashWorkers = 8

	// ManifestAPIVersion is written to every manifest.
	ManifestAPIVersion = "specrun.nvidia.com/v1alpha1"

	// ManifestKind is written to every manifest.
	ManifestKind = "PackageManifest"

	// ManifestFileName is the manifest written to the output directory.
	ManifestFileName = "manifest.yaml"

	// ChecksumFileName lists sha256 sums of every manifested file.
	ChecksumFileName = "checksums.txt"
)

// Handler timeouts for HTTP request processing.
const (
	// ResolveHandlerTimeout is the timeout for parse/resolve/lint requests.
	ResolveHandlerTimeout = 15 * time.Second

	// MaxRecipeBytes limits request bodies carrying recipe text.
	MaxRecipeBytes = 1 << 20
)

// Server timeouts for HTTP server configuration.
const (
	// ServerReadTimeout is the maximum duration for reading request headers.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	ServerWriteTimeout = 30 * time.Second

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// HTTP client timeouts for outbound requests.
const (
	// HTTPClientTimeout is the default total timeout for HTTP requests.
	HTTPClientTimeout = 30 * time.Second

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second
)

// Publish settings for OCI pushes.
const (
	// PublishTimeout bounds a whole publish, retries included.
	PublishTimeout = 10 * time.Minute

	// PublishMaxRetries is the number of retries after the first push attempt.
	PublishMaxRetries = 4

	// PublishInitialBackoff is the first retry delay.
	PublishInitialBackoff = 500 * time.Millisecond

	// PublishMaxBackoff caps a single retry delay.
	PublishMaxBackoff = 15 * time.Second
)
