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

// Package defaults provides centralized configuration constants for specrun.
//
// This package defines timeout values, limits, and build-layout defaults used
// across the codebase. Flags and the optional config file override the
// build-layout values; the timeouts are fixed.
//
// # Categories
//
//   - Build layout: work directory names, shell, RPM path macros
//   - Stage limits: per-stage timeout, captured stderr size
//   - Manifest: hashing concurrency
//   - Server timeouts: for the HTTP API
//   - HTTP client timeouts: for fetching recipes over HTTP(S)
//   - Publish: OCI push retry bounds
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.StageTimeout)
//	defer cancel()
package defaults
