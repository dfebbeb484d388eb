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

// Package config loads the optional specrun configuration file.
//
// The file is YAML (or JSON, by extension) and supplies defaults for the
// command-line flags; flags always win:
//
//	workdir: .specrun
//	sourcedir: ./sources
//	distro: suse
//	distroVersion: "1500"
//	arch: x86_64
//	with: [docs]
//	without: [tests]
//	defines:
//	  _prefix: /opt/foo
//	publish:
//	  registry: ghcr.io
//	  repository: nvidia/packages
package config
