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

// Package manifest records what a build staged into its build root and
// which output package claims each file.
//
// Build walks the build root once, matches every package's %files globs
// against it and hashes the claimed regular files. The result is written as
// manifest.yaml plus a sha256 checksum list:
//
//	m, err := manifest.Build(ctx, manifest.BuildOptions{
//	    Recipe:    rec,
//	    Expander:  exp,
//	    BuildRoot: "/work/BUILDROOT",
//	    BuildDir:  "/work/BUILD/foo-1.0",
//	})
//	if err != nil {
//	    return err
//	}
//	if err := manifest.Write(outDir, m); err != nil {
//	    return err
//	}
//
// A glob that matches nothing fails the package stage unless the line is
// marked %ghost. Files staged but claimed by no package are reported as
// Unpackaged warnings.
package manifest
