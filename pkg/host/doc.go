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

// Package host detects the build host's distribution so recipes can be
// resolved for the machine they are built on.
//
// Detection reads os-release (freedesktop.org format) from /etc/os-release,
// falling back to /usr/lib/os-release, and maps ID and ID_LIKE onto the
// distro profiles conditionals select on:
//
//	rel, err := host.ReadRelease(ctx)
//	if err != nil {
//	    return err
//	}
//	ctx := recipe.NewContext(rel.ContextOptions()...)
package host
