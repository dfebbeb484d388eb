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

package host

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

var (
	releasePathPrimary  = "/etc/os-release"
	releasePathFallback = "/usr/lib/os-release"
)

// maxReleaseBytes bounds the os-release file.
const maxReleaseBytes = 64 << 10

// Release holds the os-release fields used for detection.
type Release struct {
	ID         string            `json:"id" yaml:"id"`
	IDLike     []string          `json:"idLike,omitempty" yaml:"idLike,omitempty"`
	VersionID  string            `json:"versionId,omitempty" yaml:"versionId,omitempty"`
	PrettyName string            `json:"prettyName,omitempty" yaml:"prettyName,omitempty"`
	Fields     map[string]string `json:"-" yaml:"-"`
}

// ReadRelease reads os-release from its standard locations.
func ReadRelease(ctx context.Context) (*Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := releasePathPrimary
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		path = releasePathFallback
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, "failed to open os-release", err)
	}
	defer f.Close()

	rel, err := ParseRelease(io.LimitReader(f, maxReleaseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read os release from %s: %w", path, err)
	}
	return rel, nil
}

// ParseRelease parses KEY=value lines. Values may be single or double
// quoted; comments and lines without "=" are skipped.
func ParseRelease(r io.Reader) (*Release, error) {
	fields := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}
		fields[strings.TrimSpace(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Release{
		ID:         strings.ToLower(fields["ID"]),
		IDLike:     strings.Fields(strings.ToLower(fields["ID_LIKE"])),
		VersionID:  fields["VERSION_ID"],
		PrettyName: fields["PRETTY_NAME"],
		Fields:     fields,
	}, nil
}

// idAliases maps os-release IDs that ParseDistroProfile does not know.
var idAliases = map[string]recipe.DistroProfile{
	"opensuse-leap":       recipe.DistroSUSE,
	"opensuse-tumbleweed": recipe.DistroSUSE,
	"sled":                recipe.DistroSUSE,
	"sles_sap":            recipe.DistroSUSE,
}

func profileFor(id string) (recipe.DistroProfile, bool) {
	if p, ok := idAliases[id]; ok {
		return p, true
	}
	p, err := recipe.ParseDistroProfile(id)
	if err != nil || p == recipe.DistroAny {
		return recipe.DistroAny, false
	}
	return p, true
}

// Distro returns the distro profile and the value of its version macro.
// ID wins over ID_LIKE; an unknown distribution yields DistroAny.
func (r *Release) Distro() (recipe.DistroProfile, string) {
	profile, ok := profileFor(r.ID)
	for _, like := range r.IDLike {
		if ok {
			break
		}
		profile, ok = profileFor(like)
	}
	if !ok {
		return recipe.DistroAny, ""
	}
	return profile, versionMacroValue(profile, r.VersionID)
}

// versionMacroValue renders VERSION_ID the way the distro's build system
// sets its version macro: SUSE uses major*100 (15.5 -> 1500), the others
// use the major release.
func versionMacroValue(profile recipe.DistroProfile, versionID string) string {
	major := majorVersion(versionID)
	if profile != recipe.DistroSUSE || major == "" {
		return major
	}
	n, err := strconv.Atoi(major)
	if err != nil || n >= 100 {
		return major
	}
	return strconv.Itoa(n * 100)
}

func majorVersion(versionID string) string {
	major, _, _ := strings.Cut(versionID, ".")
	return major
}

// ContextOptions returns the options that select this host.
func (r *Release) ContextOptions() []recipe.ContextOption {
	opts := []recipe.ContextOption{
		recipe.WithOS(runtime.GOOS),
		recipe.WithArch(Arch()),
	}
	if profile, version := r.Distro(); profile != recipe.DistroAny {
		opts = append(opts, recipe.WithDistro(profile, version))
	}
	return opts
}

// Arch returns the host architecture in RPM spelling.
func Arch() string {
	return RPMArch(runtime.GOARCH)
}

// RPMArch converts a GOARCH value to the name RPM uses.
func RPMArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return goarch
	}
}
