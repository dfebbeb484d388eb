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

package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error types for version parsing failures
var (
	ErrEmptyVersion   = errors.New("version string is empty")
	ErrInvalidEpoch   = errors.New("epoch is not a non-negative integer")
	ErrInvalidOp      = errors.New("unsupported comparison operator")
	ErrInvalidVersion = errors.New("version contains whitespace")
)

// EVR is an RPM epoch:version-release triple.
type EVR struct {
	Epoch   int    `json:"epoch,omitempty" yaml:"epoch,omitempty"`
	Version string `json:"version" yaml:"version"`
	Release string `json:"release,omitempty" yaml:"release,omitempty"`
}

// NewEVR builds an EVR from recipe tags. An empty epoch is zero.
func NewEVR(epoch, ver, release string) (EVR, error) {
	if ver == "" {
		return EVR{}, ErrEmptyVersion
	}
	e := 0
	if epoch != "" {
		n, err := strconv.Atoi(epoch)
		if err != nil || n < 0 {
			return EVR{}, fmt.Errorf("%w: %q", ErrInvalidEpoch, epoch)
		}
		e = n
	}
	return EVR{Epoch: e, Version: ver, Release: release}, nil
}

// ParseEVR parses "[epoch:]version[-release]". The release is everything
// after the last dash.
func ParseEVR(s string) (EVR, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EVR{}, ErrEmptyVersion
	}
	if strings.ContainsAny(s, " \t") {
		return EVR{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	epoch := ""
	if i := strings.IndexByte(s, ':'); i >= 0 {
		epoch, s = s[:i], s[i+1:]
		if epoch == "" {
			return EVR{}, fmt.Errorf("%w: empty", ErrInvalidEpoch)
		}
	}
	release := ""
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		s, release = s[:i], s[i+1:]
	}
	return NewEVR(epoch, s, release)
}

// String renders the EVR, omitting a zero epoch and an empty release.
func (e EVR) String() string {
	var sb strings.Builder
	if e.Epoch > 0 {
		sb.WriteString(strconv.Itoa(e.Epoch))
		sb.WriteByte(':')
	}
	sb.WriteString(e.Version)
	if e.Release != "" {
		sb.WriteByte('-')
		sb.WriteString(e.Release)
	}
	return sb.String()
}

// Compare orders two EVRs. Releases are only compared when both are set.
func (e EVR) Compare(other EVR) int {
	if e.Epoch != other.Epoch {
		if e.Epoch < other.Epoch {
			return -1
		}
		return 1
	}
	if c := Compare(e.Version, other.Version); c != 0 {
		return c
	}
	if e.Release == "" || other.Release == "" {
		return 0
	}
	return Compare(e.Release, other.Release)
}

// Compare orders two version or release strings using rpmvercmp rules.
// It returns -1, 0 or 1.
func Compare(a, b string) int {
	if a == b {
		return 0
	}

	for len(a) > 0 || len(b) > 0 {
		a = trimSeparators(a)
		b = trimSeparators(b)

		// tilde sorts before anything, even the end of the string
		if strings.HasPrefix(a, "~") || strings.HasPrefix(b, "~") {
			if !strings.HasPrefix(a, "~") {
				return 1
			}
			if !strings.HasPrefix(b, "~") {
				return -1
			}
			a, b = a[1:], b[1:]
			continue
		}

		// caret sorts after the end of the string but before any segment
		if strings.HasPrefix(a, "^") || strings.HasPrefix(b, "^") {
			if a == "" {
				return -1
			}
			if b == "" {
				return 1
			}
			if !strings.HasPrefix(a, "^") {
				return 1
			}
			if !strings.HasPrefix(b, "^") {
				return -1
			}
			a, b = a[1:], b[1:]
			continue
		}

		if a == "" || b == "" {
			break
		}

		numeric := isDigit(a[0])
		var segA, segB string
		if numeric {
			segA, a = span(a, isDigit)
			segB, b = span(b, isDigit)
		} else {
			segA, a = span(a, isAlpha)
			segB, b = span(b, isAlpha)
		}

		if segB == "" {
			// numeric segments are newer than alpha ones
			if numeric {
				return 1
			}
			return -1
		}

		if numeric {
			segA = strings.TrimLeft(segA, "0")
			segB = strings.TrimLeft(segB, "0")
			if len(segA) != len(segB) {
				if len(segA) > len(segB) {
					return 1
				}
				return -1
			}
		}
		if c := strings.Compare(segA, segB); c != 0 {
			return c
		}
	}

	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func trimSeparators(s string) string {
	i := 0
	for i < len(s) && !isDigit(s[i]) && !isAlpha(s[i]) && s[i] != '~' && s[i] != '^' {
		i++
	}
	return s[i:]
}

func span(s string, pred func(byte) bool) (string, string) {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
