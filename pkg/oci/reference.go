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

package oci

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"

	apperrors "github.com/NVIDIA/specrun/pkg/errors"
)

// URIScheme optionally prefixes registry references.
const URIScheme = "oci://"

// maxTagLength is the longest tag the distribution spec allows.
const maxTagLength = 128

// Reference identifies a repository, and optionally a tag, in a registry.
type Reference struct {
	// Registry is the registry host (e.g., "ghcr.io", "localhost:5000").
	Registry string
	// Repository is the repository path (e.g., "nvidia/packages").
	Repository string
	// Tag is empty when the caller should derive one.
	Tag string
}

// ParseReference parses "[oci://]registry/repository[:tag]".
func ParseReference(target string) (*Reference, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(target), URIScheme)
	if trimmed == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "OCI reference is empty")
	}

	ref, err := reference.ParseNormalizedNamed(trimmed)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid OCI reference", err)
	}
	if _, ok := ref.(reference.Digested); ok {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("OCI reference %q must not carry a digest", target))
	}

	out := &Reference{
		Registry:   reference.Domain(ref),
		Repository: reference.Path(ref),
	}
	if tagged, ok := ref.(reference.Tagged); ok {
		out.Tag = tagged.Tag()
	}
	return out, nil
}

// String returns the reference with the oci:// scheme.
func (r *Reference) String() string {
	return URIScheme + r.ImageReference()
}

// ImageReference returns "registry/repository[:tag]".
func (r *Reference) ImageReference() string {
	if r.Tag == "" {
		return fmt.Sprintf("%s/%s", r.Registry, r.Repository)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// WithTag returns a copy with the given tag.
func (r *Reference) WithTag(tag string) *Reference {
	out := *r
	out.Tag = tag
	return &out
}

// Validate checks the full reference, including the tag.
func (r *Reference) Validate() error {
	if r.Tag == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "tag is required to push OCI artifact")
	}
	if _, err := reference.ParseNormalizedNamed(r.ImageReference()); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid image reference '%s'", r.ImageReference()), err)
	}
	return nil
}

// TagForEVR converts an epoch:version-release string into a valid tag.
func TagForEVR(evr string) string {
	var sb strings.Builder
	for i, c := range evr {
		valid := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			(i > 0 && (c == '.' || c == '-'))
		if valid {
			sb.WriteRune(c)
		} else {
			sb.WriteByte('_')
		}
	}
	tag := sb.String()
	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}
	return tag
}
