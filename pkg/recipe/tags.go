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

package recipe

import (
	"strings"

	"golang.org/x/text/cases"
)

// Well-known tag keys in canonical spelling.
const (
	TagName          = "Name"
	TagVersion       = "Version"
	TagRelease       = "Release"
	TagEpoch         = "Epoch"
	TagSummary       = "Summary"
	TagLicense       = "License"
	TagURL           = "URL"
	TagGroup         = "Group"
	TagBuildArch     = "BuildArch"
	TagBuildRequires = "BuildRequires"
	TagRequires      = "Requires"
	TagProvides      = "Provides"
	TagObsoletes     = "Obsoletes"
	TagConflicts     = "Conflicts"
	TagRecommends    = "Recommends"
	TagSuggests      = "Suggests"
	TagSupplements   = "Supplements"
	TagEnhances      = "Enhances"
	TagSource        = "Source"
	TagPatch         = "Patch"
)

// foldKey case-folds a tag key. A Caser is stateful, so each call gets its own.
func foldKey(s string) string {
	return cases.Fold().String(s)
}

// scalarTags are declared at most once per package and fragment level.
var scalarTags = []string{
	TagName, TagVersion, TagRelease, TagEpoch, TagSummary, TagLicense, TagURL,
	TagGroup, TagBuildArch, "Vendor", "Packager", "Distribution", "BuildRoot",
	"Prefix", "AutoReqProv", "AutoReq", "AutoProv", "BuildSystem",
}

// listTags accumulate across declarations.
var listTags = []string{
	TagBuildRequires, TagRequires, TagProvides, TagObsoletes, TagConflicts,
	TagRecommends, TagSuggests, TagSupplements, TagEnhances, "BuildConflicts",
	"OrderWithRequires", "ExclusiveArch", "ExcludeArch", "ExclusiveOS", "ExcludeOS",
}

var canonicalTags = func() map[string]string {
	m := map[string]string{}
	for _, k := range append(append([]string{}, scalarTags...), listTags...) {
		m[foldKey(k)] = k
	}
	m[foldKey("Url")] = TagURL
	return m
}()

// CanonicalTag returns the canonical spelling of a tag key, matched without
// regard to case. Source and Patch keep their number; a dependency
// qualifier such as Requires(post) is kept as written.
func CanonicalTag(key string) string {
	key = strings.TrimSpace(key)
	base, qual := key, ""
	if i := strings.IndexByte(key, '('); i > 0 {
		base, qual = key[:i], key[i:]
	}
	folded := foldKey(base)
	if k, ok := canonicalTags[folded]; ok {
		return k + qual
	}
	for _, prefix := range []string{TagSource, TagPatch} {
		if n, ok := strings.CutPrefix(folded, foldKey(prefix)); ok && isNumeric(n) {
			return prefix + n + qual
		}
	}
	return key
}

// IsKnownTag reports whether key names a tag this package recognizes.
func IsKnownTag(key string) bool {
	if _, _, ok := SourceIndex(key); ok {
		return true
	}
	_, ok := canonicalTags[foldKey(TagBase(key))]
	return ok
}

// TagBase strips a dependency qualifier from a canonical key.
func TagBase(key string) string {
	if i := strings.IndexByte(key, '('); i > 0 {
		return key[:i]
	}
	return key
}

// IsListTag reports whether a key accumulates values.
func IsListTag(key string) bool {
	base := TagBase(CanonicalTag(key))
	for _, k := range listTags {
		if k == base {
			return true
		}
	}
	return false
}

// SourceIndex returns N for SourceN/PatchN keys; a bare Source or Patch is 0.
func SourceIndex(key string) (kind, index string, ok bool) {
	key = CanonicalTag(key)
	for _, prefix := range []string{TagSource, TagPatch} {
		if n, found := strings.CutPrefix(key, prefix); found && isNumeric(n) {
			if n == "" {
				n = "0"
			}
			return prefix, n, true
		}
	}
	return "", "", false
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Tag is a resolved key/value pair.
type Tag struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// SplitDeps splits a dependency tag value into entries, keeping version
// comparisons together: "a >= 1.0, b c" gives ["a >= 1.0", "b", "c"].
func SplitDeps(value string) []string {
	fields := strings.Fields(strings.ReplaceAll(value, ",", " , "))
	var out []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == "," {
			continue
		}
		if isDepOp(f) && len(out) > 0 && i+1 < len(fields) {
			out[len(out)-1] += " " + f + " " + fields[i+1]
			i++
			continue
		}
		out = append(out, f)
	}
	return out
}

func isDepOp(s string) bool {
	switch s {
	case "=", "==", "<", "<=", ">", ">=":
		return true
	}
	return false
}
