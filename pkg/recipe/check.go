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
	"fmt"
	"slices"
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
)

// Severity grades a check issue.
type Severity string

// Severity constants.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes reported by Check.
const (
	IssueUnresolved     = "unresolved-condition"
	IssueAmbiguous      = "ambiguous-condition"
	IssueMissingTag     = "missing-tag"
	IssueInvalidLicense = "invalid-license"
	IssueMissingFiles   = "missing-files"
	IssueUndeclared     = "undeclared-package"
)

// RequiredTags must be declared for the main package.
var RequiredTags = []string{TagName, TagVersion, TagRelease, TagSummary, TagLicense}

// Issue is one finding of Check.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// Report is the result of Check.
type Report struct {
	Source   string  `json:"source" yaml:"source"`
	Contexts int     `json:"contexts" yaml:"contexts"`
	Issues   []Issue `json:"issues" yaml:"issues"`
}

// HasErrors reports whether any issue has error severity.
func (r *Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

// Count returns the number of issues with severity s.
func (r *Report) Count(s Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}

func (r *Report) add(sev Severity, code string, line int, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Code: code, Line: line, Message: fmt.Sprintf(format, args...)})
}

// CheckOptions configures Check.
type CheckOptions struct {
	// Domains adds profiles to the enumerated domain of a family, e.g. the
	// distros a project actually builds for.
	Domains map[Family][]string

	// SkipLicense disables SPDX validation.
	SkipLicense bool
}

// Check validates a document without resolving it. Every conditional is
// evaluated under every value of its family's domain: the profiles named by
// any guard of that family, the empty profile, and opts.Domains, each with
// the boundary versions of the branch constraints. A conditional that
// selects no branch (and has no %else) or more than one branch under some
// value is reported.
func Check(doc *Document, opts CheckOptions) *Report {
	rep := &Report{Source: doc.Source}
	domains := collectDomains(doc, opts.Domains)

	for _, c := range doc.Conditionals() {
		rep.Contexts += checkConditional(rep, c, domains[c.Family])
	}
	checkTags(rep, doc, opts)
	checkPackages(rep, doc)
	return rep
}

func collectDomains(doc *Document, extra map[Family][]string) map[Family][]string {
	domains := map[Family][]string{}
	add := func(f Family, p string) {
		if !slices.Contains(domains[f], p) {
			domains[f] = append(domains[f], p)
		}
	}
	for _, c := range doc.Conditionals() {
		add(c.Family, "")
		for _, g := range conditionalGuards(c) {
			for _, p := range g.Profiles {
				add(g.Family, p)
			}
		}
	}
	for f, ps := range extra {
		for _, p := range ps {
			add(f, p)
		}
	}
	for f := range domains {
		slices.Sort(domains[f])
	}
	return domains
}

func conditionalGuards(c *Conditional) []Guard {
	var gs []Guard
	for _, b := range c.Branches {
		if b.Guard != nil {
			gs = append(gs, *b.Guard)
		}
	}
	return gs
}

// checkConditional returns the number of contexts evaluated.
func checkConditional(rep *Report, c *Conditional, domain []string) int {
	guards := conditionalGuards(c)
	evaluated := 0
	reportedUnresolved, reportedAmbiguous := false, false

	for _, profile := range domain {
		versions := []string{""}
		for _, g := range guards {
			if g.Constraint != nil && slices.Contains(g.Profiles, profile) {
				for _, v := range g.Constraint.Boundaries() {
					if !slices.Contains(versions, v) {
						versions = append(versions, v)
					}
				}
			}
		}

		for _, v := range versions {
			evaluated++
			ctx := NewContext()
			ctx.Set(c.Family, Selection{Profile: profile, Version: v})

			var matched []string
			for _, g := range guards {
				if g.Matches(ctx) {
					matched = append(matched, g.Text)
				}
			}
			value := describeValue(c.Family, profile, v)
			switch {
			case len(matched) > 1 && !reportedAmbiguous:
				reportedAmbiguous = true
				rep.add(SeverityError, IssueAmbiguous, c.Line,
					"%d branches match %s: %s", len(matched), value, strings.Join(quoteAll(matched), ", "))
			case len(matched) == 0 && c.Else == nil && c.Family != FamilyConst && !reportedUnresolved:
				reportedUnresolved = true
				rep.add(SeverityError, IssueUnresolved, c.Line,
					"no branch matches %s and there is no %%else", value)
			}
		}
	}
	return evaluated
}

func describeValue(f Family, profile, v string) string {
	if profile == "" {
		profile = "(unset)"
	}
	s := fmt.Sprintf("%s=%s", f, profile)
	if v != "" {
		s += " version " + v
	}
	return s
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

func checkTags(rep *Report, doc *Document, opts CheckOptions) {
	seen := map[string]bool{}
	for _, t := range doc.Tags() {
		key := CanonicalTag(t.Key)
		if t.Package.IsMain() {
			seen[key] = true
		}
		if key != TagLicense || opts.SkipLicense || strings.Contains(t.Value, "%") {
			continue
		}
		if ok, _ := spdxexp.ValidateLicenses([]string{t.Value}); !ok {
			rep.add(SeverityWarning, IssueInvalidLicense, t.Line,
				"license %q is not a valid SPDX expression", t.Value)
		}
	}
	for _, k := range RequiredTags {
		if !seen[k] {
			rep.add(SeverityError, IssueMissingTag, 0, "required tag %s is missing", k)
		}
	}
}

func checkPackages(rep *Report, doc *Document) {
	declared := map[PackageRef]int{}
	var order []PackageRef
	files := map[PackageRef]bool{}
	type use struct {
		ref  PackageRef
		line int
	}
	var uses []use

	doc.Walk(func(e Entry, _ int) bool {
		s, ok := e.(*SectionEntry)
		if !ok {
			return true
		}
		switch {
		case s.Section == SectionPackage:
			if _, dup := declared[s.Package]; !dup {
				declared[s.Package] = s.Line
				order = append(order, s.Package)
			}
		case s.Section == SectionFiles:
			files[s.Package] = true
			uses = append(uses, use{s.Package, s.Line})
		case s.Section.PerPackage():
			uses = append(uses, use{s.Package, s.Line})
		}
		return true
	})

	for _, ref := range order {
		if !files[ref] {
			rep.add(SeverityWarning, IssueMissingFiles, declared[ref],
				"package %s has no %%files section and will not be built", ref.Args())
		}
	}
	for _, u := range uses {
		if u.ref.IsMain() {
			continue
		}
		if _, ok := declared[u.ref]; !ok {
			rep.add(SeverityError, IssueUndeclared, u.line, "package %s is not declared with %%package", u.ref.Args())
		}
	}
}
