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
	"strconv"
	"strings"

	"github.com/NVIDIA/specrun/pkg/version"
)

// Guard is a typed predicate over one family. A guard matches when the
// context selects one of Profiles (and, with a Constraint, the version
// satisfies it); Negate inverts the result.
type Guard struct {
	Family     Family              `json:"family" yaml:"family"`
	Profiles   []string            `json:"profiles" yaml:"profiles"`
	Negate     bool                `json:"negate,omitempty" yaml:"negate,omitempty"`
	Constraint *version.Constraint `json:"constraint,omitempty" yaml:"constraint,omitempty"`

	// Macro is the macro a constraint reads when the context defines it,
	// e.g. sle_version.
	Macro string `json:"macro,omitempty" yaml:"macro,omitempty"`

	// Text is the expression as written.
	Text string `json:"text" yaml:"text"`
}

// Matches evaluates the guard against ctx.
func (g Guard) Matches(ctx *Context) bool {
	if g.Family == FamilyConst {
		return !g.Negate
	}
	sel := ctx.Selection(g.Family)
	in := slices.Contains(g.Profiles, sel.Profile)
	if g.Constraint != nil {
		// an unselected profile leaves its macro undefined, which compares as 0
		v := ""
		if in {
			v = sel.Version
		}
		if g.Macro != "" && ctx != nil {
			if d, ok := ctx.Defines[g.Macro]; ok {
				v = d
			}
		}
		in = g.Constraint.Matches(v)
	}
	return in != g.Negate
}

// Complements reports whether g and o select exactly opposite sets of
// contexts.
func (g Guard) Complements(o Guard) bool {
	if g.Family != o.Family || g.Family == FamilyConst {
		return false
	}
	if (g.Constraint == nil) != (o.Constraint == nil) {
		return false
	}
	if g.Constraint == nil {
		if g.Negate == o.Negate {
			return false
		}
	} else {
		if g.Macro != o.Macro || g.Constraint.Value != o.Constraint.Value {
			return false
		}
		// a < N and a >= N split every context, including an unset macro
		sameOp := g.Constraint.Op == o.Constraint.Op
		inverse := g.Constraint.Op.Inverse() == o.Constraint.Op
		if !(sameOp && g.Negate != o.Negate) && !(inverse && g.Negate == o.Negate) {
			return false
		}
	}
	a, b := slices.Clone(g.Profiles), slices.Clone(o.Profiles)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

// Describe renders the guard in its normalized form.
func (g Guard) Describe() string {
	if g.Family == FamilyConst {
		return strconv.FormatBool(!g.Negate)
	}
	op := "in"
	if g.Negate {
		op = "not in"
	}
	s := fmt.Sprintf("%s %s [%s]", g.Family, op, strings.Join(g.Profiles, ","))
	if g.Constraint != nil {
		s += " && version " + g.Constraint.String()
	}
	return s
}

// Conditional keywords.
const (
	KeywordIf        = "if"
	KeywordIfArch    = "ifarch"
	KeywordIfNArch   = "ifnarch"
	KeywordIfOS      = "ifos"
	KeywordIfNOS     = "ifnos"
	KeywordElif      = "elif"
	KeywordElifArch  = "elifarch"
	KeywordElifNArch = "elifnarch"
	KeywordElifOS    = "elifos"
	KeywordElifNOS   = "elifnos"
)

// IsOpeningKeyword reports whether kw starts a conditional.
func IsOpeningKeyword(kw string) bool {
	switch kw {
	case KeywordIf, KeywordIfArch, KeywordIfNArch, KeywordIfOS, KeywordIfNOS:
		return true
	}
	return false
}

// IsElifKeyword reports whether kw continues a conditional.
func IsElifKeyword(kw string) bool {
	switch kw {
	case KeywordElif, KeywordElifArch, KeywordElifNArch, KeywordElifOS, KeywordElifNOS:
		return true
	}
	return false
}

// archGroups expands the architecture group macros accepted in %ifarch.
var archGroups = map[string][]string{
	"ix86":    {"i386", "i486", "i586", "i686", "pentium3", "pentium4", "athlon", "geode"},
	"x86_64":  {"x86_64", "amd64", "em64t"},
	"arm":     {"armv5tel", "armv6l", "armv6hl", "armv7l", "armv7hl", "armv7hnl"},
	"arm64":   {"aarch64"},
	"power64": {"ppc64", "ppc64p7", "ppc64le"},
	"riscv64": {"riscv64"},
}

// ParseGuard parses the expression of a conditional keyword line.
func ParseGuard(keyword, expr string) (Guard, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Guard{}, fmt.Errorf("%%%s without expression", keyword)
	}

	switch keyword {
	case KeywordIfArch, KeywordIfNArch, KeywordElifArch, KeywordElifNArch:
		profiles, err := expandList(expr)
		if err != nil {
			return Guard{}, err
		}
		return Guard{
			Family:   FamilyArch,
			Profiles: profiles,
			Negate:   keyword == KeywordIfNArch || keyword == KeywordElifNArch,
			Text:     expr,
		}, nil
	case KeywordIfOS, KeywordIfNOS, KeywordElifOS, KeywordElifNOS:
		return Guard{
			Family:   FamilyOS,
			Profiles: strings.Fields(expr),
			Negate:   keyword == KeywordIfNOS || keyword == KeywordElifNOS,
			Text:     expr,
		}, nil
	case KeywordIf, KeywordElif:
	default:
		return Guard{}, fmt.Errorf("unknown conditional %%%s", keyword)
	}

	toks, err := tokenizeGuard(expr)
	if err != nil {
		return Guard{}, err
	}
	p := &guardParser{toks: toks}
	g, err := p.parseExpr()
	if err != nil {
		return Guard{}, err
	}
	if !p.done() {
		return Guard{}, fmt.Errorf("unexpected %q in guard", p.peek())
	}
	g.Text = expr
	return g, nil
}

func expandList(expr string) ([]string, error) {
	var out []string
	for _, f := range strings.Fields(expr) {
		if strings.HasPrefix(f, "%") {
			name := strings.Trim(strings.TrimPrefix(f, "%"), "{}")
			group, ok := archGroups[name]
			if !ok {
				return nil, fmt.Errorf("unknown architecture macro %q", f)
			}
			out = append(out, group...)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

type guardParser struct {
	toks []string
	pos  int
}

func (p *guardParser) done() bool { return p.pos >= len(p.toks) }

func (p *guardParser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *guardParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

// parseExpr parses terms joined by one kind of connective. Only unions of
// positive terms (||) and intersections of negated terms (&&) stay within a
// single family's profile set.
func (p *guardParser) parseExpr() (Guard, error) {
	first, err := p.parseTerm()
	if err != nil {
		return Guard{}, err
	}
	terms := []Guard{first}
	conn := ""
	for !p.done() && (p.peek() == "||" || p.peek() == "&&") {
		op := p.next()
		if conn != "" && conn != op {
			return Guard{}, fmt.Errorf("mixed || and && in guard")
		}
		conn = op
		t, err := p.parseTerm()
		if err != nil {
			return Guard{}, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}

	out := Guard{Family: first.Family, Negate: conn == "&&"}
	for _, t := range terms {
		if t.Family != first.Family {
			return Guard{}, fmt.Errorf("guard mixes families %s and %s", first.Family, t.Family)
		}
		if t.Constraint != nil {
			return Guard{}, fmt.Errorf("version constraint cannot be combined with %s", conn)
		}
		if t.Family == FamilyConst {
			return Guard{}, fmt.Errorf("constant cannot be combined with %s", conn)
		}
		if t.Negate != out.Negate {
			if conn == "||" {
				return Guard{}, fmt.Errorf("|| requires positive terms")
			}
			return Guard{}, fmt.Errorf("&& requires negated terms")
		}
		for _, pr := range t.Profiles {
			if !slices.Contains(out.Profiles, pr) {
				out.Profiles = append(out.Profiles, pr)
			}
		}
		if t.Macro != "" && out.Macro == "" {
			out.Macro = t.Macro
		}
	}
	return out, nil
}

func (p *guardParser) parseTerm() (Guard, error) {
	negate := false
	for p.peek() == "!" {
		p.next()
		negate = !negate
	}

	var g Guard
	switch tok := p.peek(); {
	case tok == "":
		return Guard{}, fmt.Errorf("unexpected end of guard")
	case tok == "(":
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return Guard{}, err
		}
		if p.next() != ")" {
			return Guard{}, fmt.Errorf("missing ) in guard")
		}
		g = inner
	default:
		var err error
		if g, err = p.parseAtom(); err != nil {
			return Guard{}, err
		}
	}

	if negate {
		g.Negate = !g.Negate
	}
	return g, nil
}

func (p *guardParser) parseAtom() (Guard, error) {
	word := p.next()
	if isOperatorToken(word) {
		return Guard{}, fmt.Errorf("unexpected %q in guard", word)
	}

	// named form: distro == suse, arch in x86_64,aarch64
	if isFamilyName(word) {
		op := p.peek()
		if op == "==" || op == "!=" || op == "in" {
			p.next()
			return p.parseNamed(Family(word), op)
		}
	}

	if isNumber(word) {
		n, _ := strconv.Atoi(word)
		if isComparison(p.peek()) {
			return Guard{}, fmt.Errorf("constant comparison %q is not supported", word)
		}
		return Guard{Family: FamilyConst, Profiles: []string{profileTrue}, Negate: n == 0}, nil
	}

	g, err := macroGuard(word)
	if err != nil {
		return Guard{}, err
	}
	if !isComparison(p.peek()) {
		return g, nil
	}

	op, _ := version.ParseOp(p.next())
	value := p.next()
	if value == "" || isOperatorToken(value) {
		return Guard{}, fmt.Errorf("missing value after %s", op)
	}
	if g.Macro == "" {
		return Guard{}, fmt.Errorf("%q cannot be compared", word)
	}

	// comparisons against zero test definedness
	if value == "0" {
		switch op {
		case version.OpEQ, version.OpLE:
			g.Negate = !g.Negate
			return g, nil
		case version.OpNE, version.OpGT:
			return g, nil
		}
	}
	g.Constraint = &version.Constraint{Op: op, Value: value}
	return g, nil
}

func (p *guardParser) parseNamed(f Family, op string) (Guard, error) {
	var raw []string
	for !p.done() && p.peek() != "||" && p.peek() != "&&" && p.peek() != ")" {
		raw = append(raw, p.next())
	}
	if len(raw) == 0 {
		return Guard{}, fmt.Errorf("missing value for %s %s", f, op)
	}
	var profiles []string
	for _, r := range raw {
		for _, v := range strings.Split(r, ",") {
			v = strings.Trim(strings.TrimSpace(v), `"`)
			if v == "" {
				continue
			}
			if f == FamilyDistro {
				d, err := ParseDistroProfile(v)
				if err != nil {
					return Guard{}, err
				}
				v = string(d)
			}
			profiles = append(profiles, v)
		}
	}
	if op != "in" && len(profiles) != 1 {
		return Guard{}, fmt.Errorf("%s %s takes one value", f, op)
	}
	return Guard{Family: f, Profiles: profiles, Negate: op == "!="}, nil
}

// macroGuard interprets 0%{?name}, %{?name}, %{defined name}, %{with name}
// and their variants.
func macroGuard(word string) (Guard, error) {
	w := strings.TrimLeft(word, "0123456789")
	if !strings.HasPrefix(w, "%{") || !strings.HasSuffix(w, "}") {
		return Guard{}, fmt.Errorf("invalid guard term %q", word)
	}
	body := strings.TrimSpace(w[2 : len(w)-1])

	negate := false
	if fields := strings.Fields(body); len(fields) == 2 {
		switch fields[0] {
		case "with", "without":
			return Guard{
				Family:   FeatureFamily(fields[1]),
				Profiles: []string{ProfileOn},
				Negate:   fields[0] == "without",
			}, nil
		case "defined":
			body = fields[1]
		case "undefined":
			body, negate = fields[1], true
		default:
			return Guard{}, fmt.Errorf("invalid guard term %q", word)
		}
	}
	body = strings.TrimPrefix(body, "?")
	if !isMacroName(body) {
		return Guard{}, fmt.Errorf("invalid guard term %q", word)
	}

	if name, ok := strings.CutPrefix(body, withPrefix); ok {
		return Guard{Family: FeatureFamily(name), Profiles: []string{ProfileOn}, Negate: negate}, nil
	}
	if d, ok := DistroForMacro(body); ok {
		return Guard{Family: FamilyDistro, Profiles: []string{string(d)}, Negate: negate, Macro: body}, nil
	}
	return Guard{Family: MacroFamily(body), Profiles: []string{ProfileDefined}, Negate: negate, Macro: body}, nil
}

func tokenizeGuard(expr string) ([]string, error) {
	var toks []string
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.HasPrefix(expr[i:], "||"), strings.HasPrefix(expr[i:], "&&"),
			strings.HasPrefix(expr[i:], "=="), strings.HasPrefix(expr[i:], "!="),
			strings.HasPrefix(expr[i:], ">="), strings.HasPrefix(expr[i:], "<="):
			toks = append(toks, expr[i:i+2])
			i += 2
		case c == '!' || c == '(' || c == ')' || c == '<' || c == '>':
			toks = append(toks, string(c))
			i++
		case c == '"':
			end := strings.IndexByte(expr[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote in guard")
			}
			toks = append(toks, expr[i+1:i+1+end])
			i += end + 2
		default:
			j, depth := i, 0
			for j < len(expr) {
				ch := expr[j]
				if ch == '{' {
					depth++
				} else if ch == '}' {
					depth--
				} else if depth == 0 && strings.IndexByte(" \t|&!()<>=\"", ch) >= 0 {
					break
				}
				j++
			}
			if depth != 0 {
				return nil, fmt.Errorf("unbalanced braces in guard")
			}
			if j == i {
				return nil, fmt.Errorf("unexpected %q in guard", c)
			}
			toks = append(toks, expr[i:j])
			i = j
		}
	}
	return toks, nil
}

func isOperatorToken(t string) bool {
	switch t {
	case "||", "&&", "!", "(", ")":
		return true
	}
	return isComparison(t)
}

func isComparison(t string) bool {
	_, err := version.ParseOp(t)
	return err == nil
}

func isFamilyName(s string) bool {
	switch Family(s) {
	case FamilyDistro, FamilyArch, FamilyOS:
		return true
	}
	return strings.HasPrefix(s, withPrefix) || strings.HasPrefix(s, macroPrefix)
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isMacroName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}
