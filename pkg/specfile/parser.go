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

package specfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/macro"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

const maxLineBytes = 1 << 20

var (
	tagColonRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*(?:\([^)]*\))?)\s*:\s*(.*)$`)
	tagEqualRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)\s*=\s*(.*)$`)
)

// ParseFile parses the recipe at path.
func ParseFile(path string) (*recipe.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, fmt.Sprintf("failed to open recipe %s", path), err)
	}
	defer f.Close()
	return Parse(f, path)
}

// ParseString parses recipe text held in memory.
func ParseString(s string) (*recipe.Document, error) {
	return Parse(strings.NewReader(s), "<string>")
}

// Parse reads recipe text from r. name is used in error messages.
func Parse(r io.Reader, name string) (*recipe.Document, error) {
	doc, err := parse(r, name)
	if err != nil {
		parseTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	parseTotal.WithLabelValues("success").Inc()
	return doc, nil
}

// state is the section subsequent lines belong to. unknown follows a
// conditional whose branches ended in different sections.
type state struct {
	section recipe.Section
	pkg     recipe.PackageRef
	unknown bool
}

type frame struct {
	cond    *recipe.Conditional
	parent  *recipe.Fragment
	start   state
	ends    []state
	hasElse bool
}

type parser struct {
	name  string
	root  *recipe.Fragment
	cur   *recipe.Fragment
	stack []*frame
	st    state
	seen  map[*recipe.Fragment]map[string]int
}

type logicalLine struct {
	num  int
	raw  string // physical lines joined with their backslash-newlines
	flat string // continuation markers replaced by a space
}

func parse(r io.Reader, name string) (*recipe.Document, error) {
	p := &parser{
		name: name,
		root: &recipe.Fragment{},
		st:   state{section: recipe.SectionPreamble},
		seen: map[*recipe.Fragment]map[string]int{},
	}
	p.cur = p.root

	lines, err := readLines(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", name), err)
	}
	for _, l := range lines {
		if err := p.line(l); err != nil {
			return nil, err
		}
	}
	if n := len(p.stack); n > 0 {
		return nil, p.errorf(p.stack[n-1].cond.Line, "unterminated %%%s", p.stack[n-1].cond.Branches[0].Keyword)
	}

	mergeComplements(p.root)
	return &recipe.Document{Source: name, Root: p.root}, nil
}

func readLines(r io.Reader) ([]logicalLine, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		out     []logicalLine
		pending *logicalLine
		num     int
	)
	for sc.Scan() {
		num++
		text := strings.TrimRight(sc.Text(), "\r")
		if pending == nil {
			pending = &logicalLine{num: num}
		} else {
			pending.raw += "\n"
			pending.flat += " "
		}
		if strings.HasSuffix(text, `\`) {
			pending.raw += text
			pending.flat += strings.TrimSuffix(text, `\`)
			continue
		}
		pending.raw += text
		pending.flat += text
		out = append(out, *pending)
		pending = nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if pending != nil {
		out = append(out, *pending)
	}
	return out, nil
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return errors.NewWithContext(errors.ErrCodeParse,
		fmt.Sprintf("%s:%d: %s", p.name, line, fmt.Sprintf(format, args...)),
		map[string]any{"source": p.name, "line": line})
}

func (p *parser) line(l logicalLine) error {
	trimmed := strings.TrimSpace(l.flat)

	if kw, rest, ok := conditionalKeyword(trimmed); ok {
		return p.conditional(l.num, kw, rest)
	}
	if sec, args, ok := sectionHeader(l.flat); ok {
		return p.header(l.num, sec, args)
	}

	switch {
	case p.st.unknown:
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return nil
		}
		return p.errorf(l.num, "content follows a conditional whose branches end in different sections")
	case p.st.section.AcceptsTags():
		return p.preamble(l.num, trimmed)
	case p.st.section == recipe.SectionFiles:
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return nil
		}
		dirs, paths := recipe.ParseFileLine(trimmed)
		p.cur.Append(&recipe.FileEntry{Line: l.num, Package: p.st.pkg, Directives: dirs, Paths: paths})
		return nil
	default:
		p.cur.Append(&recipe.TextEntry{Line: l.num, Section: p.st.section, Package: p.st.pkg, Text: l.raw})
		return nil
	}
}

func (p *parser) preamble(num int, line string) error {
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	if strings.HasPrefix(line, "%") {
		if kind, name, value, ok := macro.ParseDefinition(line); ok {
			p.cur.Append(&recipe.MacroEntry{Line: num, Kind: kind, Name: name, Value: value})
			return nil
		}
		if e, ok, err := parseBcond(num, line); ok || err != nil {
			if err != nil {
				return p.errorf(num, "%v", err)
			}
			p.cur.Append(e)
			return nil
		}
		p.cur.Append(&recipe.DirectiveEntry{Line: num, Text: line})
		return nil
	}

	key, value, ok := splitTag(line)
	if !ok {
		return p.errorf(num, "expected a tag, got %q", line)
	}
	if value == "" {
		return p.errorf(num, "tag %s has no value", key)
	}
	canon := recipe.CanonicalTag(key)
	if !recipe.IsListTag(canon) {
		seen := p.seen[p.cur]
		if seen == nil {
			seen = map[string]int{}
			p.seen[p.cur] = seen
		}
		id := p.st.pkg.Args() + "\x00" + canon
		if prev, dup := seen[id]; dup {
			return p.errorf(num, "duplicate tag %s (first declared on line %d)", canon, prev)
		}
		seen[id] = num
	}
	p.cur.Append(&recipe.TagEntry{Line: num, Package: p.st.pkg, Key: key, Value: value})
	return nil
}

func splitTag(line string) (string, string, bool) {
	if m := tagColonRe.FindStringSubmatch(line); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	if m := tagEqualRe.FindStringSubmatch(line); m != nil && recipe.IsKnownTag(m[1]) {
		return m[1], strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

func parseBcond(num int, line string) (*recipe.BcondEntry, bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "%bcond_with", "%bcond_without":
		if len(fields) != 2 {
			return nil, true, fmt.Errorf("%s takes one name", fields[0])
		}
		return &recipe.BcondEntry{Line: num, Name: fields[1], Default: fields[0] == "%bcond_without"}, true, nil
	case "%bcond":
		if len(fields) != 3 {
			return nil, true, fmt.Errorf("%%bcond takes a name and a default")
		}
		return &recipe.BcondEntry{Line: num, Name: fields[1], Default: fields[2] != "0"}, true, nil
	}
	return nil, false, nil
}

// conditionalKeyword recognizes %if-family lines.
func conditionalKeyword(line string) (kw, rest string, ok bool) {
	if !strings.HasPrefix(line, "%") {
		return "", "", false
	}
	word, rest, _ := strings.Cut(line[1:], " ")
	if i := strings.IndexByte(word, '\t'); i >= 0 {
		word, rest = word[:i], word[i+1:]+" "+rest
	}
	switch {
	case recipe.IsOpeningKeyword(word), recipe.IsElifKeyword(word):
		return word, strings.TrimSpace(rest), true
	case word == "else", word == "endif":
		return word, "", true
	}
	return "", "", false
}

// sectionHeader recognizes section headers at column 0.
func sectionHeader(line string) (recipe.Section, []string, bool) {
	if !strings.HasPrefix(line, "%") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	sec, ok := recipe.ParseSection(fields[0])
	if !ok {
		return "", nil, false
	}
	return sec, fields[1:], true
}

func (p *parser) header(num int, sec recipe.Section, args []string) error {
	e := &recipe.SectionEntry{Line: num, Section: sec}

	if sec.PerPackage() {
		for i := 0; i < len(args); i++ {
			a := args[i]
			value := func() (string, error) {
				if i+1 >= len(args) {
					return "", p.errorf(num, "%%%s %s requires a value", sec, a)
				}
				i++
				return args[i], nil
			}
			var err error
			switch {
			case a == "-n":
				var n string
				if n, err = value(); err == nil {
					e.Package = recipe.PackageRef{Name: n, Full: true}
				}
			case a == "-f" && sec == recipe.SectionFiles:
				e.FileList, err = value()
			case a == "-p" && sec.IsScriptlet():
				var prog string
				if prog, err = value(); err == nil {
					e.Options = append(e.Options, "-p", prog)
				}
			case strings.HasPrefix(a, "-"):
				err = p.errorf(num, "unsupported option %s for %%%s", a, sec)
			case e.Package.Name == "":
				e.Package = recipe.PackageRef{Name: a}
			default:
				err = p.errorf(num, "unexpected argument %q for %%%s", a, sec)
			}
			if err != nil {
				return err
			}
		}
		if sec == recipe.SectionPackage && e.Package.IsMain() {
			return p.errorf(num, "%%package requires a name")
		}
	}

	p.cur.Append(e)
	p.st = state{section: sec, pkg: e.Package}
	return nil
}

func (p *parser) conditional(num int, kw, rest string) error {
	switch {
	case recipe.IsOpeningKeyword(kw):
		g, err := recipe.ParseGuard(kw, rest)
		if err != nil {
			return p.errorf(num, "invalid guard: %v", err)
		}
		body := &recipe.Fragment{}
		c := &recipe.Conditional{
			Line:     num,
			Family:   g.Family,
			Branches: []recipe.Branch{{Line: num, Keyword: kw, Guard: &g, Body: body}},
		}
		p.cur.Append(c)
		p.stack = append(p.stack, &frame{cond: c, parent: p.cur, start: p.st})
		p.cur = body
		return nil

	case recipe.IsElifKeyword(kw):
		f := p.top()
		if f == nil {
			return p.errorf(num, "%%%s without %%if", kw)
		}
		if f.hasElse {
			return p.errorf(num, "%%%s after %%else", kw)
		}
		g, err := recipe.ParseGuard(kw, rest)
		if err != nil {
			return p.errorf(num, "invalid guard: %v", err)
		}
		if g.Family != f.cond.Family {
			return p.errorf(num, "%%%s selects on %s but the conditional on line %d selects on %s",
				kw, g.Family, f.cond.Line, f.cond.Family)
		}
		body := &recipe.Fragment{}
		f.cond.Branches = append(f.cond.Branches, recipe.Branch{Line: num, Keyword: kw, Guard: &g, Body: body})
		f.ends = append(f.ends, p.st)
		p.st = f.start
		p.cur = body
		return nil

	case kw == "else":
		f := p.top()
		if f == nil {
			return p.errorf(num, "%%else without %%if")
		}
		if f.hasElse {
			return p.errorf(num, "duplicate %%else for conditional on line %d", f.cond.Line)
		}
		f.hasElse = true
		body := &recipe.Fragment{}
		f.cond.Else = &recipe.Branch{Line: num, Keyword: "else", Body: body}
		f.ends = append(f.ends, p.st)
		p.st = f.start
		p.cur = body
		return nil

	default: // endif
		f := p.top()
		if f == nil {
			return p.errorf(num, "%%endif without %%if")
		}
		p.stack = p.stack[:len(p.stack)-1]
		f.ends = append(f.ends, p.st)
		if !f.hasElse {
			// selecting nothing leaves the section where it was
			f.ends = append(f.ends, f.start)
		}
		p.cur = f.parent
		p.st = f.ends[0]
		for _, s := range f.ends[1:] {
			if s != p.st {
				p.st = state{unknown: true}
				break
			}
		}
		return nil
	}
}

func (p *parser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// mergeComplements folds two single-branch conditionals with complementary
// guards into one conditional whose second arm is the default. Blank and
// comment lines between them move after the merged conditional.
func mergeComplements(f *recipe.Fragment) {
	for _, e := range f.Entries {
		if c, ok := e.(*recipe.Conditional); ok {
			for _, b := range c.Branches {
				mergeComplements(b.Body)
			}
			if c.Else != nil {
				mergeComplements(c.Else.Body)
			}
		}
	}

	out := make([]recipe.Entry, 0, len(f.Entries))
	for i := 0; i < len(f.Entries); i++ {
		e := f.Entries[i]
		a, ok := e.(*recipe.Conditional)
		if !ok || !single(a) {
			out = append(out, e)
			continue
		}
		j := i + 1
		for j < len(f.Entries) && isFiller(f.Entries[j]) {
			j++
		}
		if j < len(f.Entries) {
			b, okB := f.Entries[j].(*recipe.Conditional)
			if okB && single(b) && a.Branches[0].Guard.Complements(*b.Branches[0].Guard) {
				second := b.Branches[0]
				out = append(out, &recipe.Conditional{
					Line:     a.Line,
					Family:   a.Family,
					Branches: a.Branches,
					Else:     &second,
				})
				out = append(out, f.Entries[i+1:j]...)
				i = j
				continue
			}
		}
		out = append(out, e)
	}
	f.Entries = out
}

// isFiller reports whether e is a blank or comment line.
func isFiller(e recipe.Entry) bool {
	t, ok := e.(*recipe.TextEntry)
	if !ok {
		return false
	}
	trimmed := strings.TrimSpace(t.Text)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

func single(c *recipe.Conditional) bool {
	return len(c.Branches) == 1 && c.Else == nil && c.Branches[0].Guard != nil
}
