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

package macro

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// MaxDepth bounds recursive expansion.
const MaxDepth = 64

// ErrRecursion is returned when expansion exceeds MaxDepth.
var ErrRecursion = errors.New("macro recursion too deep")

// Builtin produces the expansion of a parametric macro.
type Builtin func(e *Expander, args []string) (string, error)

// Expander holds macro definitions and expands text against them.
// An Expander is not safe for concurrent mutation.
type Expander struct {
	macros   map[string]string
	builtins map[string]Builtin
}

// Option configures an Expander.
type Option func(*Expander)

// WithDefines seeds the expander with definitions.
func WithDefines(defs map[string]string) Option {
	return func(e *Expander) {
		for k, v := range defs {
			e.macros[k] = v
		}
	}
}

// WithBuiltin registers or replaces a builtin.
func WithBuiltin(name string, fn Builtin) Option {
	return func(e *Expander) {
		e.builtins[name] = fn
	}
}

// WithoutBuiltins drops the default builtin set.
func WithoutBuiltins() Option {
	return func(e *Expander) {
		e.builtins = map[string]Builtin{}
	}
}

// New returns an Expander with the default builtins.
func New(opts ...Option) *Expander {
	e := &Expander{
		macros:   map[string]string{},
		builtins: defaultBuiltins(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clone returns an independent copy.
func (e *Expander) Clone() *Expander {
	return &Expander{
		macros:   maps.Clone(e.macros),
		builtins: maps.Clone(e.builtins),
	}
}

// Define sets name to value. The value is expanded lazily.
func (e *Expander) Define(name, value string) {
	e.macros[name] = value
}

// Global expands value immediately and defines name to the result.
func (e *Expander) Global(name, value string) error {
	v, err := e.Expand(value)
	if err != nil {
		return fmt.Errorf("global %s: %w", name, err)
	}
	e.macros[name] = v
	return nil
}

// Undefine removes name.
func (e *Expander) Undefine(name string) {
	delete(e.macros, name)
}

// Lookup returns the raw definition of name.
func (e *Expander) Lookup(name string) (string, bool) {
	v, ok := e.macros[name]
	return v, ok
}

// IsDefined reports whether name is a macro or builtin.
func (e *Expander) IsDefined(name string) bool {
	if _, ok := e.macros[name]; ok {
		return true
	}
	_, ok := e.builtins[name]
	return ok
}

// Names returns the defined macro names with the given prefix, sorted.
func (e *Expander) Names(prefix string) []string {
	var names []string
	for k := range e.macros {
		if strings.HasPrefix(k, prefix) {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}

// Expand expands all macros in s.
func (e *Expander) Expand(s string) (string, error) {
	return e.expand(s, 0)
}

// ExpandOrRaw expands s, returning s unchanged on error.
func (e *Expander) ExpandOrRaw(s string) string {
	out, err := e.Expand(s)
	if err != nil {
		return s
	}
	return out
}

// ExpandLines expands script lines. %global, %define and %undefine lines
// update the expander and produce no output. Comment lines are kept verbatim.
func (e *Expander) ExpandLines(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			out = append(out, line)
			continue
		}
		if kind, name, value, ok := ParseDefinition(trimmed); ok {
			var err error
			switch kind {
			case "global":
				err = e.Global(name, value)
			case "define":
				e.Define(name, value)
			case "undefine":
				e.Undefine(name)
			}
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			continue
		}
		exp, err := e.Expand(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// ParseDefinition splits "%global NAME VALUE", "%define NAME VALUE" and
// "%undefine NAME" lines.
func ParseDefinition(line string) (kind, name, value string, ok bool) {
	for _, k := range []string{"global", "define", "undefine"} {
		rest, found := strings.CutPrefix(line, "%"+k)
		if !found || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", "", "", false
		}
		name = fields[0]
		if k != "undefine" {
			value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), name))
		}
		return k, name, value, true
	}
	return "", "", "", false
}

func (e *Expander) expand(s string, depth int) (string, error) {
	if depth > MaxDepth {
		return "", ErrRecursion
	}
	if !strings.Contains(s, "%") {
		return s, nil
	}

	var sb strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c != '%' || i+1 >= len(s) {
			sb.WriteByte(c)
			i++
			continue
		}

		switch next := s[i+1]; {
		case next == '%':
			sb.WriteByte('%')
			i += 2

		case next == '{':
			end := matchBrace(s, i+1, '{', '}')
			if end < 0 {
				// unterminated, emit verbatim
				sb.WriteString(s[i:])
				return sb.String(), nil
			}
			out, err := e.expandBraced(s[i+2:end], s[i:end+1], depth)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
			i = end + 1

		case next == '(' || next == '[':
			closing := byte(')')
			if next == '[' {
				closing = ']'
			}
			end := matchBrace(s, i+1, next, closing)
			if end < 0 {
				sb.WriteString(s[i:])
				return sb.String(), nil
			}
			sb.WriteString(s[i : end+1])
			i = end + 1

		case isIdentStart(next):
			j := i + 1
			for j < len(s) && isIdent(s[j]) {
				j++
			}
			name := s[i+1 : j]
			if v, ok := e.macros[name]; ok {
				out, err := e.expand(v, depth+1)
				if err != nil {
					return "", err
				}
				sb.WriteString(out)
				i = j
				continue
			}
			fn, ok := e.lookupBuiltin(name)
			if !ok {
				sb.WriteString(s[i:j])
				i = j
				continue
			}
			// parametric builtins consume the rest of the line
			lineEnd := strings.IndexByte(s[j:], '\n')
			if lineEnd < 0 {
				lineEnd = len(s)
			} else {
				lineEnd += j
			}
			args, err := e.expand(s[j:lineEnd], depth+1)
			if err != nil {
				return "", err
			}
			out, err := e.callBuiltin(fn, name, args, depth)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
			i = lineEnd

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func (e *Expander) expandBraced(body, raw string, depth int) (string, error) {
	switch {
	case strings.HasPrefix(body, "lua:"):
		return raw, nil
	case strings.HasPrefix(body, "defined "), strings.HasPrefix(body, "undefined "):
		fields := strings.Fields(body)
		if len(fields) != 2 {
			return raw, nil
		}
		_, ok := e.macros[fields[1]]
		if fields[0] == "undefined" {
			ok = !ok
		}
		return boolString(ok), nil
	case strings.HasPrefix(body, "with "), strings.HasPrefix(body, "without "):
		fields := strings.Fields(body)
		if len(fields) != 2 {
			return raw, nil
		}
		_, ok := e.macros["with_"+fields[1]]
		if fields[0] == "without" {
			ok = !ok
		}
		return boolString(ok), nil
	}

	negate, conditional := false, false
	for len(body) > 0 && (body[0] == '!' || body[0] == '?') {
		if body[0] == '!' {
			negate = !negate
		} else {
			conditional = true
		}
		body = body[1:]
	}

	name, alt, hasAlt := strings.Cut(body, ":")
	if !isName(name) {
		return raw, nil
	}

	if conditional {
		_, defined := e.macros[name]
		if !defined {
			_, defined = e.builtins[name]
		}
		if negate {
			defined = !defined
		}
		if !defined {
			return "", nil
		}
		if hasAlt {
			return e.expand(alt, depth+1)
		}
		if negate {
			return "", nil
		}
	}

	if v, ok := e.macros[name]; ok {
		return e.expand(v, depth+1)
	}
	if fn, ok := e.lookupBuiltin(name); ok {
		return e.callBuiltin(fn, name, "", depth)
	}
	return raw, nil
}

func (e *Expander) lookupBuiltin(name string) (Builtin, bool) {
	if fn, ok := e.builtins[name]; ok {
		return fn, true
	}
	// %patchN is shorthand for %patch -P N
	if n, ok := strings.CutPrefix(name, "patch"); ok && n != "" && isDigits(n) {
		if fn, ok := e.builtins["patch"]; ok {
			return func(e *Expander, args []string) (string, error) {
				return fn(e, append([]string{"-P", n}, args...))
			}, true
		}
	}
	return nil, false
}

func (e *Expander) callBuiltin(fn Builtin, name, args string, depth int) (string, error) {
	fields, err := SplitArgs(args)
	if err != nil {
		return "", fmt.Errorf("%%%s: %w", name, err)
	}
	out, err := fn(e, fields)
	if err != nil {
		return "", fmt.Errorf("%%%s: %w", name, err)
	}
	return e.expand(out, depth+1)
}

// SplitArgs splits a builtin argument string on whitespace, honoring single
// and double quotes.
func SplitArgs(s string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote byte
		inArg bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inArg = true
		case c == ' ' || c == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteByte(c)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

func matchBrace(s string, open int, o, c byte) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case o:
			depth++
		case c:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func isName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdent(s[i]) {
			return false
		}
	}
	return true
}
