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
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
)

func defaultBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"setup":        setupMacro,
		"autosetup":    autosetupMacro,
		"patch":        patchMacro,
		"autopatch":    autopatchMacro,
		"py3_build":    fixed("%{python3} setup.py build --executable=\"%{python3} -s\""),
		"py3_install":  fixed("%{python3} setup.py install --skip-build --root %{buildroot} --prefix %{_prefix}"),
		"pytest":       withArgs("%{python3} -m pytest"),
		"fdupes":       fdupesMacro,
		"cargo_build":  withArgs("cargo build --release --locked"),
		"make_build":   withArgs("make %{?_smp_mflags}"),
		"make_install": withArgs("make install DESTDIR=%{buildroot}"),
		"configure":    withArgs("./configure --prefix=%{_prefix} --bindir=%{_bindir} --libdir=%{_libdir} --datadir=%{_datadir}"),
	}
}

// fixed ignores arguments.
func fixed(body string) Builtin {
	return func(_ *Expander, _ []string) (string, error) {
		return body, nil
	}
}

// withArgs appends the call arguments to body.
func withArgs(body string) Builtin {
	return func(_ *Expander, args []string) (string, error) {
		if len(args) == 0 {
			return body, nil
		}
		return body + " " + shellJoin(args), nil
	}
}

type setupOpts struct {
	create   bool
	noUnpack bool
	noDelete bool
	dir      string
	before   []string
	after    []string
	strip    string
}

func parseSetupArgs(e *Expander, args []string, autosetup bool) (*setupOpts, error) {
	o := &setupOpts{strip: "1"}
	for i := 0; i < len(args); i++ {
		a := args[i]
		needValue := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("option %s requires a value", a)
			}
			i++
			return args[i], nil
		}
		var err error
		switch {
		case a == "-q":
		case a == "-c":
			o.create = true
		case a == "-T":
			o.noUnpack = true
		case a == "-D":
			o.noDelete = true
		case a == "-n":
			o.dir, err = needValue()
		case a == "-a":
			var v string
			v, err = needValue()
			o.after = append(o.after, v)
		case a == "-b":
			var v string
			v, err = needValue()
			o.before = append(o.before, v)
		case autosetup && strings.HasPrefix(a, "-p"):
			o.strip = strings.TrimPrefix(a, "-p")
			if o.strip == "" {
				o.strip, err = needValue()
			}
		case autosetup && (a == "-N" || a == "-v" || a == "-S"):
			if a == "-S" {
				_, err = needValue()
			}
		default:
			return nil, fmt.Errorf("unsupported option %q", a)
		}
		if err != nil {
			return nil, err
		}
	}
	if o.dir == "" {
		o.dir = "%{name}-%{version}"
	}
	if _, err := strconv.Atoi(o.strip); err != nil {
		return nil, fmt.Errorf("invalid strip level %q", o.strip)
	}
	e.Define("buildsubdir", o.dir)
	return o, nil
}

func unpackCommand(e *Expander, n string) (string, error) {
	src, ok := e.Lookup("SOURCE" + n)
	if !ok {
		return "", fmt.Errorf("source %s is not defined", n)
	}
	src, err := e.Expand(src)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(src, ".zip") {
		return fmt.Sprintf("unzip -qo %s", shellQuote(src)), nil
	}
	return fmt.Sprintf("tar -xof %s", shellQuote(src)), nil
}

func setupMacro(e *Expander, args []string) (string, error) {
	o, err := parseSetupArgs(e, args, false)
	if err != nil {
		return "", err
	}
	return o.script(e)
}

func (o *setupOpts) script(e *Expander) (string, error) {
	var lines []string
	lines = append(lines, "cd '%{_builddir}'")
	if !o.noDelete {
		lines = append(lines, fmt.Sprintf("rm -rf '%s'", o.dir))
	}
	for _, n := range o.before {
		cmd, err := unpackCommand(e, n)
		if err != nil {
			return "", err
		}
		lines = append(lines, cmd)
	}
	if o.create {
		lines = append(lines, fmt.Sprintf("mkdir -p '%s'", o.dir), fmt.Sprintf("cd '%s'", o.dir))
	}
	if !o.noUnpack {
		cmd, err := unpackCommand(e, "0")
		if err != nil {
			return "", err
		}
		lines = append(lines, cmd)
	}
	if !o.create {
		lines = append(lines, fmt.Sprintf("cd '%s'", o.dir))
	}
	for _, n := range o.after {
		cmd, err := unpackCommand(e, n)
		if err != nil {
			return "", err
		}
		lines = append(lines, cmd)
	}
	lines = append(lines, "chmod -Rf a+rX,u+w,g-w,o-w .")
	return strings.Join(lines, "\n"), nil
}

func autosetupMacro(e *Expander, args []string) (string, error) {
	o, err := parseSetupArgs(e, args, true)
	if err != nil {
		return "", err
	}
	setup, err := o.script(e)
	if err != nil {
		return "", err
	}
	if slices.Contains(args, "-N") {
		return setup, nil
	}
	patches, err := autopatchMacro(e, []string{"-p" + o.strip})
	if err != nil {
		return "", err
	}
	if patches == "" {
		return setup, nil
	}
	return setup + "\n" + patches, nil
}

func patchMacro(e *Expander, args []string) (string, error) {
	strip := "0"
	var nums []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-P":
			if i+1 >= len(args) {
				return "", fmt.Errorf("option -P requires a value")
			}
			i++
			nums = append(nums, args[i])
		case strings.HasPrefix(a, "-P"):
			nums = append(nums, strings.TrimPrefix(a, "-P"))
		case a == "-p":
			if i+1 >= len(args) {
				return "", fmt.Errorf("option -p requires a value")
			}
			i++
			strip = args[i]
		case strings.HasPrefix(a, "-p"):
			strip = strings.TrimPrefix(a, "-p")
		case a == "-s" || a == "-E":
		case !strings.HasPrefix(a, "-"):
			nums = append(nums, a)
		default:
			return "", fmt.Errorf("unsupported option %q", a)
		}
	}
	if len(nums) == 0 {
		nums = []string{"0"}
	}
	var lines []string
	for _, n := range nums {
		p, ok := e.Lookup("PATCH" + n)
		if !ok {
			return "", fmt.Errorf("patch %s is not defined", n)
		}
		p, err := e.Expand(p)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("patch -s -p%s --fuzz=0 --no-backup-if-mismatch -i %s", strip, shellQuote(p)))
	}
	return strings.Join(lines, "\n"), nil
}

func autopatchMacro(e *Expander, args []string) (string, error) {
	strip := "1"
	for _, a := range args {
		if s, ok := strings.CutPrefix(a, "-p"); ok && s != "" {
			strip = s
		}
	}
	var lines []string
	for _, n := range patchNumbers(e) {
		out, err := patchMacro(e, []string{"-P", n, "-p", strip})
		if err != nil {
			return "", err
		}
		lines = append(lines, out)
	}
	return strings.Join(lines, "\n"), nil
}

// patchNumbers returns the defined PATCH<n> indexes in numeric order.
func patchNumbers(e *Expander) []string {
	type idx struct {
		s string
		n int
	}
	var out []idx
	for _, name := range e.Names("PATCH") {
		s := strings.TrimPrefix(name, "PATCH")
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, idx{s, n})
	}
	slices.SortFunc(out, func(a, b idx) int { return a.n - b.n })
	nums := make([]string, len(out))
	for i, x := range out {
		nums[i] = x.s
	}
	return nums
}

// fdupesMacro hard-links identical files below each argument directory.
func fdupesMacro(_ *Expander, args []string) (string, error) {
	var dirs []string
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			dirs = append(dirs, a)
		}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no directory given")
	}
	return fmt.Sprintf("if command -v fdupes >/dev/null 2>&1; then fdupes -q -n -r -H %s; fi", shellJoin(dirs)), nil
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shellQuote single-quotes s when it holds shell metacharacters.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r == '=' || r == ':' || r == '+' || r == '%' || r == '{' || r == '}' || r == '?' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SourceBase returns the file name of a Source or Patch URL.
func SourceBase(u string) string {
	if i := strings.Index(u, "#/"); i >= 0 {
		return u[i+2:]
	}
	return path.Base(u)
}
