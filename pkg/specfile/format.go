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
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/NVIDIA/specrun/pkg/recipe"
)

// Format writes doc as recipe text. Tags are written with canonical keys
// and preamble comments are lost; everything else is reproduced as parsed,
// so parsing the output yields an equivalent document.
func Format(w io.Writer, doc *recipe.Document) error {
	bw := bufio.NewWriter(w)
	f := &formatter{w: bw, lastBlank: true}
	if doc != nil {
		f.fragment(doc.Root)
	}
	if f.err != nil {
		return f.err
	}
	return bw.Flush()
}

// FormatString renders doc as a string.
func FormatString(doc *recipe.Document) string {
	var buf bytes.Buffer
	_ = Format(&buf, doc) // bytes.Buffer never fails
	return buf.String()
}

type formatter struct {
	w         *bufio.Writer
	err       error
	lastBlank bool
}

func (f *formatter) println(s string) {
	if f.err != nil {
		return
	}
	_, f.err = fmt.Fprintln(f.w, s)
	f.lastBlank = strings.TrimSpace(s) == ""
}

func (f *formatter) fragment(frag *recipe.Fragment) {
	if frag == nil {
		return
	}
	for _, e := range frag.Entries {
		f.entry(e)
	}
}

func (f *formatter) entry(e recipe.Entry) {
	switch v := e.(type) {
	case *recipe.TagEntry:
		f.println(recipe.CanonicalTag(v.Key) + ": " + v.Value)
	case *recipe.MacroEntry:
		if v.Kind == "undefine" {
			f.println("%undefine " + v.Name)
			return
		}
		f.println(strings.TrimSpace(fmt.Sprintf("%%%s %s %s", v.Kind, v.Name, v.Value)))
	case *recipe.BcondEntry:
		if v.Default {
			f.println("%bcond_without " + v.Name)
		} else {
			f.println("%bcond_with " + v.Name)
		}
	case *recipe.SectionEntry:
		if !f.lastBlank {
			f.println("")
		}
		f.println(headerLine(v))
	case *recipe.TextEntry:
		f.println(v.Text)
	case *recipe.FileEntry:
		toks := make([]string, 0, len(v.Directives)+len(v.Paths))
		for _, d := range v.Directives {
			toks = append(toks, "%"+d)
		}
		for _, p := range v.Paths {
			if strings.ContainsAny(p, " \t") {
				p = `"` + p + `"`
			}
			toks = append(toks, p)
		}
		f.println(strings.Join(toks, " "))
	case *recipe.DirectiveEntry:
		f.println(v.Text)
	case *recipe.Conditional:
		f.conditional(v)
	}
}

func (f *formatter) conditional(c *recipe.Conditional) {
	for _, b := range c.Branches {
		f.println("%" + b.Keyword + " " + b.Guard.Text)
		f.lastBlank = true
		f.fragment(b.Body)
	}
	if c.Else != nil {
		if c.Merged() {
			f.println("%endif")
			f.println("%" + c.Else.Keyword + " " + c.Else.Guard.Text)
		} else {
			f.println("%else")
		}
		f.lastBlank = true
		f.fragment(c.Else.Body)
	}
	f.println("%endif")
}

func headerLine(e *recipe.SectionEntry) string {
	parts := []string{"%" + string(e.Section)}
	if a := e.Package.Args(); a != "" {
		parts = append(parts, a)
	}
	if e.FileList != "" {
		parts = append(parts, "-f", e.FileList)
	}
	parts = append(parts, e.Options...)
	return strings.Join(parts, " ")
}
