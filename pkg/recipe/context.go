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
	"maps"
	"slices"
	"strings"
)

// Family names the dimension a guard selects on.
type Family string

// Well-known families.
const (
	FamilyDistro Family = "distro"
	FamilyArch   Family = "arch"
	FamilyOS     Family = "os"
	FamilyConst  Family = "const"
)

const (
	withPrefix  = "with_"
	macroPrefix = "macro_"

	// ProfileOn is the active profile of a with_X family.
	ProfileOn = "on"

	// ProfileDefined is the active profile of a macro_X family.
	ProfileDefined = "defined"

	profileTrue = "true"
)

// FeatureFamily returns the family selected by %{with name}.
func FeatureFamily(name string) Family {
	return Family(withPrefix + name)
}

// MacroFamily returns the family selected by 0%{?name} for a macro that is
// not a distro macro.
func MacroFamily(name string) Family {
	return Family(macroPrefix + name)
}

// Feature returns the bcond name of a with_X family.
func (f Family) Feature() (string, bool) {
	return strings.CutPrefix(string(f), withPrefix)
}

// Macro returns the macro name of a macro_X family.
func (f Family) Macro() (string, bool) {
	return strings.CutPrefix(string(f), macroPrefix)
}

// DistroProfile identifies a distribution family.
type DistroProfile string

// DistroProfile constants for supported distributions.
const (
	DistroAny        DistroProfile = ""
	DistroSUSE       DistroProfile = "suse"
	DistroFedora     DistroProfile = "fedora"
	DistroRHEL       DistroProfile = "rhel"
	DistroCentOS     DistroProfile = "centos"
	DistroMageia     DistroProfile = "mageia"
	DistroAzureLinux DistroProfile = "azurelinux"
)

// ParseDistroProfile parses a distro name, accepting common aliases.
func ParseDistroProfile(s string) (DistroProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "none", "other":
		return DistroAny, nil
	case "suse", "opensuse", "sles", "sle":
		return DistroSUSE, nil
	case "fedora":
		return DistroFedora, nil
	case "rhel", "redhat":
		return DistroRHEL, nil
	case "centos":
		return DistroCentOS, nil
	case "mageia":
		return DistroMageia, nil
	case "azurelinux", "azl", "mariner", "cbl-mariner":
		return DistroAzureLinux, nil
	default:
		return DistroAny, fmt.Errorf("invalid distro: %s", s)
	}
}

// GetDistroProfiles returns all supported distro profiles sorted alphabetically.
func GetDistroProfiles() []string {
	return []string{"azurelinux", "centos", "fedora", "mageia", "rhel", "suse"}
}

// distroMacros maps the macros recipes test to identify a distribution.
var distroMacros = map[string]DistroProfile{
	"suse_version":   DistroSUSE,
	"sle_version":    DistroSUSE,
	"is_opensuse":    DistroSUSE,
	"fedora":         DistroFedora,
	"rhel":           DistroRHEL,
	"centos":         DistroCentOS,
	"centos_version": DistroCentOS,
	"mageia":         DistroMageia,
	"mariner":        DistroAzureLinux,
	"azl":            DistroAzureLinux,
}

// DistroForMacro returns the distro a macro such as suse_version identifies.
func DistroForMacro(name string) (DistroProfile, bool) {
	d, ok := distroMacros[name]
	return d, ok
}

// VersionMacro returns the macro that carries the version of a distro, as
// set by its build system.
func VersionMacro(d DistroProfile) string {
	switch d {
	case DistroSUSE:
		return "suse_version"
	case DistroCentOS:
		return "centos_version"
	case DistroAzureLinux:
		return "azl"
	default:
		return string(d)
	}
}

// Selection is the value a context assigns to one family.
type Selection struct {
	Profile string `json:"profile" yaml:"profile"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Context is the build environment conditionals are resolved against.
// A family missing from Selections has the empty profile.
type Context struct {
	Selections map[Family]Selection `json:"selections" yaml:"selections"`
	Defines    map[string]string    `json:"defines,omitempty" yaml:"defines,omitempty"`

	// explicit records families set by the caller; %bcond defaults never
	// override them.
	explicit map[Family]bool
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// NewContext builds a context from options.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		Selections: map[Family]Selection{},
		Defines:    map[string]string{},
		explicit:   map[Family]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithDistro selects a distro profile and version.
func WithDistro(profile DistroProfile, version string) ContextOption {
	return func(c *Context) {
		c.Set(FamilyDistro, Selection{Profile: string(profile), Version: version})
	}
}

// WithArch selects the target architecture.
func WithArch(arch string) ContextOption {
	return func(c *Context) {
		c.Set(FamilyArch, Selection{Profile: arch})
	}
}

// WithOS selects the target operating system for %ifos guards.
func WithOS(os string) ContextOption {
	return func(c *Context) {
		c.Set(FamilyOS, Selection{Profile: os})
	}
}

// WithFeature turns a bcond on or off, overriding the recipe default.
func WithFeature(name string, on bool) ContextOption {
	return func(c *Context) {
		sel := Selection{}
		if on {
			sel.Profile = ProfileOn
		}
		c.Set(FeatureFamily(name), sel)
	}
}

// WithDefine defines a macro. Distro macros also select the distro when no
// distro was chosen, so --define suse_version=1500 behaves as on SUSE.
func WithDefine(name, value string) ContextOption {
	return func(c *Context) {
		c.Defines[name] = value
		if d, ok := DistroForMacro(name); ok {
			if cur := c.Selection(FamilyDistro); cur.Profile == "" {
				c.Set(FamilyDistro, Selection{Profile: string(d), Version: value})
			}
			return
		}
		c.Set(MacroFamily(name), Selection{Profile: ProfileDefined, Version: value})
	}
}

// Set assigns a selection and marks it explicit.
func (c *Context) Set(f Family, sel Selection) {
	if c.Selections == nil {
		c.Selections = map[Family]Selection{}
	}
	if c.explicit == nil {
		c.explicit = map[Family]bool{}
	}
	c.Selections[f] = sel
	c.explicit[f] = true
}

// Selection returns the selection of family f; missing families have the
// empty profile.
func (c *Context) Selection(f Family) Selection {
	if c == nil {
		return Selection{}
	}
	return c.Selections[f]
}

// setDefault assigns sel unless the caller set f explicitly.
func (c *Context) setDefault(f Family, sel Selection) {
	if c.explicit[f] {
		return
	}
	c.Selections[f] = sel
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	if c == nil {
		return NewContext()
	}
	out := &Context{
		Selections: maps.Clone(c.Selections),
		Defines:    maps.Clone(c.Defines),
		explicit:   maps.Clone(c.explicit),
	}
	if out.Selections == nil {
		out.Selections = map[Family]Selection{}
	}
	if out.Defines == nil {
		out.Defines = map[string]string{}
	}
	if out.explicit == nil {
		out.explicit = map[Family]bool{}
		for f := range out.Selections {
			out.explicit[f] = true
		}
	}
	return out
}

// Families returns the families set in the context, sorted.
func (c *Context) Families() []Family {
	fs := slices.Collect(maps.Keys(c.Selections))
	slices.Sort(fs)
	return fs
}

// String renders the context as "family=profile[@version]" pairs.
func (c *Context) String() string {
	var parts []string
	for _, f := range c.Families() {
		sel := c.Selections[f]
		s := fmt.Sprintf("%s=%s", f, sel.Profile)
		if sel.Version != "" {
			s += "@" + sel.Version
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}
