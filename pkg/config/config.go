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

package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/serializer"
)

// Config mirrors the flags of the specrun commands.
type Config struct {
	WorkDir         string            `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	SourceDir       string            `json:"sourcedir,omitempty" yaml:"sourcedir,omitempty"`
	Shell           string            `json:"shell,omitempty" yaml:"shell,omitempty"`
	Distro          string            `json:"distro,omitempty" yaml:"distro,omitempty"`
	DistroVersion   string            `json:"distroVersion,omitempty" yaml:"distroVersion,omitempty"`
	Arch            string            `json:"arch,omitempty" yaml:"arch,omitempty"`
	With            []string          `json:"with,omitempty" yaml:"with,omitempty"`
	Without         []string          `json:"without,omitempty" yaml:"without,omitempty"`
	Defines         map[string]string `json:"defines,omitempty" yaml:"defines,omitempty"`
	ImplicitDefault bool              `json:"implicitDefault,omitempty" yaml:"implicitDefault,omitempty"`
	Format          string            `json:"format,omitempty" yaml:"format,omitempty"`
	Publish         Publish           `json:"publish,omitempty" yaml:"publish,omitempty"`
}

// Publish holds OCI registry settings.
type Publish struct {
	Registry              string `json:"registry,omitempty" yaml:"registry,omitempty"`
	Repository            string `json:"repository,omitempty" yaml:"repository,omitempty"`
	PlainHTTP             bool   `json:"plainHTTP,omitempty" yaml:"plainHTTP,omitempty"`
	InsecureSkipTLSVerify bool   `json:"insecureSkipTLSVerify,omitempty" yaml:"insecureSkipTLSVerify,omitempty"`
}

// Load reads and validates a config file. An empty path yields an empty
// config.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return &Config{}, nil
	}
	cfg, err := serializer.FromFile[Config](path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, fmt.Sprintf("failed to load config %s", path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flags would otherwise reject.
func (c *Config) Validate() error {
	if _, err := recipe.ParseDistroProfile(c.Distro); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid config", err)
	}
	if c.Format != "" && serializer.Format(c.Format).IsUnknown() {
		return errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid config: unknown format %q, expected one of %v", c.Format, serializer.SupportedFormats()))
	}
	for _, name := range c.With {
		if slices.Contains(c.Without, name) {
			return errors.New(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("invalid config: feature %q is both enabled and disabled", name))
		}
	}
	return nil
}

// ContextOptions converts the context settings to recipe options.
func (c *Config) ContextOptions() ([]recipe.ContextOption, error) {
	var opts []recipe.ContextOption
	if c.Distro != "" {
		d, err := recipe.ParseDistroProfile(c.Distro)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid distro", err)
		}
		opts = append(opts, recipe.WithDistro(d, c.DistroVersion))
	}
	if c.Arch != "" {
		opts = append(opts, recipe.WithArch(c.Arch))
	}
	for _, name := range c.With {
		opts = append(opts, recipe.WithFeature(name, true))
	}
	for _, name := range c.Without {
		opts = append(opts, recipe.WithFeature(name, false))
	}
	keys := make([]string, 0, len(c.Defines))
	for k := range c.Defines {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		opts = append(opts, recipe.WithDefine(k, c.Defines[k]))
	}
	return opts, nil
}
