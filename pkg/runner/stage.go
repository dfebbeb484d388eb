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

package runner

import (
	"fmt"
	"strings"

	"github.com/NVIDIA/specrun/pkg/recipe"
)

// Stage is one step of the build lifecycle.
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageBuild   Stage = "build"
	StageInstall Stage = "install"
	StageCheck   Stage = "check"
	StagePackage Stage = "package"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StagePrepare, StageBuild, StageInstall, StageCheck, StagePackage}
}

// Section returns the recipe section holding the stage script. The package
// stage has none.
func (s Stage) Section() recipe.Section {
	switch s {
	case StagePrepare:
		return recipe.SectionPrep
	case StageBuild:
		return recipe.SectionBuild
	case StageInstall:
		return recipe.SectionInstall
	case StageCheck:
		return recipe.SectionCheck
	default:
		return ""
	}
}

// ParseStage accepts a stage name or its section name ("prep").
func ParseStage(s string) (Stage, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == string(recipe.SectionPrep) {
		return StagePrepare, nil
	}
	for _, st := range Stages() {
		if string(st) == name {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q, expected one of %v", s, Stages())
}
