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

// Package runner executes the lifecycle stages of a resolved recipe.
//
// Stages run strictly in order: prepare, build, install, check and package.
// Each script stage is macro-expanded, prefixed with a fixed preamble and run
// as a single shell invocation in trace mode. The first stage that exits
// non-zero halts the pipeline and is reported as a StageError wrapped in a
// STAGE_EXECUTION structured error; later stages never run.
//
// The package stage is built in: it records the build root contents in a
// manifest (see pkg/manifest) instead of running a script.
//
// Usage:
//
//	r, err := runner.New(runner.Options{WorkDir: ".specrun", SourceDir: "."})
//	if err != nil {
//	    return err
//	}
//	res, err := r.Run(ctx, rec)
//	var se *runner.StageError
//	if errors.As(err, &se) {
//	    os.Exit(se.ExitCode)
//	}
//
// Executors are pluggable; tests substitute a fake for ShellExecutor.
package runner
