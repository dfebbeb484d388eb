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

// Package serializer reads and writes the structured documents specrun
// produces and consumes: resolved recipes, lint reports, manifests and
// configuration.
//
// Three output formats are supported:
//   - JSON: indented, machine-readable
//   - YAML: the format of manifest.yaml and config files
//   - Table: flattened FIELD/VALUE rows for terminals
//
// Usage:
//
//	w := serializer.NewFileWriterOrStdout(serializer.FormatYAML, path)
//	defer w.Close()
//	if err := w.Serialize(ctx, rec); err != nil {
//		return err
//	}
//
// Input comes from local files, http(s) URLs, or "-" for stdin:
//
//	data, err := serializer.ReadSource(ctx, "https://example.com/foo.spec")
//	cfg, err := serializer.FromFile[config.File]("specrun.yaml")
//
// For HTTP responses:
//
//	serializer.RespondJSON(w, http.StatusOK, data)
package serializer
