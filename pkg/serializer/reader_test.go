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

package serializer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"manifest.yaml", FormatYAML},
		{"config.YML", FormatYAML},
		{"report.json", FormatJSON},
		{"out.txt", FormatTable},
		{"foo.spec", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFromPath(tt.path))
		})
	}
}

func TestNewReaderRejectsTable(t *testing.T) {
	_, err := NewReader(FormatTable, strings.NewReader(""))
	assert.Error(t, err)

	_, err = NewReader(Format("ini"), strings.NewReader(""))
	assert.Error(t, err)
}

func TestReaderDeserialize(t *testing.T) {
	r, err := NewReader(FormatJSON, strings.NewReader(`{"name":"foo","version":"2.0"}`))
	require.NoError(t, err)
	var got testPackage
	require.NoError(t, r.Deserialize(&got))
	assert.Equal(t, "2.0", got.Version)
	assert.NoError(t, r.Close())

	r, err = NewReader(FormatYAML, strings.NewReader("name: [unterminated"))
	require.NoError(t, err)
	assert.Error(t, r.Deserialize(&got))

	var nilReader *Reader
	assert.Error(t, nilReader.Deserialize(&got))
	assert.NoError(t, nilReader.Close())
}

func TestFromFileErrors(t *testing.T) {
	_, err := FromFile[testPackage](filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = FromFile[testPackage](path)
	assert.Error(t, err)
}

func TestFromFileURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "name: remote\nversion: \"3\"\n")
	}))
	defer srv.Close()

	got, err := FromFile[testPackage](srv.URL + "/pkg.yaml")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Name)
}

func TestReadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.spec")
	require.NoError(t, os.WriteFile(path, []byte("Name: foo\n"), 0o600))

	data, err := ReadSource(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Name: foo\n", string(data))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Name: bar\n")
	}))
	defer srv.Close()

	data, err = ReadSource(context.Background(), srv.URL+"/bar.spec")
	require.NoError(t, err)
	assert.Equal(t, "Name: bar\n", string(data))

	_, err = ReadSource(context.Background(), filepath.Join(t.TempDir(), "missing.spec"))
	assert.Error(t, err)
}
