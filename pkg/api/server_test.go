package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/server"
)

const fooSpec = `Name: foo
Version: 1.0
Release: 1
Summary: The foo tool
License: MIT

%description
Foo.

%if 0%{?suse_version}
%files
%{python3_sitelib}/foo
%else
%files
%{_bindir}/foo
%endif
`

const suseOnlySpec = `Name: foo
Version: 1.0
%if 0%{?suse_version}
Summary: suse
%endif
`

func post(t *testing.T, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewServer(Options{Version: "test"}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Code
}

func TestRoutes(t *testing.T) {
	routes := Routes(&Handler{})
	for _, p := range []string{"/v1/parse", "/v1/fmt", "/v1/resolve", "/v1/lint"} {
		assert.NotNil(t, routes[p], p)
	}
}

func TestParseEndpoint(t *testing.T) {
	rec := post(t, "/v1/parse?name=foo.spec", fooSpec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outline recipe.Outline
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outline))
	assert.Equal(t, "foo.spec", outline.Source)
	require.Len(t, outline.Conditionals, 1)
	assert.Equal(t, recipe.FamilyDistro, outline.Conditionals[0].Family)
}

func TestFormatEndpoint(t *testing.T) {
	rec := post(t, "/v1/fmt", "name:foo\nversion = 1.0\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Name: foo\nVersion: 1.0\n", rec.Body.String())
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantGlobs []string
	}{
		{"other distro takes else branch", "distro=other", []string{"%{_bindir}/foo"}},
		{"no context takes else branch", "", []string{"%{_bindir}/foo"}},
		{"suse takes if branch", "distro=suse@1500", []string{"%{python3_sitelib}/foo"}},
		{"suse via define", "define=suse_version%3D1500", []string{"%{python3_sitelib}/foo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, "/v1/resolve?"+tt.query, fooSpec)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var got recipe.Recipe
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "foo", got.Name())
			require.Len(t, got.Packages, 1)
			assert.Equal(t, tt.wantGlobs, got.Packages[0].Globs())
		})
	}
}

func TestResolveEndpointUnresolved(t *testing.T) {
	rec := post(t, "/v1/resolve?distro=fedora", suseOnlySpec)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNRESOLVED_CONDITION", errorCode(t, rec))

	rec = post(t, "/v1/resolve?distro=fedora&implicitDefault=true", suseOnlySpec)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestResolveEndpointImplicitDefaultOption(t *testing.T) {
	h := NewServer(Options{ImplicitDefault: true}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader(suseOnlySpec)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/resolve?implicitDefault=false", strings.NewReader(suseOnlySpec)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLintEndpoint(t *testing.T) {
	rec := post(t, "/v1/lint", suseOnlySpec)
	require.Equal(t, http.StatusOK, rec.Code)

	var rep recipe.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	var codes []string
	for _, issue := range rep.Issues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, recipe.IssueUnresolved)

	rec = post(t, "/v1/lint?failOnError=true", suseOnlySpec)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(t, "/v1/lint?failOnError=true&distros=fedora,suse", fooSpec)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestEndpointErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"parse error", "/v1/parse", "%if 0%{?suse_version}\nSummary: s\n", http.StatusUnprocessableEntity, "PARSE_ERROR"},
		{"empty body", "/v1/parse", "  \n", http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown distro", "/v1/resolve?distro=plan9", fooSpec, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad define", "/v1/resolve?define=novalue", fooSpec, http.StatusBadRequest, "INVALID_REQUEST"},
		{"with and without", "/v1/resolve?with=tests&without=tests", fooSpec, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad implicitDefault", "/v1/resolve?implicitDefault=maybe", fooSpec, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad failOnError", "/v1/lint?failOnError=maybe", fooSpec, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad lint distro", "/v1/lint?distros=plan9", fooSpec, http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, tt.target, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}
}

func TestEndpointRejectsGet(t *testing.T) {
	h := NewServer(Options{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/resolve", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Equal(t, "METHOD_NOT_ALLOWED", errorCode(t, rec))
}

func TestEndpointRejectsLargeBody(t *testing.T) {
	body := "Name: foo\n" + strings.Repeat("# padding\n", 200_000)
	rec := post(t, "/v1/parse", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
