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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/NVIDIA/specrun/pkg/errors"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code apperrors.ErrorCode
		want int
	}{
		{apperrors.ErrCodeInvalidRequest, http.StatusBadRequest},
		{apperrors.ErrCodeParse, http.StatusUnprocessableEntity},
		{apperrors.ErrCodeUnresolvedCondition, http.StatusUnprocessableEntity},
		{apperrors.ErrCodeAmbiguousCondition, http.StatusUnprocessableEntity},
		{apperrors.ErrCodeNotFound, http.StatusNotFound},
		{apperrors.ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{apperrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{apperrors.ErrCodeUnavailable, http.StatusServiceUnavailable},
		{apperrors.ErrCodeTimeout, http.StatusGatewayTimeout},
		{apperrors.ErrCodeStageExecution, http.StatusInternalServerError},
		{apperrors.ErrCodeInternal, http.StatusInternalServerError},
		{apperrors.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := HTTPStatusFromCode(tt.code); got != tt.want {
				t.Fatalf("HTTPStatusFromCode(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestRetryableFromCode(t *testing.T) {
	tests := []struct {
		code apperrors.ErrorCode
		want bool
	}{
		{apperrors.ErrCodeInvalidRequest, false},
		{apperrors.ErrCodeParse, false},
		{apperrors.ErrCodeUnresolvedCondition, false},
		{apperrors.ErrCodeNotFound, false},
		{apperrors.ErrCodeTimeout, true},
		{apperrors.ErrCodeUnavailable, true},
		{apperrors.ErrCodeRateLimitExceeded, true},
		{apperrors.ErrCodeInternal, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := retryableFromCode(tt.code); got != tt.want {
				t.Fatalf("retryableFromCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestMergeDetails(t *testing.T) {
	if got := mergeDetails(nil, map[string]any{}); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}

	a := map[string]any{"a": 1, "shared": "old"}
	got := mergeDetails(a, map[string]any{"shared": "new"})
	if got["a"] != 1 || got["shared"] != "new" {
		t.Fatalf("unexpected merge result %#v", got)
	}
	if a["shared"] != "old" {
		t.Fatal("expected inputs to be left untouched")
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return resp
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/parse", nil)
	req = req.WithContext(context.WithValue(req.Context(), contextKeyRequestID, "req-123"))
	w := httptest.NewRecorder()

	WriteError(w, req, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, "bad request", false, map[string]any{"k": "v"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	resp := decodeError(t, w)
	if resp.Code != "INVALID_REQUEST" || resp.Message != "bad request" || resp.RequestID != "req-123" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Details["k"] != "v" {
		t.Fatalf("expected details k=v, got %#v", resp.Details)
	}
}

func TestWriteErrorFromErr(t *testing.T) {
	t.Run("structured error keeps code and context", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := apperrors.WrapWithContext(apperrors.ErrCodeUnresolvedCondition, "no branch matched",
			errors.New("distro=other"), map[string]any{"line": float64(12)})

		WriteErrorFromErr(w, httptest.NewRequest(http.MethodPost, "/", nil), err, "fallback", map[string]any{"source": "foo.spec"})

		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
		}
		resp := decodeError(t, w)
		if resp.Code != "UNRESOLVED_CONDITION" || resp.Message != "no branch matched" || resp.Retryable {
			t.Fatalf("unexpected response %+v", resp)
		}
		if resp.Details["line"] != float64(12) || resp.Details["source"] != "foo.spec" || resp.Details["error"] != "distro=other" {
			t.Fatalf("unexpected details %#v", resp.Details)
		}
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		w := httptest.NewRecorder()

		WriteErrorFromErr(w, httptest.NewRequest(http.MethodPost, "/", nil), errors.New("boom"), "fallback", nil)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		resp := decodeError(t, w)
		if resp.Code != "INTERNAL" || resp.Message != "fallback" || !resp.Retryable {
			t.Fatalf("unexpected response %+v", resp)
		}
		if resp.Details["error"] != "boom" {
			t.Fatalf("expected error=boom, got %#v", resp.Details)
		}
	})
}
