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

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotFound, "resource not found")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "resource not found" {
		t.Errorf("expected message 'resource not found', got %s", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrapWithContext(t *testing.T) {
	cause := errors.New("exit status 2")
	ctx := map[string]any{
		"stage":    "build",
		"exitCode": 2,
	}

	err := WrapWithContext(ErrCodeStageExecution, "stage failed", cause, ctx)

	if err.Code != ErrCodeStageExecution {
		t.Errorf("expected code %s, got %s", ErrCodeStageExecution, err.Code)
	}
	if err.Context["stage"] != "build" {
		t.Errorf("expected stage to be build")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StructuredError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(ErrCodeParse, "line 3: unterminated %if"),
			expected: "[PARSE_ERROR] line 3: unterminated %if",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeInternal, "failed", errors.New("root cause")),
			expected: "[INTERNAL] failed: root cause",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeUnresolvedCondition, "no branch matched")
	outer := Wrap(ErrCodeInternal, "resolve", inner)
	wrapped := fmt.Errorf("cli: %w", outer)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"nil error", nil, ErrCodeParse, false},
		{"plain error", errors.New("x"), ErrCodeParse, false},
		{"direct match", inner, ErrCodeUnresolvedCondition, true},
		{"nested match", wrapped, ErrCodeUnresolvedCondition, true},
		{"outer match", wrapped, ErrCodeInternal, true},
		{"no match", wrapped, ErrCodeStageExecution, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("expected empty code, got %s", got)
	}
	err := fmt.Errorf("wrapped: %w", New(ErrCodeAmbiguousCondition, "two branches"))
	if got := CodeOf(err); got != ErrCodeAmbiguousCondition {
		t.Errorf("expected %s, got %s", ErrCodeAmbiguousCondition, got)
	}
}
