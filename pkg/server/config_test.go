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
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := parseConfig()

		if cfg.Name != "server" {
			t.Errorf("expected name server, got %s", cfg.Name)
		}
		if cfg.Port != 8080 {
			t.Errorf("expected port 8080, got %d", cfg.Port)
		}
		if cfg.RateLimit != 100 || cfg.RateLimitBurst != 200 {
			t.Errorf("expected rate limit 100/200, got %v/%d", cfg.RateLimit, cfg.RateLimitBurst)
		}
		if cfg.MaxBodyBytes != 1<<20 {
			t.Errorf("expected 1MiB body limit, got %d", cfg.MaxBodyBytes)
		}
		if cfg.ShutdownTimeout != 30*time.Second {
			t.Errorf("expected shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
		}
	})

	tests := []struct {
		name         string
		port         string
		shutdown     string
		wantPort     int
		wantShutdown time.Duration
	}{
		{"port from env", "9090", "", 9090, 30 * time.Second},
		{"invalid port ignored", "invalid", "", 8080, 30 * time.Second},
		{"negative port ignored", "-1", "", 8080, 30 * time.Second},
		{"shutdown from env", "", "5", 8080, 5 * time.Second},
		{"zero shutdown ignored", "", "0", 8080, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORT", tt.port)
			t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", tt.shutdown)

			cfg := parseConfig()
			if cfg.Port != tt.wantPort {
				t.Errorf("expected port %d, got %d", tt.wantPort, cfg.Port)
			}
			if cfg.ShutdownTimeout != tt.wantShutdown {
				t.Errorf("expected shutdown %v, got %v", tt.wantShutdown, cfg.ShutdownTimeout)
			}
		})
	}
}
