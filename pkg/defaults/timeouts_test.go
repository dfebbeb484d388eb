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

package defaults

import (
	"testing"
	"time"
)

func TestTimeoutConstants(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		minValue time.Duration
		maxValue time.Duration
	}{
		// Stage limits
		{"StageTimeout", StageTimeout, 10 * time.Minute, 24 * time.Hour},
		{"StageKillGrace", StageKillGrace, time.Second, 30 * time.Second},

		// Handler timeouts
		{"ResolveHandlerTimeout", ResolveHandlerTimeout, 5 * time.Second, 60 * time.Second},

		// Server timeouts
		{"ServerReadTimeout", ServerReadTimeout, 5 * time.Second, 30 * time.Second},
		{"ServerReadHeaderTimeout", ServerReadHeaderTimeout, 1 * time.Second, 10 * time.Second},
		{"ServerWriteTimeout", ServerWriteTimeout, 10 * time.Second, 60 * time.Second},
		{"ServerIdleTimeout", ServerIdleTimeout, 60 * time.Second, 300 * time.Second},
		{"ServerShutdownTimeout", ServerShutdownTimeout, 10 * time.Second, 60 * time.Second},

		// HTTP client timeouts
		{"HTTPClientTimeout", HTTPClientTimeout, 10 * time.Second, 120 * time.Second},
		{"HTTPConnectTimeout", HTTPConnectTimeout, 1 * time.Second, 30 * time.Second},
		{"HTTPTLSHandshakeTimeout", HTTPTLSHandshakeTimeout, 1 * time.Second, 30 * time.Second},
		{"HTTPResponseHeaderTimeout", HTTPResponseHeaderTimeout, 5 * time.Second, 60 * time.Second},
		{"HTTPIdleConnTimeout", HTTPIdleConnTimeout, 30 * time.Second, 300 * time.Second},
		{"HTTPKeepAlive", HTTPKeepAlive, 10 * time.Second, 120 * time.Second},

		// Publish
		{"PublishTimeout", PublishTimeout, time.Minute, time.Hour},
		{"PublishInitialBackoff", PublishInitialBackoff, 100 * time.Millisecond, 5 * time.Second},
		{"PublishMaxBackoff", PublishMaxBackoff, time.Second, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.timeout < tt.minValue {
				t.Errorf("%s = %v, want >= %v", tt.name, tt.timeout, tt.minValue)
			}
			if tt.timeout > tt.maxValue {
				t.Errorf("%s = %v, want <= %v", tt.name, tt.timeout, tt.maxValue)
			}
		})
	}
}

func TestTimeoutRelationships(t *testing.T) {
	if ServerReadHeaderTimeout >= ServerReadTimeout {
		t.Errorf("ServerReadHeaderTimeout (%v) should be less than ServerReadTimeout (%v)",
			ServerReadHeaderTimeout, ServerReadTimeout)
	}
	if ResolveHandlerTimeout >= ServerWriteTimeout {
		t.Errorf("ResolveHandlerTimeout (%v) should be less than ServerWriteTimeout (%v)",
			ResolveHandlerTimeout, ServerWriteTimeout)
	}
	if PublishInitialBackoff >= PublishMaxBackoff {
		t.Errorf("PublishInitialBackoff (%v) should be less than PublishMaxBackoff (%v)",
			PublishInitialBackoff, PublishMaxBackoff)
	}
}

func TestLimits(t *testing.T) {
	if ManifestHashWorkers < 1 {
		t.Errorf("ManifestHashWorkers = %d, want >= 1", ManifestHashWorkers)
	}
	if PublishMaxRetries < 1 {
		t.Errorf("PublishMaxRetries = %d, want >= 1", PublishMaxRetries)
	}
	if StageStderrTailBytes < 512 {
		t.Errorf("StageStderrTailBytes = %d, want >= 512", StageStderrTailBytes)
	}
}
