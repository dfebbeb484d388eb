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

// Package server provides the HTTP server the specrun API runs on.
//
// The server is generic: callers mount API handlers by route pattern and
// the server adds probes, metrics and a middleware chain around them. The
// recipe endpoints themselves live in package api.
//
// # Middleware
//
// Every API handler runs behind, outermost first:
//
//   - Prometheus request metrics (specrun_http_*), labelled by route pattern
//   - API version negotiation (Accept: application/vnd.nvidia.specrun.v1+json)
//   - Request IDs (X-Request-Id, generated when missing or not a UUID)
//   - Panic recovery
//   - Token bucket rate limiting (golang.org/x/time/rate)
//   - Request body limit
//   - Debug request logging
//
// # System Endpoints
//
// GET /health is the liveness probe and always returns 200. GET /ready
// returns 503 until Start has bound the listener and again once shutdown
// begins. GET /metrics serves the Prometheus registry. None of them are
// rate limited.
//
// # Errors
//
// Errors are returned as ErrorResponse JSON. WriteErrorFromErr maps
// StructuredError codes to statuses: INVALID_REQUEST is 400, PARSE_ERROR,
// UNRESOLVED_CONDITION and AMBIGUOUS_CONDITION are 422, NOT_FOUND is 404,
// RATE_LIMIT_EXCEEDED is 429, SERVICE_UNAVAILABLE is 503, TIMEOUT is 504 and
// everything else is 500.
//
// # Usage
//
//	s := server.New(
//	    server.WithName("specrun"),
//	    server.WithVersion(version),
//	    server.WithHandler(map[string]http.HandlerFunc{
//	        "/v1/parse": h.HandleParse,
//	    }),
//	)
//	if err := s.Run(ctx); err != nil {
//	    return err
//	}
//
// Run stops on SIGINT, SIGTERM or ctx cancellation and drains in-flight
// requests for up to Config.ShutdownTimeout. PORT and
// SHUTDOWN_TIMEOUT_SECONDS override the defaults.
package server
