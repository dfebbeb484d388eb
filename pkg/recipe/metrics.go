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

package recipe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specrun_recipe_resolve_total",
			Help: "Total number of recipe resolutions by result",
		},
		[]string{"result"},
	)

	resolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "specrun_recipe_resolve_duration_seconds",
			Help:    "Duration of conditional resolution in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)
)
