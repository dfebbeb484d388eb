/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/

package oci

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specrun_publish_retries_total",
		Help: "Registry pushes retried after a transient failure",
	})

	pushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specrun_publish_failures_total",
		Help: "Registry pushes that failed after all retries",
	})
)
