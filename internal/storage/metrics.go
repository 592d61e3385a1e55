// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processedMetrics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbonara_processed_metrics_total",
		Help: "Number of metric processing cycles that committed measures.",
	})
	processedMeasures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbonara_processed_measures_total",
		Help: "Number of raw measures folded into aggregates.",
	})
	processingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbonara_processing_errors_total",
		Help: "Number of failed metric processing cycles.",
	})
)
