// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package incoming holds the drivers for the queue of not-yet-aggregated
// measures. The queue is the durability boundary of the engine: a batch is
// removed only after the processing callback succeeds, so processing is
// at-least-once and relies on the storage layer's idempotent rewrites.
package incoming

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// Driver is the capability set every queue backend provides.
type Driver interface {
	fmt.Stringer

	// AddMeasures appends a batch of measures for one metric.
	AddMeasures(ctx context.Context, metricID uuid.UUID, measures []carbonara.Measure) error

	// ProcessMeasures hands every pending measure of the metric to fn and
	// drops them from the queue only if fn returns nil.
	ProcessMeasures(ctx context.Context, metricID uuid.UUID, fn func([]carbonara.Measure) error) error

	// ListMetricsWithMeasures returns the ids of all metrics with pending
	// measures.
	ListMetricsWithMeasures(ctx context.Context) ([]string, error)

	// BuildReport returns the number of pending metrics and measures, and
	// a per-metric measure count when details is true.
	BuildReport(ctx context.Context, details bool) (int, int, map[string]int, error)

	// Expunge drops all pending measures of one metric without processing
	// them.
	Expunge(ctx context.Context, metricID string) error
}

// Report is the JSON shape of a measures backlog report.
type Report struct {
	Summary ReportSummary  `json:"summary"`
	Details map[string]int `json:"details,omitempty"`
}

// ReportSummary totals a backlog report.
type ReportSummary struct {
	Metrics  int `json:"metrics"`
	Measures int `json:"measures"`
}

// MeasuresReport builds a backlog report from any driver.
func MeasuresReport(ctx context.Context, d Driver, details bool) (*Report, error) {
	metrics, measures, det, err := d.BuildReport(ctx, details)
	if err != nil {
		return nil, err
	}
	r := &Report{Summary: ReportSummary{Metrics: metrics, Measures: measures}}
	if details {
		r.Details = det
	}
	return r, nil
}

// Open builds a driver from its raw JSON configuration. The driver is
// selected by the "driver" key.
func Open(rawConfig json.RawMessage) (Driver, error) {
	var cfg struct {
		Driver string `json:"driver"`
	}
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		var fc FileConfig
		if err := json.Unmarshal(rawConfig, &fc); err != nil {
			return nil, err
		}
		return NewFile(fc)
	case "redis":
		var rc RedisConfig
		if err := json.Unmarshal(rawConfig, &rc); err != nil {
			return nil, err
		}
		return NewRedis(rc)
	default:
		return nil, fmt.Errorf("incoming: unknown driver %q", cfg.Driver)
	}
}

// Batch payloads share the bound serie layout: point count, little-endian
// i64 timestamps, f64 values.

func encodeMeasures(measures []carbonara.Measure) []byte {
	buf := make([]byte, 8+16*len(measures))
	binary.LittleEndian.PutUint64(buf, uint64(len(measures)))
	off := 8
	for _, m := range measures {
		binary.LittleEndian.PutUint64(buf[off:], uint64(m.Timestamp))
		off += 8
	}
	for _, m := range measures {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(m.Value))
		off += 8
	}
	return buf
}

func decodeMeasures(data []byte) ([]carbonara.Measure, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("incoming: truncated measure batch")
	}
	n := binary.LittleEndian.Uint64(data)
	if n > uint64((len(data)-8)/16) || len(data) != int(8+16*n) {
		return nil, fmt.Errorf("incoming: measure batch size mismatch")
	}
	measures := make([]carbonara.Measure, n)
	tsOff, valOff := 8, 8+8*int(n)
	for i := range measures {
		measures[i] = carbonara.Measure{
			Timestamp: int64(binary.LittleEndian.Uint64(data[tsOff+8*i:])),
			Value:     math.Float64frombits(binary.LittleEndian.Uint64(data[valOff+8*i:])),
		}
	}
	return measures, nil
}
