// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package carbonara implements the time-series algebra at the heart of the
// storage engine: timestamp rounding, split-key derivation, the bound
// (unaggregated) time series that enforces the back window, and the
// aggregated time series with its split serialisation and LZ4 compression.
//
// All timestamps are int64 nanoseconds since the epoch and all arithmetic on
// them is integer arithmetic. Granularities and sampling intervals are
// time.Duration values.
package carbonara

import (
	"errors"
	"time"
)

// PointsPerSplit is the maximum number of aggregated points a single split
// holds. It is a variable only so that tests can shrink it; production code
// must treat it as a constant.
var PointsPerSplit int64 = 3600

var (
	// ErrInvalidData is returned when a serialised blob cannot be decoded.
	ErrInvalidData = errors.New("carbonara: invalid data")
	// ErrUnknownAggregation is returned for aggregation methods this
	// package does not implement.
	ErrUnknownAggregation = errors.New("carbonara: unknown aggregation method")
)

// Measure is a single raw or aggregated sample.
type Measure struct {
	Timestamp int64
	Value     float64
}

// RoundTimestamp rounds ts down to a multiple of granularity. Negative
// timestamps round toward minus infinity.
func RoundTimestamp(ts int64, granularity time.Duration) int64 {
	g := int64(granularity)
	r := ts % g
	if r < 0 {
		r += g
	}
	return ts - r
}
