// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTimestamp(t *testing.T) {
	assert.Equal(t, int64(0), RoundTimestamp(0, time.Minute))
	assert.Equal(t, int64(60e9), RoundTimestamp(int64(61e9), time.Minute))
	assert.Equal(t, int64(60e9), RoundTimestamp(int64(119e9), time.Minute))
	assert.Equal(t, int64(120e9), RoundTimestamp(int64(120e9), time.Minute))

	// Negative timestamps round toward minus infinity.
	assert.Equal(t, int64(-60e9), RoundTimestamp(int64(-1e9), time.Minute))
	assert.Equal(t, int64(-120e9), RoundTimestamp(int64(-61e9), time.Minute))
	assert.Equal(t, int64(-60e9), RoundTimestamp(int64(-60e9), time.Minute))
}

func TestSplitKeyOf(t *testing.T) {
	// 2016-01-01T12:00:01 at one minute sampling: the split span is
	// 3600 minutes and the window starts at 2015-12-31T00:00:00.
	ts := time.Date(2016, 1, 1, 12, 0, 1, 0, time.UTC).UnixNano()
	key := SplitKeyOf(ts, time.Minute)
	assert.Equal(t, int64(1451520000)*int64(time.Second), key.Timestamp)
	assert.Equal(t, time.Minute, key.Sampling)
	assert.True(t, key.Contains(ts))
	assert.False(t, key.Contains(key.End()))
	assert.Equal(t, key.End(), key.Next().Timestamp)

	span := int64(key.Sampling) * PointsPerSplit
	assert.Zero(t, key.Timestamp%span)
}

func TestSplitKeyAlignmentAcrossRange(t *testing.T) {
	for _, sampling := range []time.Duration{time.Second, time.Minute, 5 * time.Minute, time.Hour, 24 * time.Hour} {
		ts := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()
		end := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()
		span := int64(sampling) * PointsPerSplit
		for ; ts < end; ts += int64(30 * 24 * time.Hour) {
			key := SplitKeyOf(ts, sampling)
			assert.Zero(t, key.Timestamp%span)
			assert.True(t, key.Contains(ts))
		}
	}
}
