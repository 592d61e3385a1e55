// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"fmt"
	"time"
)

// SplitKey identifies one split of an aggregated time series. Timestamp is
// the start of the split window and is always aligned to
// Sampling*PointsPerSplit.
type SplitKey struct {
	Timestamp int64
	Sampling  time.Duration
}

// SplitKeyOf returns the key of the split that contains ts at the given
// sampling interval.
func SplitKeyOf(ts int64, sampling time.Duration) SplitKey {
	return SplitKey{
		Timestamp: RoundTimestamp(ts, sampling*time.Duration(PointsPerSplit)),
		Sampling:  sampling,
	}
}

// Span is the length of the split window.
func (k SplitKey) Span() time.Duration {
	return k.Sampling * time.Duration(PointsPerSplit)
}

// End is the first timestamp after the split window.
func (k SplitKey) End() int64 {
	return k.Timestamp + int64(k.Span())
}

// Next returns the key of the immediately following split.
func (k SplitKey) Next() SplitKey {
	return SplitKey{Timestamp: k.End(), Sampling: k.Sampling}
}

// Contains reports whether ts falls inside the split window.
func (k SplitKey) Contains(ts int64) bool {
	return ts >= k.Timestamp && ts < k.End()
}

func (k SplitKey) String() string {
	return fmt.Sprintf("%d@%s", k.Timestamp/int64(time.Second), k.Sampling)
}
