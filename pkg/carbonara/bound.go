// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// BoundTimeSerie buffers the most recent raw measures of one metric. Points
// older than the back window relative to the newest observed timestamp are
// dropped: they have already been committed to every granularity and are no
// longer rewriteable.
type BoundTimeSerie struct {
	points     []Measure
	blockSize  time.Duration
	backWindow int64
}

// NewBoundTimeSerie returns an empty bound serie. blockSize is the greatest
// granularity of the archive policy; backWindow the number of blocks a new
// measure may reach back into.
func NewBoundTimeSerie(blockSize time.Duration, backWindow int64) *BoundTimeSerie {
	return &BoundTimeSerie{blockSize: blockSize, backWindow: backWindow}
}

// Len returns the number of buffered points.
func (b *BoundTimeSerie) Len() int { return len(b.points) }

// Points returns the buffered points, timestamp-ascending. The slice is
// owned by the serie and must not be modified.
func (b *BoundTimeSerie) Points() []Measure { return b.points }

// Last returns the newest buffered timestamp.
func (b *BoundTimeSerie) Last() (int64, bool) {
	if len(b.points) == 0 {
		return 0, false
	}
	return b.points[len(b.points)-1].Timestamp, true
}

// FirstBlockTimestamp returns the oldest timestamp that is still mutable:
// the start of the newest block minus the back window.
func (b *BoundTimeSerie) FirstBlockTimestamp() (int64, bool) {
	last, ok := b.Last()
	if !ok || b.blockSize <= 0 {
		return 0, false
	}
	return RoundTimestamp(last, b.blockSize) - b.backWindow*int64(b.blockSize), true
}

// SetValues merges values into the buffer. Measures older than the current
// first block timestamp are silently dropped; this is not an error, late
// points simply cannot alter already frozen aggregates. Before the buffer is
// truncated to the (possibly advanced) back window, beforeTruncate is called
// with the accepted new measures, timestamp-ascending, so the caller can
// recompute every affected aggregation bucket while the raw points are still
// available.
func (b *BoundTimeSerie) SetValues(values []Measure, beforeTruncate func(accepted []Measure)) {
	accepted := values
	if len(b.points) > 0 {
		if fbt, ok := b.FirstBlockTimestamp(); ok {
			accepted = make([]Measure, 0, len(values))
			for _, m := range values {
				if m.Timestamp >= fbt {
					accepted = append(accepted, m)
				}
			}
		}
	}

	b.merge(accepted)

	if beforeTruncate != nil {
		sorted := make([]Measure, len(accepted))
		copy(sorted, accepted)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})
		beforeTruncate(sorted)
	}

	b.truncate()
}

// merge appends values and re-sorts, keeping the last occurrence per
// timestamp. New values win over buffered ones.
func (b *BoundTimeSerie) merge(values []Measure) {
	if len(values) == 0 {
		return
	}
	b.points = append(b.points, values...)
	sort.SliceStable(b.points, func(i, j int) bool {
		return b.points[i].Timestamp < b.points[j].Timestamp
	})
	out := b.points[:0]
	for i, m := range b.points {
		if i+1 < len(b.points) && b.points[i+1].Timestamp == m.Timestamp {
			continue
		}
		out = append(out, m)
	}
	b.points = out
}

func (b *BoundTimeSerie) truncate() {
	fbt, ok := b.FirstBlockTimestamp()
	if !ok {
		return
	}
	i := sort.Search(len(b.points), func(i int) bool {
		return b.points[i].Timestamp >= fbt
	})
	if i > 0 {
		b.points = append(b.points[:0], b.points[i:]...)
	}
}

// GroupSerie groups the buffered points at the given granularity, keeping
// only points with a timestamp at or after from.
func (b *BoundTimeSerie) GroupSerie(granularity time.Duration, from int64) *GroupedTimeSeries {
	i := sort.Search(len(b.points), func(i int) bool {
		return b.points[i].Timestamp >= from
	})
	g := &GroupedTimeSeries{granularity: granularity}
	for _, m := range b.points[i:] {
		bucket := RoundTimestamp(m.Timestamp, granularity)
		n := len(g.buckets)
		if n == 0 || g.buckets[n-1].timestamp != bucket {
			g.buckets = append(g.buckets, bucketGroup{timestamp: bucket})
			n++
		}
		g.buckets[n-1].values = append(g.buckets[n-1].values, m.Value)
	}
	return g
}

// Serialize encodes the buffer as a point count followed by the timestamp
// array and the value array, all little-endian.
func (b *BoundTimeSerie) Serialize() []byte {
	buf := make([]byte, 8+16*len(b.points))
	binary.LittleEndian.PutUint64(buf, uint64(len(b.points)))
	off := 8
	for _, m := range b.points {
		binary.LittleEndian.PutUint64(buf[off:], uint64(m.Timestamp))
		off += 8
	}
	for _, m := range b.points {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(m.Value))
		off += 8
	}
	return buf
}

// UnserializeBound decodes a blob produced by Serialize. It fails with
// ErrInvalidData on a size mismatch, non-monotonic timestamps or NaN values.
func UnserializeBound(data []byte, blockSize time.Duration, backWindow int64) (*BoundTimeSerie, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: bound serie blob too short (%d bytes)", ErrInvalidData, len(data))
	}
	n := binary.LittleEndian.Uint64(data)
	if n > uint64((len(data)-8)/16) || len(data) != int(8+16*n) {
		return nil, fmt.Errorf("%w: bound serie size mismatch: %d points in %d bytes", ErrInvalidData, n, len(data))
	}
	b := NewBoundTimeSerie(blockSize, backWindow)
	b.points = make([]Measure, n)
	tsOff, valOff := 8, 8+8*int(n)
	var prev int64
	for i := range b.points {
		ts := int64(binary.LittleEndian.Uint64(data[tsOff+8*i:]))
		if i > 0 && ts <= prev {
			return nil, fmt.Errorf("%w: bound serie timestamps not increasing", ErrInvalidData)
		}
		prev = ts
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[valOff+8*i:]))
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: bound serie contains NaN value", ErrInvalidData)
		}
		b.points[i] = Measure{Timestamp: ts, Value: v}
	}
	return b, nil
}
