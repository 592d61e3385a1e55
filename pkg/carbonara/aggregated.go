// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/pierrec/lz4/v4"
)

// Split blob layout, version 2:
//
//	1 byte  version
//	1 byte  flags (bit0: payload is an LZ4 frame)
//	payload: uvarint point count,
//	         count * uvarint bucket offsets (ts - key)/sampling,
//	         count * int8 run lengths (always 1),
//	         count * little-endian float64 values.
const (
	splitVersion        = 2
	splitFlagCompressed = 0x01
)

// Aggregation method names understood by Aggregate.
const (
	AggregationMean  = "mean"
	AggregationMin   = "min"
	AggregationMax   = "max"
	AggregationSum   = "sum"
	AggregationCount = "count"
	AggregationStd   = "std"
)

type bucketGroup struct {
	timestamp int64
	values    []float64
}

// GroupedTimeSeries is the result of bucketing raw points at one
// granularity, ready to be collapsed by an aggregation method.
type GroupedTimeSeries struct {
	granularity time.Duration
	buckets     []bucketGroup
}

// Aggregate collapses each bucket with the given method. Buckets whose
// result is NaN (the standard deviation of a single sample) are skipped.
func (g *GroupedTimeSeries) Aggregate(method string) (*AggregatedTimeSerie, error) {
	fn, ok := aggregators[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregation, method)
	}
	ts := &AggregatedTimeSerie{Sampling: g.granularity, Aggregation: method}
	for _, b := range g.buckets {
		v := fn(b.values)
		if math.IsNaN(v) {
			continue
		}
		ts.points = append(ts.points, Measure{Timestamp: b.timestamp, Value: v})
	}
	return ts, nil
}

var aggregators = map[string]func([]float64) float64{
	AggregationMean: func(vs []float64) float64 {
		var sum float64
		for _, v := range vs {
			sum += v
		}
		return sum / float64(len(vs))
	},
	AggregationMin: func(vs []float64) float64 {
		min := vs[0]
		for _, v := range vs[1:] {
			if v < min {
				min = v
			}
		}
		return min
	},
	AggregationMax: func(vs []float64) float64 {
		max := vs[0]
		for _, v := range vs[1:] {
			if v > max {
				max = v
			}
		}
		return max
	},
	AggregationSum: func(vs []float64) float64 {
		var sum float64
		for _, v := range vs {
			sum += v
		}
		return sum
	},
	AggregationCount: func(vs []float64) float64 {
		return float64(len(vs))
	},
	AggregationStd: func(vs []float64) float64 {
		if len(vs) < 2 {
			return math.NaN()
		}
		var sum float64
		for _, v := range vs {
			sum += v
		}
		mean := sum / float64(len(vs))
		var sq float64
		for _, v := range vs {
			sq += (v - mean) * (v - mean)
		}
		return math.Sqrt(sq / float64(len(vs)-1))
	},
}

// KnownAggregation reports whether method is implemented.
func KnownAggregation(method string) bool {
	_, ok := aggregators[method]
	return ok
}

// AggregatedTimeSerie holds the aggregated buckets of one
// (granularity, aggregation method) pair, timestamp-ascending.
type AggregatedTimeSerie struct {
	Sampling    time.Duration
	Aggregation string
	points      []Measure
}

// NewAggregatedTimeSerie builds a serie from already-aggregated points,
// which must be timestamp-ascending with unique timestamps.
func NewAggregatedTimeSerie(sampling time.Duration, aggregation string, points []Measure) *AggregatedTimeSerie {
	return &AggregatedTimeSerie{Sampling: sampling, Aggregation: aggregation, points: points}
}

// Len returns the number of buckets.
func (ts *AggregatedTimeSerie) Len() int { return len(ts.points) }

// Points returns the buckets, timestamp-ascending. The slice is owned by the
// serie.
func (ts *AggregatedTimeSerie) Points() []Measure { return ts.points }

// Last returns the newest bucket timestamp.
func (ts *AggregatedTimeSerie) Last() (int64, bool) {
	if len(ts.points) == 0 {
		return 0, false
	}
	return ts.points[len(ts.points)-1].Timestamp, true
}

// MergeUnder fills in buckets from other wherever ts has no bucket of its
// own. The receiver's buckets always win.
func (ts *AggregatedTimeSerie) MergeUnder(other *AggregatedTimeSerie) {
	if other == nil || len(other.points) == 0 {
		return
	}
	have := make(map[int64]struct{}, len(ts.points))
	for _, p := range ts.points {
		have[p.Timestamp] = struct{}{}
	}
	for _, p := range other.points {
		if _, ok := have[p.Timestamp]; !ok {
			ts.points = append(ts.points, p)
		}
	}
	sort.Slice(ts.points, func(i, j int) bool {
		return ts.points[i].Timestamp < ts.points[j].Timestamp
	})
}

// Split partitions the serie into per-split series, key-ascending.
func (ts *AggregatedTimeSerie) Split() []*SplitSlice {
	var out []*SplitSlice
	for _, p := range ts.points {
		key := SplitKeyOf(p.Timestamp, ts.Sampling)
		n := len(out)
		if n == 0 || out[n-1].Key != key {
			out = append(out, &SplitSlice{
				Key:   key,
				Serie: &AggregatedTimeSerie{Sampling: ts.Sampling, Aggregation: ts.Aggregation},
			})
			n++
		}
		out[n-1].Serie.points = append(out[n-1].Serie.points, p)
	}
	return out
}

// SplitSlice is the restriction of an aggregated serie to one split window.
type SplitSlice struct {
	Key   SplitKey
	Serie *AggregatedTimeSerie
}

// Resample rebuckets the already-aggregated serie at a coarser granularity,
// applying its own aggregation method to the bucket values.
func (ts *AggregatedTimeSerie) Resample(granularity time.Duration) (*AggregatedTimeSerie, error) {
	g := &GroupedTimeSeries{granularity: granularity}
	for _, p := range ts.points {
		bucket := RoundTimestamp(p.Timestamp, granularity)
		n := len(g.buckets)
		if n == 0 || g.buckets[n-1].timestamp != bucket {
			g.buckets = append(g.buckets, bucketGroup{timestamp: bucket})
			n++
		}
		g.buckets[n-1].values = append(g.buckets[n-1].values, p.Value)
	}
	return g.Aggregate(ts.Aggregation)
}

// Serialize encodes the serie as the split blob for key. Every point must
// fall inside the key's window.
func (ts *AggregatedTimeSerie) Serialize(key SplitKey, compressed bool) ([]byte, error) {
	body := make([]byte, 0, 16+10*len(ts.points))
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(ts.points)))
	body = append(body, scratch[:n]...)
	for _, p := range ts.points {
		if !key.Contains(p.Timestamp) {
			return nil, fmt.Errorf("carbonara: point %d outside split window %s", p.Timestamp, key)
		}
		offset := (p.Timestamp - key.Timestamp) / int64(key.Sampling)
		n := binary.PutUvarint(scratch[:], uint64(offset))
		body = append(body, scratch[:n]...)
	}
	for range ts.points {
		body = append(body, 1)
	}
	for _, p := range ts.points {
		var vb [8]byte
		binary.LittleEndian.PutUint64(vb[:], math.Float64bits(p.Value))
		body = append(body, vb[:]...)
	}

	var flags byte
	if compressed {
		flags |= splitFlagCompressed
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
	}
	out := make([]byte, 0, 2+len(body))
	out = append(out, splitVersion, flags)
	return append(out, body...), nil
}

// IsCompressed inspects only the flag byte of a split blob.
func IsCompressed(data []byte) (bool, error) {
	if len(data) < 2 {
		return false, fmt.Errorf("%w: split blob too short", ErrInvalidData)
	}
	return data[1]&splitFlagCompressed != 0, nil
}

// UnserializeSplit decodes a split blob back into an aggregated serie. Any
// malformed input fails with ErrInvalidData.
func UnserializeSplit(data []byte, key SplitKey, aggregation string) (*AggregatedTimeSerie, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: split blob too short", ErrInvalidData)
	}
	if data[0] != splitVersion {
		return nil, fmt.Errorf("%w: unsupported split version %d", ErrInvalidData, data[0])
	}
	body := data[2:]
	if data[1]&splitFlagCompressed != 0 {
		zr := lz4.NewReader(bytes.NewReader(body))
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: split decompression: %v", ErrInvalidData, err)
		}
		body = decoded
	}

	r := bytes.NewReader(body)
	count, err := binary.ReadUvarint(r)
	if err != nil || count > uint64(PointsPerSplit) {
		return nil, fmt.Errorf("%w: split point count", ErrInvalidData)
	}
	offsets := make([]int64, count)
	prev := int64(-1)
	for i := range offsets {
		o, err := binary.ReadUvarint(r)
		if err != nil || int64(o) >= PointsPerSplit || int64(o) <= prev {
			return nil, fmt.Errorf("%w: split bucket offsets", ErrInvalidData)
		}
		offsets[i] = int64(o)
		prev = int64(o)
	}
	if int64(r.Len()) != int64(count)*9 {
		return nil, fmt.Errorf("%w: split payload size mismatch", ErrInvalidData)
	}
	// Skip run lengths; standard encoding writes a run of 1 per bucket.
	if _, err := r.Seek(int64(count), io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("%w: split run lengths", ErrInvalidData)
	}
	ts := &AggregatedTimeSerie{Sampling: key.Sampling, Aggregation: aggregation}
	ts.points = make([]Measure, count)
	var vb [8]byte
	for i := range ts.points {
		if _, err := io.ReadFull(r, vb[:]); err != nil {
			return nil, fmt.Errorf("%w: split values", ErrInvalidData)
		}
		ts.points[i] = Measure{
			Timestamp: key.Timestamp + offsets[i]*int64(key.Sampling),
			Value:     math.Float64frombits(binary.LittleEndian.Uint64(vb[:])),
		}
	}
	return ts, nil
}
