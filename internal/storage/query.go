// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/internal/indexer"
	"github.com/carbonara-project/carbonara/pkg/carbonara"
	"github.com/carbonara-project/carbonara/pkg/log"
)

// AggregatedMeasure is one query result tuple.
type AggregatedMeasure struct {
	Timestamp   int64
	Granularity time.Duration
	Value       float64
}

// MeasuresOptions narrows a GetMeasures call. From/To are inclusive
// nanosecond bounds (nil means unbounded); a zero Granularity selects every
// granularity of the policy; an empty Aggregation means "mean"; a non-zero
// Resample rebuckets the selected granularity.
type MeasuresOptions struct {
	From        *int64
	To          *int64
	Granularity time.Duration
	Aggregation string
	Resample    time.Duration
}

// GetMeasures returns aggregated tuples for one metric, ordered by
// granularity descending then timestamp ascending.
func (s *Storage) GetMeasures(ctx context.Context, m *indexer.Metric, opts MeasuresOptions) ([]AggregatedMeasure, error) {
	aggregation := opts.Aggregation
	if aggregation == "" {
		aggregation = carbonara.AggregationMean
	}
	if !m.Policy.HasAggregation(aggregation) {
		return nil, fmt.Errorf("%w: %q on policy %q", ErrAggregationDoesNotExist, aggregation, m.Policy.Name)
	}

	granularities := m.Policy.Granularities()
	if opts.Granularity != 0 {
		if m.Policy.ItemFor(opts.Granularity) == nil {
			// A resample of a granularity the policy does not have
			// yields nothing rather than an error.
			if opts.Resample != 0 {
				return []AggregatedMeasure{}, nil
			}
			return nil, fmt.Errorf("%w: %s on policy %q", ErrGranularityDoesNotExist, opts.Granularity, m.Policy.Name)
		}
		granularities = []time.Duration{opts.Granularity}
	}

	out := []AggregatedMeasure{}
	for _, g := range granularities {
		serie, err := s.fetchAggregated(ctx, m, g, aggregation, opts.From, opts.To)
		if err != nil {
			return nil, err
		}
		if opts.Resample != 0 {
			if serie, err = serie.Resample(opts.Resample); err != nil {
				return nil, err
			}
			g = opts.Resample
		}
		for _, p := range serie.Points() {
			out = append(out, AggregatedMeasure{Timestamp: p.Timestamp, Granularity: g, Value: p.Value})
		}
	}
	return out, nil
}

// fetchAggregated assembles the stored series of one (granularity,
// aggregation) pair, clipped to the policy's current retention window and to
// the requested range. The lower bound is rounded down to the granularity so
// that the bucket containing it is included.
func (s *Storage) fetchAggregated(ctx context.Context, m *indexer.Metric, granularity time.Duration, aggregation string, from, to *int64) (*carbonara.AggregatedTimeSerie, error) {
	keys, err := s.driver.ListSplits(ctx, m.ID, aggregation, granularity)
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Timestamp < keys[j].Timestamp })

	lower := int64(math.MinInt64)
	if from != nil {
		lower = carbonara.RoundTimestamp(*from, granularity)
	}
	upper := int64(math.MaxInt64)
	if to != nil {
		upper = *to
	}

	var points []carbonara.Measure
	for _, key := range keys {
		if key.End() <= lower && lower != int64(math.MinInt64) {
			continue
		}
		if key.Timestamp > upper {
			continue
		}
		serie, err := s.getSplitSerie(ctx, m.ID, aggregation, key)
		if err != nil {
			if errors.Is(err, carbonara.ErrInvalidData) {
				log.Warnf("storage: skipping corrupt split %s of metric %s (%s): %v",
					key, m.ID, aggregation, err)
				continue
			}
			return nil, err
		}
		if serie != nil {
			points = append(points, serie.Points()...)
		}
	}

	// Clip against the current policy definition so that a shrunk policy
	// is visible before the next processing cycle trims the splits.
	if item := m.Policy.ItemFor(granularity); item != nil && item.Points > 0 && len(points) > int(item.Points) {
		points = points[len(points)-int(item.Points):]
	}

	i := sort.Search(len(points), func(i int) bool { return points[i].Timestamp >= lower })
	points = points[i:]
	j := sort.Search(len(points), func(i int) bool { return points[i].Timestamp > upper })
	points = points[:j]

	return carbonara.NewAggregatedTimeSerie(granularity, aggregation, points), nil
}

// CrossMetricOptions narrows a GetCrossMetricMeasures call. Aggregation is
// the per-metric method, Reaggregation the method applied across metrics
// (both default to "mean").
type CrossMetricOptions struct {
	From          *int64
	To            *int64
	Granularity   time.Duration
	Aggregation   string
	Reaggregation string
}

// GetCrossMetricMeasures re-aggregates the per-metric aggregates of several
// metrics. Only timestamps present in every metric's series contribute;
// holes are dropped.
func (s *Storage) GetCrossMetricMeasures(ctx context.Context, metrics []*indexer.Metric, opts CrossMetricOptions) ([]AggregatedMeasure, error) {
	if len(metrics) == 0 {
		return []AggregatedMeasure{}, nil
	}
	aggregation := opts.Aggregation
	if aggregation == "" {
		aggregation = carbonara.AggregationMean
	}
	reaggregation := opts.Reaggregation
	if reaggregation == "" {
		reaggregation = carbonara.AggregationMean
	}
	for _, m := range metrics {
		if !m.Policy.HasAggregation(aggregation) {
			return nil, fmt.Errorf("%w: %q on policy %q", ErrAggregationDoesNotExist, aggregation, m.Policy.Name)
		}
	}

	shared := sharedGranularities(metrics)
	if opts.Granularity != 0 {
		for _, m := range metrics {
			if m.Policy.ItemFor(opts.Granularity) == nil {
				return nil, fmt.Errorf("%w: %s on policy %q", ErrGranularityDoesNotExist, opts.Granularity, m.Policy.Name)
			}
		}
		shared = []time.Duration{opts.Granularity}
	}
	if len(shared) == 0 {
		return nil, fmt.Errorf("%w: no common granularity", ErrMetricUnaggregatable)
	}

	out := []AggregatedMeasure{}
	for _, g := range shared {
		series := make([]*carbonara.AggregatedTimeSerie, 0, len(metrics))
		for _, m := range metrics {
			serie, err := s.fetchAggregated(ctx, m, g, aggregation, opts.From, opts.To)
			if err != nil {
				return nil, err
			}
			// Unlike the single-metric query, the upper bound is
			// exclusive here.
			if opts.To != nil {
				points := serie.Points()
				j := sort.Search(len(points), func(i int) bool {
					return points[i].Timestamp >= *opts.To
				})
				serie = carbonara.NewAggregatedTimeSerie(g, aggregation, points[:j])
			}
			series = append(series, serie)
		}
		out = append(out, reaggregate(series, g, reaggregation)...)
	}
	return out, nil
}

func sharedGranularities(metrics []*indexer.Metric) []time.Duration {
	counts := map[time.Duration]int{}
	for _, m := range metrics {
		for _, g := range m.Policy.Granularities() {
			counts[g]++
		}
	}
	var shared []time.Duration
	for g, n := range counts {
		if n == len(metrics) {
			shared = append(shared, g)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i] > shared[j] })
	return shared
}

// reaggregate applies the reaggregation method across the per-metric values
// of every timestamp present in all series.
func reaggregate(series []*carbonara.AggregatedTimeSerie, granularity time.Duration, method string) []AggregatedMeasure {
	counts := map[int64]int{}
	values := map[int64][]float64{}
	for _, serie := range series {
		for _, p := range serie.Points() {
			counts[p.Timestamp]++
			values[p.Timestamp] = append(values[p.Timestamp], p.Value)
		}
	}
	var stamps []int64
	for ts, n := range counts {
		if n == len(series) {
			stamps = append(stamps, ts)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out := make([]AggregatedMeasure, 0, len(stamps))
	for _, ts := range stamps {
		v, ok := applyAggregation(values[ts], method)
		if !ok {
			continue
		}
		out = append(out, AggregatedMeasure{Timestamp: ts, Granularity: granularity, Value: v})
	}
	return out
}

// applyAggregation collapses values with a carbonara aggregation method by
// round-tripping through a single-bucket grouped serie.
func applyAggregation(values []float64, method string) (float64, bool) {
	points := make([]carbonara.Measure, len(values))
	for i, v := range values {
		points[i] = carbonara.Measure{Timestamp: 0, Value: v}
	}
	serie := carbonara.NewAggregatedTimeSerie(time.Second, method, points)
	res, err := serie.Resample(time.Second)
	if err != nil || res.Len() == 0 {
		return 0, false
	}
	return res.Points()[0].Value, true
}

// SearchValue returns, per metric, the GetMeasures tuples whose value
// matches the query.
func (s *Storage) SearchValue(ctx context.Context, metrics []*indexer.Metric, query *MeasureQuery, from, to *int64) (map[uuid.UUID][]AggregatedMeasure, error) {
	out := make(map[uuid.UUID][]AggregatedMeasure, len(metrics))
	for _, m := range metrics {
		measures, err := s.GetMeasures(ctx, m, MeasuresOptions{From: from, To: to})
		if err != nil {
			return nil, err
		}
		matched := []AggregatedMeasure{}
		for _, am := range measures {
			if query.Match(am.Value) {
				matched = append(matched, am)
			}
		}
		out[m.ID] = matched
	}
	return out, nil
}
