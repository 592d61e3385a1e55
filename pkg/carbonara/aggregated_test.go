// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupedFrom(t *testing.T, granularity time.Duration, measures ...Measure) *GroupedTimeSeries {
	t.Helper()
	b := NewBoundTimeSerie(24*time.Hour, 0)
	b.SetValues(measures, nil)
	return b.GroupSerie(granularity, measures[0].Timestamp-int64(granularity))
}

func TestAggregateMethods(t *testing.T) {
	measures := []Measure{
		{tts(12, 0, 1), 69},
		{tts(12, 7, 31), 42},
		{tts(12, 9, 31), 4},
		{tts(12, 12, 45), 44},
	}

	cases := []struct {
		method string
		want   []Measure
	}{
		{"mean", []Measure{{tts(12, 0, 0), 69}, {tts(12, 5, 0), 23}, {tts(12, 10, 0), 44}}},
		{"max", []Measure{{tts(12, 0, 0), 69}, {tts(12, 5, 0), 42}, {tts(12, 10, 0), 44}}},
		{"min", []Measure{{tts(12, 0, 0), 69}, {tts(12, 5, 0), 4}, {tts(12, 10, 0), 44}}},
		{"sum", []Measure{{tts(12, 0, 0), 69}, {tts(12, 5, 0), 46}, {tts(12, 10, 0), 44}}},
		{"count", []Measure{{tts(12, 0, 0), 1}, {tts(12, 5, 0), 2}, {tts(12, 10, 0), 1}}},
	}
	for _, c := range cases {
		serie, err := groupedFrom(t, 5*time.Minute, measures...).Aggregate(c.method)
		require.NoError(t, err)
		assert.Equal(t, c.want, serie.Points(), c.method)
	}

	_, err := groupedFrom(t, 5*time.Minute, measures...).Aggregate("last")
	assert.ErrorIs(t, err, ErrUnknownAggregation)
}

func TestAggregateStdSingleSampleSkipped(t *testing.T) {
	serie, err := groupedFrom(t, 5*time.Minute,
		Measure{tts(12, 0, 1), 69},
		Measure{tts(12, 7, 31), 42},
		Measure{tts(12, 9, 31), 4},
	).Aggregate("std")
	require.NoError(t, err)

	// The 12:00 bucket has one sample: its std is NaN and not stored.
	require.Equal(t, 1, serie.Len())
	assert.Equal(t, tts(12, 5, 0), serie.Points()[0].Timestamp)
	assert.InDelta(t, 26.870057685088806, serie.Points()[0].Value, 1e-9)
}

func TestAggregatedSerializeRoundTrip(t *testing.T) {
	serie, err := groupedFrom(t, time.Minute,
		Measure{tts(12, 0, 1), 69},
		Measure{tts(12, 7, 31), 42},
		Measure{tts(12, 9, 31), 4},
	).Aggregate("mean")
	require.NoError(t, err)

	for _, compressed := range []bool{false, true} {
		splits := serie.Split()
		require.Len(t, splits, 1)
		data, err := splits[0].Serie.Serialize(splits[0].Key, compressed)
		require.NoError(t, err)

		isCompressed, err := IsCompressed(data)
		require.NoError(t, err)
		assert.Equal(t, compressed, isCompressed)

		got, err := UnserializeSplit(data, splits[0].Key, "mean")
		require.NoError(t, err)
		assert.Equal(t, serie.Points(), got.Points())
	}
}

func TestAggregatedSerializeDeterministic(t *testing.T) {
	serie, err := groupedFrom(t, time.Minute,
		Measure{tts(12, 0, 1), 69},
		Measure{tts(12, 7, 31), 42},
	).Aggregate("mean")
	require.NoError(t, err)

	splits := serie.Split()
	require.Len(t, splits, 1)
	a, err := splits[0].Serie.Serialize(splits[0].Key, true)
	require.NoError(t, err)
	b, err := splits[0].Serie.Serialize(splits[0].Key, true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnserializeSplitInvalid(t *testing.T) {
	key := SplitKeyOf(tts(12, 0, 0), time.Minute)

	_, err := UnserializeSplit(nil, key, "mean")
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = UnserializeSplit([]byte("oh really?"), key, "mean")
	assert.ErrorIs(t, err, ErrInvalidData)

	// Unsupported version byte.
	_, err = UnserializeSplit([]byte{9, 0, 1, 0}, key, "mean")
	assert.ErrorIs(t, err, ErrInvalidData)

	// Truncated payload.
	serie, aggErr := groupedFrom(t, time.Minute, Measure{tts(12, 0, 1), 69}).Aggregate("mean")
	require.NoError(t, aggErr)
	data, serErr := serie.Serialize(key, false)
	require.NoError(t, serErr)
	_, err = UnserializeSplit(data[:len(data)-3], key, "mean")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestAggregatedSplitAcrossKeys(t *testing.T) {
	old := PointsPerSplit
	PointsPerSplit = 48
	defer func() { PointsPerSplit = old }()

	var measures []Measure
	for i := 0; i < 120; i++ {
		measures = append(measures, Measure{tts(0, i, 0), float64(i)})
	}
	serie, err := groupedFrom(t, time.Minute, measures...).Aggregate("mean")
	require.NoError(t, err)

	splits := serie.Split()
	require.Len(t, splits, 3)
	total := 0
	for _, s := range splits {
		assert.Zero(t, s.Key.Timestamp%(int64(time.Minute)*PointsPerSplit))
		for _, p := range s.Serie.Points() {
			assert.True(t, s.Key.Contains(p.Timestamp))
		}
		total += s.Serie.Len()
	}
	assert.Equal(t, 120, total)
}

func TestMergeUnder(t *testing.T) {
	fresh := NewAggregatedTimeSerie(time.Minute, "mean", []Measure{
		{tts(12, 1, 0), 10},
		{tts(12, 3, 0), 30},
	})
	stored := NewAggregatedTimeSerie(time.Minute, "mean", []Measure{
		{tts(12, 0, 0), 1},
		{tts(12, 1, 0), 99}, // loses against the fresh bucket
	})
	fresh.MergeUnder(stored)
	assert.Equal(t, []Measure{
		{tts(12, 0, 0), 1},
		{tts(12, 1, 0), 10},
		{tts(12, 3, 0), 30},
	}, fresh.Points())
}

func TestResample(t *testing.T) {
	serie, err := groupedFrom(t, 5*time.Minute,
		Measure{tts(12, 0, 1), 10},
		Measure{tts(12, 7, 31), 20},
		Measure{tts(13, 2, 0), 42},
	).Aggregate("mean")
	require.NoError(t, err)

	resampled, err := serie.Resample(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []Measure{
		{tts(12, 0, 0), 15},
		{tts(13, 0, 0), 42},
	}, resampled.Points())
}
