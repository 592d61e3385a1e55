// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package carbonara

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tts(hour, min, sec int) int64 {
	return time.Date(2014, 1, 1, hour, min, sec, 0, time.UTC).UnixNano()
}

func TestBoundTimeSerieSetValues(t *testing.T) {
	b := NewBoundTimeSerie(24*time.Hour, 0)
	b.SetValues([]Measure{
		{tts(12, 0, 9), 2},
		{tts(12, 0, 5), 1},
		{tts(12, 0, 9), 3},
	}, nil)

	// Sorted, deduplicated keeping the last occurrence.
	require.Equal(t, 2, b.Len())
	assert.Equal(t, Measure{tts(12, 0, 5), 1}, b.Points()[0])
	assert.Equal(t, Measure{tts(12, 0, 9), 3}, b.Points()[1])

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, tts(12, 0, 9), last)
}

func TestBoundTimeSerieDropTooOld(t *testing.T) {
	b := NewBoundTimeSerie(time.Hour, 0)
	b.SetValues([]Measure{{tts(12, 30, 0), 1}}, nil)

	var accepted []Measure
	b.SetValues([]Measure{
		{tts(11, 0, 0), 42}, // older than the first block, dropped
		{tts(12, 45, 0), 2},
	}, func(a []Measure) { accepted = a })

	assert.Equal(t, []Measure{{tts(12, 45, 0), 2}}, accepted)
	assert.Equal(t, 2, b.Len())
}

func TestBoundTimeSerieTruncation(t *testing.T) {
	b := NewBoundTimeSerie(time.Hour, 0)
	b.SetValues([]Measure{{tts(12, 30, 0), 1}}, nil)
	// Jumping to the next block truncates the previous one away.
	b.SetValues([]Measure{{tts(14, 10, 0), 2}}, nil)
	assert.Equal(t, []Measure{{tts(14, 10, 0), 2}}, b.Points())
}

func TestBoundTimeSerieBackWindow(t *testing.T) {
	b := NewBoundTimeSerie(time.Hour, 1)
	b.SetValues([]Measure{{tts(12, 30, 0), 1}}, nil)
	b.SetValues([]Measure{{tts(13, 10, 0), 2}}, nil)
	// One block of back window keeps the 12:30 point around.
	assert.Equal(t, 2, b.Len())

	fbt, ok := b.FirstBlockTimestamp()
	require.True(t, ok)
	assert.Equal(t, tts(12, 0, 0), fbt)
}

func TestBoundTimeSerieSerializeRoundTrip(t *testing.T) {
	b := NewBoundTimeSerie(time.Hour, 2)
	b.SetValues([]Measure{
		{tts(12, 0, 5), 1.5},
		{tts(12, 0, 9), -3},
		{tts(12, 1, 0), 0},
	}, nil)

	got, err := UnserializeBound(b.Serialize(), time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, b.Points(), got.Points())
}

func TestBoundTimeSerieUnserializeInvalid(t *testing.T) {
	_, err := UnserializeBound([]byte("bogus"), time.Hour, 0)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = UnserializeBound([]byte{9, 0, 0, 0, 0, 0, 0, 0}, time.Hour, 0)
	assert.ErrorIs(t, err, ErrInvalidData)

	// Non-monotonic timestamps.
	b := NewBoundTimeSerie(time.Hour, 0)
	b.SetValues([]Measure{{tts(12, 0, 5), 1}, {tts(12, 0, 9), 2}}, nil)
	data := b.Serialize()
	copy(data[8:16], data[16:24]) // duplicate the second timestamp first
	_, err = UnserializeBound(data, time.Hour, 0)
	assert.ErrorIs(t, err, ErrInvalidData)

	// NaN values.
	b2 := NewBoundTimeSerie(time.Hour, 0)
	b2.SetValues([]Measure{{tts(12, 0, 5), 1}}, nil)
	data = b2.Serialize()
	nan := math.Float64bits(math.NaN())
	for i := 0; i < 8; i++ {
		data[16+i] = byte(nan >> (8 * i))
	}
	_, err = UnserializeBound(data, time.Hour, 0)
	assert.ErrorIs(t, err, ErrInvalidData)
}
