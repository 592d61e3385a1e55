// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package incoming

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

func testMeasures(n int) []carbonara.Measure {
	base := time.Date(2014, 1, 1, 12, 0, 0, 0, time.UTC).UnixNano()
	out := make([]carbonara.Measure, n)
	for i := range out {
		out[i] = carbonara.Measure{Timestamp: base + int64(i)*int64(time.Second), Value: float64(i)}
	}
	return out
}

func forEachQueue(t *testing.T, fn func(t *testing.T, d Driver)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("file", func(t *testing.T) {
		d, err := NewFile(FileConfig{Path: t.TempDir()})
		require.NoError(t, err)
		fn(t, d)
	})
}

func TestQueueAddProcess(t *testing.T) {
	forEachQueue(t, func(t *testing.T, d Driver) {
		ctx := context.Background()
		id := uuid.New()
		require.NoError(t, d.AddMeasures(ctx, id, testMeasures(3)))
		require.NoError(t, d.AddMeasures(ctx, id, testMeasures(2)))

		ids, err := d.ListMetricsWithMeasures(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{id.String()}, ids)

		var got []carbonara.Measure
		require.NoError(t, d.ProcessMeasures(ctx, id, func(measures []carbonara.Measure) error {
			got = measures
			return nil
		}))
		assert.Len(t, got, 5)

		// Processed batches are gone.
		ids, err = d.ListMetricsWithMeasures(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestQueueKeepsMeasuresOnFailure(t *testing.T) {
	forEachQueue(t, func(t *testing.T, d Driver) {
		ctx := context.Background()
		id := uuid.New()
		require.NoError(t, d.AddMeasures(ctx, id, testMeasures(3)))

		err := d.ProcessMeasures(ctx, id, func([]carbonara.Measure) error {
			return fmt.Errorf("boom")
		})
		require.Error(t, err)

		var got []carbonara.Measure
		require.NoError(t, d.ProcessMeasures(ctx, id, func(measures []carbonara.Measure) error {
			got = measures
			return nil
		}))
		assert.Len(t, got, 3)
	})
}

func TestQueueReport(t *testing.T) {
	forEachQueue(t, func(t *testing.T, d Driver) {
		ctx := context.Background()
		id1, id2 := uuid.New(), uuid.New()
		require.NoError(t, d.AddMeasures(ctx, id1, testMeasures(3)))
		require.NoError(t, d.AddMeasures(ctx, id2, testMeasures(4)))

		report, err := MeasuresReport(ctx, d, true)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Summary.Metrics)
		assert.Equal(t, 7, report.Summary.Measures)
		assert.Equal(t, 3, report.Details[id1.String()])
		assert.Equal(t, 4, report.Details[id2.String()])

		report, err = MeasuresReport(ctx, d, false)
		require.NoError(t, err)
		assert.Nil(t, report.Details)
	})
}

func TestQueueExpunge(t *testing.T) {
	forEachQueue(t, func(t *testing.T, d Driver) {
		ctx := context.Background()
		id := uuid.New()
		require.NoError(t, d.AddMeasures(ctx, id, testMeasures(3)))
		require.NoError(t, d.Expunge(ctx, id.String()))

		ids, err := d.ListMetricsWithMeasures(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		// Expunge of an unknown metric is fine.
		require.NoError(t, d.Expunge(ctx, uuid.NewString()))
	})
}

func TestMeasureBatchRoundTrip(t *testing.T) {
	measures := testMeasures(4)
	got, err := decodeMeasures(encodeMeasures(measures))
	require.NoError(t, err)
	assert.Equal(t, measures, got)

	_, err = decodeMeasures([]byte("short"))
	assert.Error(t, err)
}
