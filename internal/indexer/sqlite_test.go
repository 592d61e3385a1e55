// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package indexer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonara-project/carbonara/pkg/archivepolicy"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	idx, err := Connect(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	for _, p := range archivepolicy.Defaults() {
		require.NoError(t, idx.CreateArchivePolicy(context.Background(), p))
	}
	return idx
}

func TestCreateAndListMetric(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	id := uuid.New()
	m, err := idx.CreateMetric(ctx, id, "cpu.util", "low")
	require.NoError(t, err)
	assert.Equal(t, "low", m.PolicyName)
	require.NotNil(t, m.Policy)
	assert.Equal(t, 24*time.Hour, m.Policy.MaxBlockSize())

	got, err := idx.ListMetrics(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "cpu.util", got[0].Name)

	// Unknown ids are skipped, not an error.
	got, err = idx.ListMetrics(ctx, id.String(), uuid.NewString())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	all, err := idx.ListMetrics(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateMetricUnknownPolicy(t *testing.T) {
	idx := newTestIndexer(t)
	_, err := idx.CreateMetric(context.Background(), uuid.New(), "x", "nope")
	assert.ErrorIs(t, err, ErrNoSuchArchivePolicy)
}

func TestDeleteMetric(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	id := uuid.New()
	_, err := idx.CreateMetric(ctx, id, "x", "low")
	require.NoError(t, err)

	require.NoError(t, idx.DeleteMetric(ctx, id))
	assert.ErrorIs(t, idx.DeleteMetric(ctx, id), ErrNoSuchMetric)

	got, err := idx.ListMetrics(ctx, id.String())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDuplicateArchivePolicy(t *testing.T) {
	idx := newTestIndexer(t)
	err := idx.CreateArchivePolicy(context.Background(),
		archivepolicy.New("low", 0, []archivepolicy.Item{{Granularity: time.Minute, Points: 5}}))
	assert.ErrorIs(t, err, ErrArchivePolicyAlreadyExists)
}

func TestUpdateArchivePolicy(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	id := uuid.New()
	_, err := idx.CreateMetric(ctx, id, "x", "low")
	require.NoError(t, err)

	items := []archivepolicy.Item{{Granularity: time.Minute, Points: 10}}
	require.NoError(t, idx.UpdateArchivePolicy(ctx, "low", items))

	// Cached metrics must see the new definition.
	got, err := idx.ListMetrics(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, items, got[0].Policy.Definition)

	assert.ErrorIs(t, idx.UpdateArchivePolicy(ctx, "nope", items), ErrNoSuchArchivePolicy)
}
