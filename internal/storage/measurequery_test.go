// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustQuery(t *testing.T, tree map[string]any) *MeasureQuery {
	t.Helper()
	q, err := NewMeasureQuery(tree)
	require.NoError(t, err)
	return q
}

func TestMeasureQueryEqual(t *testing.T) {
	q := mustQuery(t, map[string]any{"=": 4})
	assert.True(t, q.Match(4))
	assert.False(t, q.Match(40))
}

func TestMeasureQueryGT(t *testing.T) {
	q := mustQuery(t, map[string]any{">": 4})
	assert.True(t, q.Match(40))
	assert.False(t, q.Match(4))
}

func TestMeasureQueryAnd(t *testing.T) {
	q := mustQuery(t, map[string]any{"and": []any{
		map[string]any{">": 4},
		map[string]any{"<": 10},
	}})
	assert.True(t, q.Match(5))
	assert.False(t, q.Match(40))
	assert.False(t, q.Match(1))
}

func TestMeasureQueryOr(t *testing.T) {
	q := mustQuery(t, map[string]any{"or": []any{
		map[string]any{"=": 4},
		map[string]any{"=": 10},
	}})
	assert.True(t, q.Match(4))
	assert.True(t, q.Match(10))
	assert.False(t, q.Match(-1))
}

func TestMeasureQueryNot(t *testing.T) {
	q := mustQuery(t, map[string]any{"not": map[string]any{"=": 4}})
	assert.False(t, q.Match(4))
	assert.True(t, q.Match(5))
}

func TestMeasureQueryModulo(t *testing.T) {
	q := mustQuery(t, map[string]any{"=": []any{
		map[string]any{"%": 5},
		0,
	}})
	assert.True(t, q.Match(5))
	assert.True(t, q.Match(10))
	assert.False(t, q.Match(-1))
	assert.False(t, q.Match(6))
}

func TestMeasureQueryMath(t *testing.T) {
	q := mustQuery(t, map[string]any{"and": []any{
		// v+5 is at least 0
		map[string]any{"≥": []any{map[string]any{"+": 5}, 0}},
		// v-6 is not 5
		map[string]any{"≠": []any{5, map[string]any{"-": 6}}},
	}})
	assert.True(t, q.Match(5))
	assert.True(t, q.Match(10))
	assert.False(t, q.Match(11))
}

func TestMeasureQueryEmpty(t *testing.T) {
	q := mustQuery(t, map[string]any{})
	assert.False(t, q.Match(5))
	assert.False(t, q.Match(10))
}

func TestMeasureQueryBadFormat(t *testing.T) {
	_, err := NewMeasureQuery(map[string]any{"foo": []any{
		map[string]any{"=": 4},
		map[string]any{"=": 10},
	}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = NewMeasureQuery(map[string]any{"=": []any{1, 2, 3}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = NewMeasureQuery(map[string]any{"and": map[string]any{"=": 4}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
