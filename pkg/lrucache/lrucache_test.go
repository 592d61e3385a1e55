// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lrucache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGetDel(t *testing.T) {
	c := New(1024)
	c.Put("a", 1, 100)
	c.Put("b", 2, 100)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Del("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	// Deleting twice is fine.
	c.Del("a")
	assert.Equal(t, 1, c.Len())
}

func TestEviction(t *testing.T) {
	c := New(250)
	c.Put("a", 1, 100)
	c.Put("b", 2, 100)
	_, _ = c.Get("a") // refresh a, b becomes the LRU entry
	c.Put("c", 3, 100)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestDelPrefix(t *testing.T) {
	c := New(1024)
	c.Put("m1/mean/60", 1, 10)
	c.Put("m1/max/60", 2, 10)
	c.Put("m2/mean/60", 3, 10)

	c.DelPrefix("m1/")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("m2/mean/60")
	assert.True(t, ok)
}

func TestReplace(t *testing.T) {
	c := New(1024)
	c.Put("a", 1, 100)
	c.Put("a", 2, 100)
	v, _ := c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}
