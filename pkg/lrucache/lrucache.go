// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lrucache implements a byte-size-bounded LRU cache keyed by string.
// It is used to keep decoded immutable split blobs around between queries.
package lrucache

import (
	"strings"
	"sync"
)

type entry struct {
	key        string
	value      any
	size       int
	prev, next *entry
}

// Cache is a concurrency-safe LRU cache. The zero value is not usable; use
// New.
type Cache struct {
	mu         sync.Mutex
	maxMemory  int
	usedMemory int
	entries    map[string]*entry
	head, tail *entry
}

// New returns a cache that evicts least-recently-used entries once the sum
// of entry sizes exceeds maxMemory bytes.
func New(maxMemory int) *Cache {
	return &Cache{
		maxMemory: maxMemory,
		entries:   map[string]*entry{},
	}
}

// Get returns the cached value for key, if any.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.unlink(e)
	c.pushFront(e)
	return e.value, true
}

// Put stores value under key with the given size estimate, replacing any
// previous entry.
func (c *Cache) Put(key string, value any, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
	e := &entry{key: key, value: value, size: size}
	c.entries[key] = e
	c.pushFront(e)
	c.usedMemory += size
	for c.usedMemory > c.maxMemory && c.tail != nil {
		c.remove(c.tail)
	}
}

// Del drops the entry for key, if present.
func (c *Cache) Del(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// DelPrefix drops every entry whose key starts with prefix.
func (c *Cache) DelPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			c.remove(e)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(e *entry) {
	c.unlink(e)
	delete(c.entries, e.key)
	c.usedMemory -= e.size
}

func (c *Cache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else if c.head == e {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if c.tail == e {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache) pushFront(e *entry) {
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}
