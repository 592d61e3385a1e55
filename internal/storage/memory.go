// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// MemoryDriver keeps all blobs in process memory. It supports partial
// updates trivially, so it does not write full: the newest split stays
// uncompressed until it closes.
type MemoryDriver struct {
	mu           sync.RWMutex
	splits       map[string]map[carbonara.SplitKey][]byte // metric/aggregation -> key -> blob
	unaggregated map[string][]byte
}

// NewMemoryDriver returns an empty in-memory store.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		splits:       map[string]map[carbonara.SplitKey][]byte{},
		unaggregated: map[string][]byte{},
	}
}

func (d *MemoryDriver) String() string { return "MemoryDriver: local" }

func (d *MemoryDriver) WriteFull() bool { return false }

func seriesKey(metricID uuid.UUID, aggregation string) string {
	return metricID.String() + "/" + aggregation
}

func (d *MemoryDriver) GetSplit(_ context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data := d.splits[seriesKey(metricID, aggregation)][key]
	if data == nil {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (d *MemoryDriver) PutSplit(_ context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sk := seriesKey(metricID, aggregation)
	if d.splits[sk] == nil {
		d.splits[sk] = map[carbonara.SplitKey][]byte{}
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	d.splits[sk][key] = stored
	return nil
}

func (d *MemoryDriver) DeleteSplit(_ context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.splits[seriesKey(metricID, aggregation)], key)
	return nil
}

func (d *MemoryDriver) ListSplits(_ context.Context, metricID uuid.UUID, aggregation string, sampling time.Duration) ([]carbonara.SplitKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var keys []carbonara.SplitKey
	for key := range d.splits[seriesKey(metricID, aggregation)] {
		if key.Sampling == sampling {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Timestamp < keys[j].Timestamp })
	return keys, nil
}

func (d *MemoryDriver) GetUnaggregated(_ context.Context, metricID uuid.UUID) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.unaggregated[metricID.String()]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (d *MemoryDriver) PutUnaggregated(_ context.Context, metricID uuid.UUID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	d.unaggregated[metricID.String()] = stored
	return nil
}

func (d *MemoryDriver) DeleteMetric(_ context.Context, metricID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.unaggregated, metricID.String())
	prefix := metricID.String() + "/"
	for sk := range d.splits {
		if len(sk) > len(prefix) && sk[:len(prefix)] == prefix {
			delete(d.splits, sk)
		}
	}
	return nil
}
