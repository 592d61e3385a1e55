// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package incoming

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// Memory is a process-local queue driver for tests and embedding.
type Memory struct {
	mu      sync.Mutex
	pending map[string][]carbonara.Measure
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{pending: map[string][]carbonara.Measure{}}
}

func (m *Memory) String() string { return "Memory: incoming" }

func (m *Memory) AddMeasures(_ context.Context, metricID uuid.UUID, measures []carbonara.Measure) error {
	if len(measures) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := metricID.String()
	m.pending[id] = append(m.pending[id], measures...)
	return nil
}

func (m *Memory) ProcessMeasures(_ context.Context, metricID uuid.UUID, fn func([]carbonara.Measure) error) error {
	id := metricID.String()
	m.mu.Lock()
	measures := m.pending[id]
	m.mu.Unlock()

	if err := fn(measures); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep whatever arrived while fn was running.
	if rest := m.pending[id]; len(rest) > len(measures) {
		m.pending[id] = rest[len(measures):]
	} else {
		delete(m.pending, id)
	}
	return nil
}

func (m *Memory) ListMetricsWithMeasures(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) BuildReport(_ context.Context, details bool) (int, int, map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var measures int
	var det map[string]int
	if details {
		det = make(map[string]int, len(m.pending))
	}
	for id, batch := range m.pending {
		measures += len(batch)
		if details {
			det[id] = len(batch)
		}
	}
	return len(m.pending), measures, det, nil
}

func (m *Memory) Expunge(_ context.Context, metricID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, metricID)
	return nil
}
