// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package archivepolicy models the retention and aggregation schedule
// attached to a metric.
package archivepolicy

import (
	"sort"
	"time"
)

// Item is one (granularity, point count) pair of a policy definition.
type Item struct {
	Granularity time.Duration `json:"granularity"`
	Points      uint32        `json:"points"`
}

// Timespan is how far back this item retains data.
func (i Item) Timespan() time.Duration {
	return i.Granularity * time.Duration(i.Points)
}

// DefaultAggregationMethods are the methods enabled on a policy that does
// not name its own.
var DefaultAggregationMethods = []string{"mean", "max", "min"}

// ArchivePolicy is a named retention + aggregation schedule. BackWindow is
// the number of blocks (of the greatest granularity) a late measure may
// still reach back into.
type ArchivePolicy struct {
	Name               string   `json:"name"`
	BackWindow         int64    `json:"back_window"`
	Definition         []Item   `json:"definition"`
	AggregationMethods []string `json:"aggregation_methods"`
}

// New returns a policy with the default aggregation methods.
func New(name string, backWindow int64, definition []Item) *ArchivePolicy {
	return &ArchivePolicy{
		Name:               name,
		BackWindow:         backWindow,
		Definition:         definition,
		AggregationMethods: append([]string(nil), DefaultAggregationMethods...),
	}
}

// MaxBlockSize is the greatest granularity of the policy.
func (p *ArchivePolicy) MaxBlockSize() time.Duration {
	var max time.Duration
	for _, item := range p.Definition {
		if item.Granularity > max {
			max = item.Granularity
		}
	}
	return max
}

// ItemFor returns the definition item at exactly the given granularity, or
// nil.
func (p *ArchivePolicy) ItemFor(granularity time.Duration) *Item {
	for i := range p.Definition {
		if p.Definition[i].Granularity == granularity {
			return &p.Definition[i]
		}
	}
	return nil
}

// HasAggregation reports whether the method is enabled on this policy.
func (p *ArchivePolicy) HasAggregation(method string) bool {
	for _, m := range p.AggregationMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Granularities returns the policy granularities, largest first.
func (p *ArchivePolicy) Granularities() []time.Duration {
	out := make([]time.Duration, 0, len(p.Definition))
	for _, item := range p.Definition {
		out = append(out, item.Granularity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// Defaults returns the built-in low/medium/high ladder.
func Defaults() []*ArchivePolicy {
	return []*ArchivePolicy{
		New("low", 0, []Item{
			{Granularity: 5 * time.Minute, Points: 12},
			{Granularity: time.Hour, Points: 24},
			{Granularity: 24 * time.Hour, Points: 30},
		}),
		New("medium", 0, []Item{
			{Granularity: time.Minute, Points: 60},
			{Granularity: 5 * time.Minute, Points: 12},
			{Granularity: time.Hour, Points: 24},
			{Granularity: 24 * time.Hour, Points: 30},
		}),
		New("high", 0, []Item{
			{Granularity: time.Second, Points: 3600},
			{Granularity: time.Minute, Points: 60},
			{Granularity: time.Hour, Points: 24},
		}),
	}
}
