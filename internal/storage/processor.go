// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carbonara-project/carbonara/internal/incoming"
	"github.com/carbonara-project/carbonara/internal/indexer"
	"github.com/carbonara-project/carbonara/pkg/archivepolicy"
	"github.com/carbonara-project/carbonara/pkg/carbonara"
	"github.com/carbonara-project/carbonara/pkg/log"
)

// MetricIndex is the slice of the indexer the processor needs.
type MetricIndex interface {
	ListMetrics(ctx context.Context, ids ...string) ([]*indexer.Metric, error)
}

// ProcessBackgroundTasks pulls the pending measures of the given metrics out
// of the queue and folds them into the stored aggregates. Unknown metric ids
// are left queued for ExpungeMetrics. With sync true the metrics are
// processed sequentially on the calling goroutine, otherwise on the worker
// pool. Processing one metric is reentrant and idempotent: a batch is only
// removed from the queue once every artefact derived from it is committed.
func (s *Storage) ProcessBackgroundTasks(ctx context.Context, index MetricIndex, inc incoming.Driver, metricIDs []string, sync bool) {
	metrics, err := index.ListMetrics(ctx, metricIDs...)
	if err != nil {
		log.Errorf("storage: listing metrics to process: %v", err)
		return
	}
	known := make(map[string]struct{}, len(metrics))
	for _, m := range metrics {
		known[m.ID.String()] = struct{}{}
	}
	for _, id := range metricIDs {
		if _, ok := known[id]; !ok {
			log.Debugf("storage: metric %s not found in indexer, leaving measures queued", id)
		}
	}

	process := func(m *indexer.Metric) {
		if err := s.processMetric(ctx, m, inc); err != nil {
			processingErrors.Inc()
			log.Errorf("storage: processing metric %s: %v", m.ID, err)
		}
	}

	if sync {
		for _, m := range metrics {
			process(m)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(s.numWorkers)
	for _, m := range metrics {
		m := m
		g.Go(func() error {
			process(m)
			return nil
		})
	}
	g.Wait()
}

// processMetric folds all queued measures of one metric into its aggregates.
func (s *Storage) processMetric(ctx context.Context, m *indexer.Metric, inc incoming.Driver) error {
	l := s.metricLock(m.ID)
	l.Lock()
	defer l.Unlock()

	return inc.ProcessMeasures(ctx, m.ID, func(measures []carbonara.Measure) error {
		if len(measures) == 0 {
			return nil
		}
		if err := s.computeAndStoreTimeseries(ctx, m, measures); err != nil {
			return err
		}
		processedMetrics.Inc()
		processedMeasures.Add(float64(len(measures)))
		return nil
	})
}

func (s *Storage) computeAndStoreTimeseries(ctx context.Context, m *indexer.Metric, measures []carbonara.Measure) error {
	policy := m.Policy
	blockSize := policy.MaxBlockSize()
	if blockSize <= 0 {
		return nil
	}

	raw, err := s.driver.GetUnaggregated(ctx, m.ID)
	if err != nil {
		return err
	}
	var bound *carbonara.BoundTimeSerie
	if raw == nil {
		bound = carbonara.NewBoundTimeSerie(blockSize, policy.BackWindow)
	} else {
		bound, err = carbonara.UnserializeBound(raw, blockSize, policy.BackWindow)
		if errors.Is(err, carbonara.ErrInvalidData) {
			// The aggregates will be rebuilt from whatever splits
			// still decode plus the queued measures.
			log.Warnf("storage: unaggregated data of metric %s is corrupt, rebuilding: %v", m.ID, err)
			bound = carbonara.NewBoundTimeSerie(blockSize, policy.BackWindow)
		} else if err != nil {
			return err
		}
	}

	prevOldestMutable, hasPrev := bound.FirstBlockTimestamp()

	var aggErr error
	bound.SetValues(measures, func(accepted []carbonara.Measure) {
		if len(accepted) == 0 {
			return
		}
		newOldestMutable, _ := bound.FirstBlockTimestamp()
		for _, item := range policy.Definition {
			grouped := bound.GroupSerie(item.Granularity,
				carbonara.RoundTimestamp(accepted[0].Timestamp, item.Granularity))
			for _, method := range policy.AggregationMethods {
				if aggErr = s.updateAggregate(ctx, m, item, method, grouped,
					prevOldestMutable, hasPrev, newOldestMutable); aggErr != nil {
					return
				}
			}
		}
	})
	if aggErr != nil {
		return aggErr
	}

	return s.driver.PutUnaggregated(ctx, m.ID, bound.Serialize())
}

// updateAggregate folds the freshly grouped buckets of one
// (granularity, aggregation) pair into the stored split set: it deletes
// splits that fell out of retention, recompresses splits that became
// immutable since the previous cycle, and merges the new buckets into every
// affected split.
func (s *Storage) updateAggregate(ctx context.Context, m *indexer.Metric, item archivepolicy.Item, method string,
	grouped *carbonara.GroupedTimeSeries, prevOldestMutable int64, hasPrev bool, oldestMutable int64,
) error {
	serie, err := grouped.Aggregate(method)
	if err != nil {
		return err
	}
	if serie.Len() == 0 {
		return nil
	}
	granularity := item.Granularity

	existing, err := s.driver.ListSplits(ctx, m.ID, method, granularity)
	if err != nil {
		return err
	}

	// Retention: drop whole splits strictly older than the oldest split
	// that still intersects the policy timespan.
	var oldestKeyToKeep carbonara.SplitKey
	hasRetention := item.Timespan() > 0
	if hasRetention {
		last, _ := serie.Last()
		oldestKeyToKeep = carbonara.SplitKeyOf(last-int64(item.Timespan()), granularity)
		kept := existing[:0]
		for _, key := range existing {
			if key.Timestamp < oldestKeyToKeep.Timestamp {
				if err := s.deleteSplit(ctx, m.ID, method, key); err != nil {
					return err
				}
				continue
			}
			kept = append(kept, key)
		}
		existing = kept
	}

	// Compression transition: splits that moved out of the mutable window
	// since the previous cycle are rewritten compressed.
	if !s.writeFull && hasPrev {
		prevKey := carbonara.SplitKeyOf(prevOldestMutable, granularity)
		newKey := carbonara.SplitKeyOf(oldestMutable, granularity)
		if prevKey.Timestamp != newKey.Timestamp {
			for _, key := range existing {
				if key.Timestamp >= prevKey.Timestamp && key.Timestamp < newKey.Timestamp {
					if err := s.rewriteSplit(ctx, m, method, key); err != nil {
						return err
					}
				}
			}
		}
	}

	for _, split := range serie.Split() {
		if hasRetention && split.Key.Timestamp < oldestKeyToKeep.Timestamp {
			continue
		}
		closed := split.Key.End() <= oldestMutable
		if old, err := s.getSplitSerie(ctx, m.ID, method, split.Key); err != nil {
			if !errors.Is(err, carbonara.ErrInvalidData) {
				return err
			}
			log.Warnf("storage: corrupt split %s of metric %s (%s), overwriting: %v",
				split.Key, m.ID, method, err)
		} else {
			split.Serie.MergeUnder(old)
		}
		data, err := split.Serie.Serialize(split.Key, s.writeFull || closed)
		if err != nil {
			return err
		}
		if err := s.putSplit(ctx, m.ID, method, split.Key, data); err != nil {
			return err
		}
	}
	return nil
}

// rewriteSplit re-serialises one split compressed. A split that is missing
// or no longer decodes cannot be rewritten; that is not fatal, the data it
// held is already lost and a warning is all that remains.
func (s *Storage) rewriteSplit(ctx context.Context, m *indexer.Metric, method string, key carbonara.SplitKey) error {
	serie, err := s.getSplitSerie(ctx, m.ID, method, key)
	if err != nil {
		if errors.Is(err, carbonara.ErrInvalidData) {
			log.Warnf("storage: unable to recompress corrupt split %s of metric %s (%s): %v",
				key, m.ID, method, err)
			return nil
		}
		return err
	}
	if serie == nil {
		log.Warnf("storage: split %s of metric %s (%s) vanished before recompression",
			key, m.ID, method)
		return nil
	}
	data, err := serie.Serialize(key, true)
	if err != nil {
		return err
	}
	return s.putSplit(ctx, m.ID, method, key, data)
}

// DeleteMetric removes every stored artefact of the metric. Queue entries
// are left alone; ExpungeMetrics purges them once the indexer no longer
// knows the metric.
func (s *Storage) DeleteMetric(ctx context.Context, metricID uuid.UUID) error {
	l := s.metricLock(metricID)
	l.Lock()
	defer l.Unlock()
	s.cache.DelPrefix(metricID.String() + "/")
	if err := s.driver.DeleteMetric(ctx, metricID); err != nil {
		return err
	}
	s.locks.Delete(metricID)
	return nil
}

// ExpungeMetrics drops queued measures of metrics the indexer no longer
// knows about.
func (s *Storage) ExpungeMetrics(ctx context.Context, index MetricIndex, inc incoming.Driver) error {
	ids, err := inc.ListMetricsWithMeasures(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	metrics, err := index.ListMetrics(ctx, ids...)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(metrics))
	for _, m := range metrics {
		known[m.ID.String()] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		log.Debugf("storage: expunging measures of deleted metric %s", id)
		if err := inc.Expunge(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// GetUnaggregatedBlob returns the stored bound serie blob of a metric, or
// ErrMetricDoesNotExist when none is stored.
func (s *Storage) GetUnaggregatedBlob(ctx context.Context, metricID uuid.UUID) ([]byte, error) {
	data, err := s.driver.GetUnaggregated(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrMetricDoesNotExist
	}
	return data, nil
}

// PutUnaggregatedBlob overwrites the stored bound serie blob. Only tests
// and repair tooling have a reason to call this.
func (s *Storage) PutUnaggregatedBlob(ctx context.Context, metricID uuid.UUID, data []byte) error {
	return s.driver.PutUnaggregated(ctx, metricID, data)
}
