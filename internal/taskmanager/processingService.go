// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/carbonara-project/carbonara/internal/incoming"
	"github.com/carbonara-project/carbonara/internal/indexer"
	"github.com/carbonara-project/carbonara/internal/storage"
	"github.com/carbonara-project/carbonara/pkg/log"
)

// RegisterProcessingService schedules the periodic processing tick: fold
// every pending measure into the aggregates, then purge queue entries of
// metrics the indexer dropped.
func RegisterProcessingService(interval time.Duration, store *storage.Storage, index *indexer.Indexer, inc incoming.Driver) {
	log.Infof("taskmanager: processing every %s", interval)
	_, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx := context.Background()
			ids, err := inc.ListMetricsWithMeasures(ctx)
			if err != nil {
				log.Errorf("taskmanager: listing pending metrics: %v", err)
				return
			}
			if len(ids) == 0 {
				return
			}
			store.ProcessBackgroundTasks(ctx, index, inc, ids, false)
			if err := store.ExpungeMetrics(ctx, index, inc); err != nil {
				log.Errorf("taskmanager: expunging metrics: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatalf("taskmanager: registering processing service: %v", err)
	}
}
