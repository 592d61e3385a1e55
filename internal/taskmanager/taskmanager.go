// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskmanager schedules the recurring background services of the
// daemon: the processing tick and the backlog report.
package taskmanager

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/carbonara-project/carbonara/internal/config"
	"github.com/carbonara-project/carbonara/internal/incoming"
	"github.com/carbonara-project/carbonara/internal/indexer"
	"github.com/carbonara-project/carbonara/internal/storage"
	"github.com/carbonara-project/carbonara/pkg/log"
)

var s gocron.Scheduler

// Start registers and launches the background services.
func Start(store *storage.Storage, index *indexer.Indexer, inc incoming.Driver) {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		log.Fatalf("taskmanager: creating scheduler: %v", err)
	}

	interval, err := time.ParseDuration(config.Keys.Metricd.ProcessingInterval)
	if err != nil || interval <= 0 {
		log.Fatalf("taskmanager: invalid processing interval %q", config.Keys.Metricd.ProcessingInterval)
	}
	RegisterProcessingService(interval, store, index, inc)

	if config.Keys.Metricd.ReportInterval != "" {
		reportInterval, err := time.ParseDuration(config.Keys.Metricd.ReportInterval)
		if err != nil || reportInterval <= 0 {
			log.Fatalf("taskmanager: invalid report interval %q", config.Keys.Metricd.ReportInterval)
		}
		RegisterReportService(reportInterval, inc)
	}

	s.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func Shutdown() {
	if s != nil {
		if err := s.Shutdown(); err != nil {
			log.Errorf("taskmanager: shutdown: %v", err)
		}
	}
}
