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
	"github.com/carbonara-project/carbonara/pkg/log"
)

// RegisterReportService schedules a periodic backlog summary log line.
func RegisterReportService(interval time.Duration, inc incoming.Driver) {
	log.Infof("taskmanager: reporting backlog every %s", interval)
	_, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			report, err := incoming.MeasuresReport(context.Background(), inc, false)
			if err != nil {
				log.Errorf("taskmanager: building backlog report: %v", err)
				return
			}
			log.Infof("taskmanager: backlog: %d measures across %d metrics",
				report.Summary.Measures, report.Summary.Metrics)
		}),
	)
	if err != nil {
		log.Fatalf("taskmanager: registering report service: %v", err)
	}
}
