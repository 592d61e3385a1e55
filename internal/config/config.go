// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the daemon configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/carbonara-project/carbonara/pkg/log"
)

// MetricdConfig tunes the background processing services.
type MetricdConfig struct {
	// ProcessingInterval is the pause between processing ticks.
	ProcessingInterval string `json:"processing_interval"`
	// ReportInterval is the pause between backlog report log lines; empty
	// disables the report service.
	ReportInterval string `json:"report_interval"`
}

// IndexerConfig points at the catalogue database.
type IndexerConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ProgramConfig is the top-level configuration shape.
type ProgramConfig struct {
	// Addr is the listen address of the health/metrics endpoint.
	Addr string `json:"addr"`

	LogLevel    string `json:"log_level"`
	LogDateTime bool   `json:"log_date_time"`

	Storage  json.RawMessage `json:"storage"`
	Incoming json.RawMessage `json:"incoming"`
	Indexer  IndexerConfig   `json:"indexer"`
	Metricd  MetricdConfig   `json:"metricd"`
}

// Keys holds the active configuration after Init.
var Keys = ProgramConfig{
	Addr:     "localhost:8084",
	LogLevel: "info",
	Metricd: MetricdConfig{
		ProcessingInterval: "30s",
		ReportInterval:     "2m",
	},
}

// Init loads and validates the configuration file at path.
func Init(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: reading %s: %v", path, err)
	}
	Validate(configSchema, raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatalf("config: decoding %s: %v", path, err)
	}
}
