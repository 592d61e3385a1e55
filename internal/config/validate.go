// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/carbonara-project/carbonara/pkg/log"
)

const configSchema = `{
  "type": "object",
  "properties": {
    "addr": { "type": "string" },
    "log_level": { "enum": ["debug", "info", "warn", "err", "crit"] },
    "log_date_time": { "type": "boolean" },
    "storage": {
      "type": "object",
      "properties": {
        "driver": { "enum": ["memory", "file", "s3", "redis"] },
        "write_full": { "type": "boolean" },
        "num_workers": { "type": "integer", "minimum": 1 },
        "cache_size": { "type": "integer", "minimum": 0 },
        "file": {
          "type": "object",
          "properties": { "path": { "type": "string" } },
          "required": ["path"]
        },
        "s3": {
          "type": "object",
          "properties": {
            "bucket": { "type": "string" },
            "region": { "type": "string" },
            "endpoint": { "type": "string" },
            "access_key": { "type": "string" },
            "secret_key": { "type": "string" },
            "prefix": { "type": "string" }
          },
          "required": ["bucket"]
        },
        "redis": {
          "type": "object",
          "properties": {
            "addr": { "type": "string" },
            "password": { "type": "string" },
            "db": { "type": "integer" }
          },
          "required": ["addr"]
        }
      },
      "required": ["driver"]
    },
    "incoming": {
      "type": "object",
      "properties": {
        "driver": { "enum": ["memory", "file", "redis"] },
        "path": { "type": "string" },
        "addr": { "type": "string" },
        "password": { "type": "string" },
        "db": { "type": "integer" }
      },
      "required": ["driver"]
    },
    "indexer": {
      "type": "object",
      "properties": {
        "driver": { "enum": ["sqlite3"] },
        "dsn": { "type": "string" }
      },
      "required": ["driver", "dsn"]
    },
    "metricd": {
      "type": "object",
      "properties": {
        "processing_interval": { "type": "string" },
        "report_interval": { "type": "string" }
      }
    }
  },
  "required": ["storage", "incoming", "indexer"]
}`

// Validate checks raw configuration JSON against a schema and aborts on the
// first violation.
func Validate(schema string, raw json.RawMessage) {
	s, err := jsonschema.CompileString("config.json", schema)
	if err != nil {
		log.Fatalf("config: compiling schema: %v", err)
	}
	var v any
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		log.Fatalf("config: parsing: %v", err)
	}
	if err := s.Validate(v); err != nil {
		log.Fatalf("config: validating: %v", err)
	}
}
