// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package storage is the split-storage engine: it processes queued measures
// into per-granularity aggregated splits behind a pluggable key/value driver
// and answers range and cross-metric queries from them.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
	"github.com/carbonara-project/carbonara/pkg/log"
	"github.com/carbonara-project/carbonara/pkg/lrucache"
)

var (
	// ErrMetricDoesNotExist is returned for operations on unknown metrics.
	ErrMetricDoesNotExist = errors.New("storage: metric does not exist")
	// ErrAggregationDoesNotExist is returned when the requested
	// aggregation method is not enabled on the metric's policy.
	ErrAggregationDoesNotExist = errors.New("storage: aggregation does not exist")
	// ErrGranularityDoesNotExist is returned when the requested
	// granularity is not part of the metric's policy.
	ErrGranularityDoesNotExist = errors.New("storage: granularity does not exist")
	// ErrMetricUnaggregatable is returned when cross-metric metrics share
	// no granularity.
	ErrMetricUnaggregatable = errors.New("storage: metrics cannot be aggregated together")
	// ErrInvalidQuery is returned for malformed measure queries.
	ErrInvalidQuery = errors.New("storage: invalid query")
)

// Config selects and configures a split store driver.
type Config struct {
	Driver string `json:"driver"`

	// WriteFull overrides the driver default: when true, even the newest,
	// still-mutable split is compressed on every write.
	WriteFull *bool `json:"write_full,omitempty"`

	// NumWorkers bounds the processing worker pool. Defaults to half the
	// CPUs plus one, capped at 10.
	NumWorkers int `json:"num_workers,omitempty"`

	// CacheSize bounds the decoded-split LRU cache in bytes.
	CacheSize int `json:"cache_size,omitempty"`

	File  FileDriverConfig  `json:"file,omitempty"`
	S3    S3DriverConfig    `json:"s3,omitempty"`
	Redis RedisDriverConfig `json:"redis,omitempty"`
}

// Storage drives one split store. All methods are safe for concurrent use;
// writers per metric are serialised internally.
type Storage struct {
	driver     Driver
	writeFull  bool
	numWorkers int
	cache      *lrucache.Cache
	locks      sync.Map // metric id -> *sync.Mutex
}

// New wraps an already-built driver.
func New(driver Driver, cfg Config) *Storage {
	writeFull := driver.WriteFull()
	if cfg.WriteFull != nil {
		writeFull = *cfg.WriteFull
	}
	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = min(runtime.NumCPU()/2+1, 10)
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 32 * 1024 * 1024
	}
	return &Storage{
		driver:     driver,
		writeFull:  writeFull,
		numWorkers: workers,
		cache:      lrucache.New(cacheSize),
	}
}

// Open builds a storage from raw JSON configuration.
func Open(ctx context.Context, rawConfig json.RawMessage) (*Storage, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, err
	}
	var (
		driver Driver
		err    error
	)
	switch cfg.Driver {
	case "memory":
		driver = NewMemoryDriver()
	case "file":
		driver, err = NewFileDriver(cfg.File)
	case "s3":
		driver, err = NewS3Driver(ctx, cfg.S3)
	case "redis":
		driver, err = NewRedisDriver(cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Infof("storage: using %s", driver)
	return New(driver, cfg), nil
}

func (s *Storage) String() string { return s.driver.String() }

// WriteFull reports whether the newest split is compressed on every write.
func (s *Storage) WriteFull() bool { return s.writeFull }

// ListSplitKeys returns the stored split keys for one
// (metric, aggregation, sampling) tuple.
func (s *Storage) ListSplitKeys(ctx context.Context, metricID uuid.UUID, aggregation string, sampling time.Duration) ([]carbonara.SplitKey, error) {
	return s.driver.ListSplits(ctx, metricID, aggregation, sampling)
}

// GetSplitBlob returns the raw stored blob of one split, nil if absent.
func (s *Storage) GetSplitBlob(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) ([]byte, error) {
	return s.driver.GetSplit(ctx, metricID, aggregation, key)
}

func (s *Storage) metricLock(metricID uuid.UUID) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(metricID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func cacheKey(metricID uuid.UUID, aggregation string, key carbonara.SplitKey) string {
	return fmt.Sprintf("%s/%s/%d/%d", metricID, aggregation, int64(key.Sampling), key.Timestamp)
}

// getSplitSerie loads and decodes one split, nil if absent. Decoded
// compressed splits are immutable and kept in the LRU cache.
func (s *Storage) getSplitSerie(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) (*carbonara.AggregatedTimeSerie, error) {
	ck := cacheKey(metricID, aggregation, key)
	if v, ok := s.cache.Get(ck); ok {
		return v.(*carbonara.AggregatedTimeSerie), nil
	}
	data, err := s.driver.GetSplit(ctx, metricID, aggregation, key)
	if err != nil || data == nil {
		return nil, err
	}
	serie, err := carbonara.UnserializeSplit(data, key, aggregation)
	if err != nil {
		return nil, err
	}
	if compressed, err := carbonara.IsCompressed(data); err == nil && compressed {
		s.cache.Put(ck, serie, len(data)+16*serie.Len())
	}
	return serie, nil
}

func (s *Storage) putSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey, data []byte) error {
	s.cache.Del(cacheKey(metricID, aggregation, key))
	return s.driver.PutSplit(ctx, metricID, aggregation, key, data)
}

func (s *Storage) deleteSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) error {
	s.cache.Del(cacheKey(metricID, aggregation, key))
	return s.driver.DeleteSplit(ctx, metricID, aggregation, key)
}
