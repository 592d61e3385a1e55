// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// FileDriverConfig configures the file split store.
type FileDriverConfig struct {
	Path string `json:"path"`
}

// FileDriver stores one file per split under
// <basepath>/<metric-id>/<aggregation>_<sampling-ns>/<key-seconds> and the
// unaggregated blob under <basepath>/<metric-id>/none. Writes go through a
// dot-prefixed temp file and a rename, which makes Put atomic and keeps
// leftovers of crashed writers out of listings.
type FileDriver struct {
	basepath string
}

// NewFileDriver returns a file store rooted at cfg.Path.
func NewFileDriver(cfg FileDriverConfig) (*FileDriver, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: empty file driver path")
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, err
	}
	return &FileDriver{basepath: cfg.Path}, nil
}

func (d *FileDriver) String() string { return "FileDriver: " + d.basepath }

// WriteFull is true: files are always rewritten whole, so even the newest
// split is compressed on every write.
func (d *FileDriver) WriteFull() bool { return true }

func (d *FileDriver) seriesDir(metricID uuid.UUID, aggregation string, sampling time.Duration) string {
	return filepath.Join(d.basepath, metricID.String(),
		fmt.Sprintf("%s_%d", aggregation, int64(sampling)))
}

func (d *FileDriver) splitPath(metricID uuid.UUID, aggregation string, key carbonara.SplitKey) string {
	return filepath.Join(d.seriesDir(metricID, aggregation, key.Sampling),
		strconv.FormatInt(key.Timestamp/int64(time.Second), 10))
}

func (d *FileDriver) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (d *FileDriver) GetSplit(_ context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) ([]byte, error) {
	return read(d.splitPath(metricID, aggregation, key))
}

func (d *FileDriver) PutSplit(_ context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey, data []byte) error {
	return d.write(d.splitPath(metricID, aggregation, key), data)
}

func (d *FileDriver) DeleteSplit(_ context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) error {
	err := os.Remove(d.splitPath(metricID, aggregation, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (d *FileDriver) ListSplits(_ context.Context, metricID uuid.UUID, aggregation string, sampling time.Duration) ([]carbonara.SplitKey, error) {
	entries, err := os.ReadDir(d.seriesDir(metricID, aggregation, sampling))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	keys := make([]carbonara.SplitKey, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		sec, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, carbonara.SplitKey{
			Timestamp: sec * int64(time.Second),
			Sampling:  sampling,
		})
	}
	return keys, nil
}

func (d *FileDriver) GetUnaggregated(_ context.Context, metricID uuid.UUID) ([]byte, error) {
	return read(filepath.Join(d.basepath, metricID.String(), "none"))
}

func (d *FileDriver) PutUnaggregated(_ context.Context, metricID uuid.UUID, data []byte) error {
	return d.write(filepath.Join(d.basepath, metricID.String(), "none"), data)
}

func (d *FileDriver) DeleteMetric(_ context.Context, metricID uuid.UUID) error {
	return os.RemoveAll(filepath.Join(d.basepath, metricID.String()))
}
