// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package incoming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
	"github.com/carbonara-project/carbonara/pkg/log"
)

// FileConfig configures the file queue driver.
type FileConfig struct {
	Path string `json:"path"`
}

// File stores one batch file per AddMeasures call under
// <path>/measure/<metric-id>/<uuid>-<count>. The count in the name lets
// BuildReport total measures without decoding payloads.
type File struct {
	basepath string
}

// NewFile returns a file queue rooted at cfg.Path.
func NewFile(cfg FileConfig) (*File, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("incoming: empty file driver path")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Path, "measure"), 0o750); err != nil {
		return nil, err
	}
	return &File{basepath: cfg.Path}, nil
}

func (f *File) String() string { return "File: " + f.basepath }

func (f *File) metricDir(metricID string) string {
	return filepath.Join(f.basepath, "measure", metricID)
}

func (f *File) AddMeasures(_ context.Context, metricID uuid.UUID, measures []carbonara.Measure) error {
	if len(measures) == 0 {
		return nil
	}
	dir := f.metricDir(metricID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d", uuid.NewString(), len(measures))
	tmp := filepath.Join(dir, "."+name)
	if err := os.WriteFile(tmp, encodeMeasures(measures), 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

func (f *File) ProcessMeasures(_ context.Context, metricID uuid.UUID, fn func([]carbonara.Measure) error) error {
	dir := f.metricDir(metricID.String())
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return fn(nil)
	} else if err != nil {
		return err
	}

	var measures []carbonara.Measure
	var processed []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		batch, err := decodeMeasures(data)
		if err != nil {
			log.Warnf("incoming: dropping unreadable batch %s: %v", path, err)
			processed = append(processed, path)
			continue
		}
		measures = append(measures, batch...)
		processed = append(processed, path)
	}

	if err := fn(measures); err != nil {
		return err
	}
	for _, path := range processed {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	// Leave the directory around if new batches raced in.
	os.Remove(dir)
	return nil
}

func (f *File) ListMetricsWithMeasures(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.basepath, "measure"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, _, err := f.countPending(e.Name()); err == nil && n > 0 {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func (f *File) countPending(metricID string) (files, measures int, err error) {
	entries, err := os.ReadDir(f.metricDir(metricID))
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	} else if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files++
		if i := strings.LastIndexByte(e.Name(), '-'); i >= 0 {
			if n, err := strconv.Atoi(e.Name()[i+1:]); err == nil {
				measures += n
			}
		}
	}
	return files, measures, nil
}

func (f *File) BuildReport(ctx context.Context, details bool) (int, int, map[string]int, error) {
	entries, err := os.ReadDir(filepath.Join(f.basepath, "measure"))
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil, nil
	} else if err != nil {
		return 0, 0, nil, err
	}
	var metrics, measures int
	var det map[string]int
	if details {
		det = map[string]int{}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, count, err := f.countPending(e.Name())
		if err != nil {
			return 0, 0, nil, err
		}
		if files == 0 {
			continue
		}
		metrics++
		measures += count
		if details {
			det[e.Name()] = count
		}
	}
	return metrics, measures, det, nil
}

func (f *File) Expunge(_ context.Context, metricID string) error {
	return os.RemoveAll(f.metricDir(metricID))
}
