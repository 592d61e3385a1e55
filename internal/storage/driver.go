// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// Driver is the key/value interface split blobs and the unaggregated blob
// are stored behind. Put must be atomic from a concurrent reader's point of
// view (the reader sees old or new bytes, never a mix); Get of an absent key
// returns (nil, nil); Delete of an absent key succeeds. Serialisation of
// writers per metric is the processor's job, not the driver's.
type Driver interface {
	fmt.Stringer

	// WriteFull reports whether the driver always rewrites whole blobs.
	// Such drivers compress even the still-mutable newest split on every
	// write.
	WriteFull() bool

	GetSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) ([]byte, error)
	PutSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey, data []byte) error
	DeleteSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) error

	// ListSplits returns every split key stored for the tuple. Leftovers
	// of a crashed writer must not show up after a successful Put on the
	// same key.
	ListSplits(ctx context.Context, metricID uuid.UUID, aggregation string, sampling time.Duration) ([]carbonara.SplitKey, error)

	GetUnaggregated(ctx context.Context, metricID uuid.UUID) ([]byte, error)
	PutUnaggregated(ctx context.Context, metricID uuid.UUID, data []byte) error

	// DeleteMetric removes every key stored under the metric, including
	// the unaggregated blob.
	DeleteMetric(ctx context.Context, metricID uuid.UUID) error
}
