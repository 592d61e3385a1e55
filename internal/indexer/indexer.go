// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package indexer is the catalogue of metrics and archive policies. It is
// read-mostly: processing looks metrics up by id, the only writers are the
// policy CRUD operations and metric create/delete.
package indexer

import (
	"errors"

	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/archivepolicy"
)

var (
	// ErrNoSuchMetric is returned when a metric id is unknown.
	ErrNoSuchMetric = errors.New("indexer: no such metric")
	// ErrNoSuchArchivePolicy is returned when a policy name is unknown.
	ErrNoSuchArchivePolicy = errors.New("indexer: no such archive policy")
	// ErrArchivePolicyAlreadyExists is returned on duplicate policy names.
	ErrArchivePolicyAlreadyExists = errors.New("indexer: archive policy already exists")
)

// Metric is one catalogue entry. Policy is resolved at load time and always
// reflects the current item list; the policy name on a metric never changes.
type Metric struct {
	ID         uuid.UUID
	Name       string
	PolicyName string
	Policy     *archivepolicy.ArchivePolicy
}
