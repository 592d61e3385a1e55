// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/carbonara-project/carbonara/pkg/archivepolicy"
	"github.com/carbonara-project/carbonara/pkg/lrucache"
)

const schema = `
CREATE TABLE IF NOT EXISTS archive_policy (
    name TEXT PRIMARY KEY,
    back_window INTEGER NOT NULL DEFAULT 0,
    definition BLOB NOT NULL,
    aggregation_methods BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS metric (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    archive_policy_name TEXT NOT NULL,
    FOREIGN KEY (archive_policy_name) REFERENCES archive_policy (name)
);

CREATE INDEX IF NOT EXISTS idx_metric_policy ON metric(archive_policy_name);
`

// Indexer is a SQLite-backed catalogue. A single connection is enough;
// SQLite does not multithread and more connections would only wait on
// locks.
type Indexer struct {
	db    *sqlx.DB
	cache *lrucache.Cache
}

// Connect opens (and if needed initialises) the catalogue database at dsn.
func Connect(dsn string) (*Indexer, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Indexer{db: db, cache: lrucache.New(4 * 1024 * 1024)}, nil
}

// Close releases the database handle.
func (i *Indexer) Close() error { return i.db.Close() }

// CreateArchivePolicy stores a new policy.
func (i *Indexer) CreateArchivePolicy(ctx context.Context, p *archivepolicy.ArchivePolicy) error {
	def, err := json.Marshal(p.Definition)
	if err != nil {
		return err
	}
	methods, err := json.Marshal(p.AggregationMethods)
	if err != nil {
		return err
	}
	query, args, err := sq.Insert("archive_policy").
		Columns("name", "back_window", "definition", "aggregation_methods").
		Values(p.Name, p.BackWindow, def, methods).ToSql()
	if err != nil {
		return err
	}
	if _, err := i.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %q", ErrArchivePolicyAlreadyExists, p.Name)
	}
	return nil
}

// UpdateArchivePolicy replaces the item list of an existing policy. Metrics
// pick the new definition up on their next load; the processing cycle trims
// splits that fell out of the shrunk retention window.
func (i *Indexer) UpdateArchivePolicy(ctx context.Context, name string, items []archivepolicy.Item) error {
	def, err := json.Marshal(items)
	if err != nil {
		return err
	}
	query, args, err := sq.Update("archive_policy").
		Set("definition", def).
		Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return err
	}
	res, err := i.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrNoSuchArchivePolicy, name)
	}
	i.cache.DelPrefix("policy/")
	i.cache.DelPrefix("metric/")
	return nil
}

// GetArchivePolicy loads one policy by name.
func (i *Indexer) GetArchivePolicy(ctx context.Context, name string) (*archivepolicy.ArchivePolicy, error) {
	if v, ok := i.cache.Get("policy/" + name); ok {
		return v.(*archivepolicy.ArchivePolicy), nil
	}
	var row struct {
		Name       string `db:"name"`
		BackWindow int64  `db:"back_window"`
		Definition []byte `db:"definition"`
		Methods    []byte `db:"aggregation_methods"`
	}
	query, args, err := sq.Select("name", "back_window", "definition", "aggregation_methods").
		From("archive_policy").
		Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return nil, err
	}
	if err := i.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchArchivePolicy, name)
		}
		return nil, err
	}
	p := &archivepolicy.ArchivePolicy{Name: row.Name, BackWindow: row.BackWindow}
	if err := json.Unmarshal(row.Definition, &p.Definition); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(row.Methods, &p.AggregationMethods); err != nil {
		return nil, err
	}
	i.cache.Put("policy/"+name, p, len(row.Definition)+len(row.Methods)+64)
	return p, nil
}

// CreateMetric registers a metric under an existing policy.
func (i *Indexer) CreateMetric(ctx context.Context, id uuid.UUID, name, policyName string) (*Metric, error) {
	policy, err := i.GetArchivePolicy(ctx, policyName)
	if err != nil {
		return nil, err
	}
	query, args, err := sq.Insert("metric").
		Columns("id", "name", "archive_policy_name").
		Values(id.String(), name, policyName).ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := i.db.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	return &Metric{ID: id, Name: name, PolicyName: policyName, Policy: policy}, nil
}

// DeleteMetric removes a metric from the catalogue. Splits and queue
// entries are cleaned up separately (storage delete + expunge).
func (i *Indexer) DeleteMetric(ctx context.Context, id uuid.UUID) error {
	query, args, err := sq.Delete("metric").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return err
	}
	res, err := i.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchMetric, id)
	}
	i.cache.Del("metric/" + id.String())
	return nil
}

// ListMetrics loads metrics by id, skipping unknown ids. Without ids, every
// metric is returned.
func (i *Indexer) ListMetrics(ctx context.Context, ids ...string) ([]*Metric, error) {
	if len(ids) > 0 {
		var out []*Metric
		var misses []string
		for _, id := range ids {
			if v, ok := i.cache.Get("metric/" + id); ok {
				out = append(out, v.(*Metric))
			} else {
				misses = append(misses, id)
			}
		}
		if len(misses) == 0 {
			return out, nil
		}
		loaded, err := i.listMetrics(ctx, misses)
		if err != nil {
			return nil, err
		}
		return append(out, loaded...), nil
	}
	return i.listMetrics(ctx, nil)
}

func (i *Indexer) listMetrics(ctx context.Context, ids []string) ([]*Metric, error) {
	builder := sq.Select("id", "name", "archive_policy_name").From("metric")
	if len(ids) > 0 {
		builder = builder.Where(sq.Eq{"id": ids})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID         string `db:"id"`
		Name       string `db:"name"`
		PolicyName string `db:"archive_policy_name"`
	}
	if err := i.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*Metric, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, err
		}
		policy, err := i.GetArchivePolicy(ctx, row.PolicyName)
		if err != nil {
			return nil, err
		}
		m := &Metric{ID: id, Name: row.Name, PolicyName: row.PolicyName, Policy: policy}
		i.cache.Put("metric/"+row.ID, m, 128)
		out = append(out, m)
	}
	return out, nil
}
