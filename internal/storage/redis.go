// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// RedisDriverConfig configures the redis split store.
type RedisDriverConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// RedisDriver keeps one hash per (metric, aggregation, sampling) with the
// split key seconds as fields, and the unaggregated blob under a plain key.
// HSET replaces fields atomically, so the driver writes full.
type RedisDriver struct {
	client *redis.Client
}

// NewRedisDriver returns a store backed by the redis server at cfg.Addr.
func NewRedisDriver(cfg RedisDriverConfig) (*RedisDriver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisDriver{client: client}, nil
}

func (d *RedisDriver) String() string { return "RedisDriver: " + d.client.Options().Addr }

func (d *RedisDriver) WriteFull() bool { return true }

func seriesHash(metricID uuid.UUID, aggregation string, sampling time.Duration) string {
	return "split:" + metricID.String() + ":" + aggregation + ":" + strconv.FormatInt(int64(sampling), 10)
}

func splitField(key carbonara.SplitKey) string {
	return strconv.FormatInt(key.Timestamp/int64(time.Second), 10)
}

func (d *RedisDriver) GetSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) ([]byte, error) {
	data, err := d.client.HGet(ctx, seriesHash(metricID, aggregation, key.Sampling), splitField(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (d *RedisDriver) PutSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey, data []byte) error {
	return d.client.HSet(ctx, seriesHash(metricID, aggregation, key.Sampling), splitField(key), data).Err()
}

func (d *RedisDriver) DeleteSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) error {
	return d.client.HDel(ctx, seriesHash(metricID, aggregation, key.Sampling), splitField(key)).Err()
}

func (d *RedisDriver) ListSplits(ctx context.Context, metricID uuid.UUID, aggregation string, sampling time.Duration) ([]carbonara.SplitKey, error) {
	fields, err := d.client.HKeys(ctx, seriesHash(metricID, aggregation, sampling)).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]carbonara.SplitKey, 0, len(fields))
	for _, f := range fields {
		sec, err := strconv.ParseInt(f, 10, 64)
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

func unaggregatedKey(metricID uuid.UUID) string {
	return "unaggregated:" + metricID.String()
}

func (d *RedisDriver) GetUnaggregated(ctx context.Context, metricID uuid.UUID) ([]byte, error) {
	data, err := d.client.Get(ctx, unaggregatedKey(metricID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (d *RedisDriver) PutUnaggregated(ctx context.Context, metricID uuid.UUID, data []byte) error {
	return d.client.Set(ctx, unaggregatedKey(metricID), data, 0).Err()
}

func (d *RedisDriver) DeleteMetric(ctx context.Context, metricID uuid.UUID) error {
	var keys []string
	iter := d.client.Scan(ctx, 0, "split:"+metricID.String()+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	keys = append(keys, unaggregatedKey(metricID))
	return d.client.Del(ctx, keys...).Err()
}
