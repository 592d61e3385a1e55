// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package incoming

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
	"github.com/carbonara-project/carbonara/pkg/log"
)

// RedisConfig configures the redis queue driver.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Redis keeps one list of batch payloads per metric under
// incoming:<metric-id>.
type Redis struct {
	client *redis.Client
}

const redisKeyPrefix = "incoming:"

// NewRedis returns a queue backed by the redis server at cfg.Addr.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) String() string { return "Redis: " + r.client.Options().Addr }

func (r *Redis) AddMeasures(ctx context.Context, metricID uuid.UUID, measures []carbonara.Measure) error {
	if len(measures) == 0 {
		return nil
	}
	return r.client.RPush(ctx, redisKeyPrefix+metricID.String(), encodeMeasures(measures)).Err()
}

func (r *Redis) ProcessMeasures(ctx context.Context, metricID uuid.UUID, fn func([]carbonara.Measure) error) error {
	key := redisKeyPrefix + metricID.String()
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return err
	}
	batches, err := r.client.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return err
	}
	var measures []carbonara.Measure
	for _, b := range batches {
		batch, err := decodeMeasures([]byte(b))
		if err != nil {
			log.Warnf("incoming: dropping unreadable batch on %s: %v", key, err)
			continue
		}
		measures = append(measures, batch...)
	}
	if err := fn(measures); err != nil {
		return err
	}
	if n > 0 {
		return r.client.LPopCount(ctx, key, int(n)).Err()
	}
	return nil
}

func (r *Redis) pendingKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (r *Redis) ListMetricsWithMeasures(ctx context.Context) ([]string, error) {
	keys, err := r.pendingKeys(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, redisKeyPrefix))
	}
	return ids, nil
}

func (r *Redis) BuildReport(ctx context.Context, details bool) (int, int, map[string]int, error) {
	keys, err := r.pendingKeys(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	var measures int
	var det map[string]int
	if details {
		det = map[string]int{}
	}
	for _, k := range keys {
		batches, err := r.client.LRange(ctx, k, 0, -1).Result()
		if err != nil {
			return 0, 0, nil, err
		}
		var count int
		for _, b := range batches {
			if batch, err := decodeMeasures([]byte(b)); err == nil {
				count += len(batch)
			}
		}
		measures += count
		if details {
			det[strings.TrimPrefix(k, redisKeyPrefix)] = count
		}
	}
	return len(keys), measures, det, nil
}

func (r *Redis) Expunge(ctx context.Context, metricID string) error {
	return r.client.Del(ctx, redisKeyPrefix+metricID).Err()
}
