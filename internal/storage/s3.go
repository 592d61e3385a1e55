// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/carbonara-project/carbonara/pkg/carbonara"
)

// S3DriverConfig configures the object-store split store.
type S3DriverConfig struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Prefix    string `json:"prefix"`
}

// S3Driver stores one object per split. Object PUTs replace whole objects
// atomically, so the driver writes full.
type S3Driver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Driver builds a driver against the configured bucket. Endpoint and
// static credentials are optional and mainly useful against S3-compatible
// stores.
func NewS3Driver(ctx context.Context, cfg S3DriverConfig) (*S3Driver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: empty s3 bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Driver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (d *S3Driver) String() string { return "S3Driver: " + d.bucket }

func (d *S3Driver) WriteFull() bool { return true }

func (d *S3Driver) seriesPrefix(metricID uuid.UUID, aggregation string, sampling time.Duration) string {
	return fmt.Sprintf("%s%s/%s_%d/", d.prefix, metricID, aggregation, int64(sampling))
}

func (d *S3Driver) splitKey(metricID uuid.UUID, aggregation string, key carbonara.SplitKey) string {
	return d.seriesPrefix(metricID, aggregation, key.Sampling) +
		strconv.FormatInt(key.Timestamp/int64(time.Second), 10)
}

func (d *S3Driver) get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (d *S3Driver) put(ctx context.Context, key string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (d *S3Driver) delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (d *S3Driver) GetSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) ([]byte, error) {
	return d.get(ctx, d.splitKey(metricID, aggregation, key))
}

func (d *S3Driver) PutSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey, data []byte) error {
	return d.put(ctx, d.splitKey(metricID, aggregation, key), data)
}

func (d *S3Driver) DeleteSplit(ctx context.Context, metricID uuid.UUID, aggregation string, key carbonara.SplitKey) error {
	return d.delete(ctx, d.splitKey(metricID, aggregation, key))
}

func (d *S3Driver) ListSplits(ctx context.Context, metricID uuid.UUID, aggregation string, sampling time.Duration) ([]carbonara.SplitKey, error) {
	prefix := d.seriesPrefix(metricID, aggregation, sampling)
	var keys []carbonara.SplitKey
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			sec, err := strconv.ParseInt(name, 10, 64)
			if err != nil {
				continue
			}
			keys = append(keys, carbonara.SplitKey{
				Timestamp: sec * int64(time.Second),
				Sampling:  sampling,
			})
		}
	}
	return keys, nil
}

func (d *S3Driver) unaggregatedKey(metricID uuid.UUID) string {
	return fmt.Sprintf("%s%s/none", d.prefix, metricID)
}

func (d *S3Driver) GetUnaggregated(ctx context.Context, metricID uuid.UUID) ([]byte, error) {
	return d.get(ctx, d.unaggregatedKey(metricID))
}

func (d *S3Driver) PutUnaggregated(ctx context.Context, metricID uuid.UUID, data []byte) error {
	return d.put(ctx, d.unaggregatedKey(metricID), data)
}

func (d *S3Driver) DeleteMetric(ctx context.Context, metricID uuid.UUID) error {
	prefix := fmt.Sprintf("%s%s/", d.prefix, metricID)
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
