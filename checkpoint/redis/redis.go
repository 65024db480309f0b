//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package redis provides a Redis-backed checkpoint saver.
//
// Each run is stored as one hash keyed by "<prefix><run id>", upserted
// with HSET. HSET on the same key is last-writer-wins, which matches the
// per-run write semantics the workflow requires.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dataquest-ai/analysis-engine/checkpoint"
)

const defaultKeyPrefix = "analysis:checkpoint:"

const (
	fieldRunID     = "run_id"
	fieldState     = "state"
	fieldStatus    = "status"
	fieldUpdatedAt = "updated_at"
)

// ServiceOpts is the options for the redis checkpoint saver.
type ServiceOpts struct {
	url       string
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// ServiceOption configures the redis checkpoint saver.
type ServiceOption func(*ServiceOpts)

// WithRedisClient uses an already constructed client instead of dialing
// from a URL.
func WithRedisClient(client redis.UniversalClient) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.client = client
	}
}

// WithRedisURL dials a client from the given URL.
// scheme: redis://<username>:<password>@<host>:<port>/<db>?<options>
func WithRedisURL(url string) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.url = url
	}
}

// WithKeyPrefix overrides the default "analysis:checkpoint:" key prefix.
func WithKeyPrefix(prefix string) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.keyPrefix = prefix
	}
}

// WithTTL expires checkpoints after the given duration. Zero means no
// expiry.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.ttl = ttl
	}
}

// Saver stores checkpoints in Redis, one hash per run id.
type Saver struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewSaver creates a redis-backed checkpoint saver.
func NewSaver(options ...ServiceOption) (*Saver, error) {
	opts := ServiceOpts{keyPrefix: defaultKeyPrefix}
	for _, option := range options {
		option(&opts)
	}
	client := opts.client
	if client == nil {
		if opts.url == "" {
			return nil, fmt.Errorf("redis checkpoint: no client and no url configured")
		}
		redisOpts, err := redis.ParseURL(opts.url)
		if err != nil {
			return nil, fmt.Errorf("redis checkpoint: parse url %s: %w", opts.url, err)
		}
		client = redis.NewClient(redisOpts)
	}
	return &Saver{
		client:    client,
		keyPrefix: opts.keyPrefix,
		ttl:       opts.ttl,
	}, nil
}

func (s *Saver) key(runID string) string {
	return s.keyPrefix + runID
}

// Put implements the checkpoint.Saver interface.
func (s *Saver) Put(ctx context.Context, record *checkpoint.Record) error {
	key := s.key(record.RunID)
	fields := RecordFields(record)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis checkpoint: put %s: %w", record.RunID, err)
	}
	return nil
}

// Get implements the checkpoint.Saver interface.
func (s *Saver) Get(ctx context.Context, runID string) (*checkpoint.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis checkpoint: get %s: %w", runID, err)
	}
	if len(fields) == 0 {
		return nil, checkpoint.ErrNotFound
	}
	return RecordFromFields(fields)
}

// Delete implements the checkpoint.Saver interface.
func (s *Saver) Delete(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, s.key(runID)).Err(); err != nil {
		return fmt.Errorf("redis checkpoint: delete %s: %w", runID, err)
	}
	return nil
}

// List implements the checkpoint.Saver interface. It scans the key
// prefix, so it is intended for operational inspection rather than hot
// paths.
func (s *Saver) List(ctx context.Context) ([]*checkpoint.Record, error) {
	var records []*checkpoint.Record
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		fields, err := s.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis checkpoint: list: %w", err)
		}
		if len(fields) == 0 {
			// The key expired between SCAN and HGETALL.
			continue
		}
		record, err := RecordFromFields(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis checkpoint: list: %w", err)
	}
	return records, nil
}

// RecordFields marshals a record into the hash field map stored per run.
func RecordFields(record *checkpoint.Record) map[string]any {
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return map[string]any{
		fieldRunID:     record.RunID,
		fieldState:     string(record.State),
		fieldStatus:    record.Status,
		fieldUpdatedAt: updatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RecordFromFields unmarshals the hash field map back into a record.
func RecordFromFields(fields map[string]string) (*checkpoint.Record, error) {
	record := &checkpoint.Record{
		RunID:  fields[fieldRunID],
		State:  []byte(fields[fieldState]),
		Status: fields[fieldStatus],
	}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("redis checkpoint: parse updated_at %q: %w", raw, err)
		}
		record.UpdatedAt = updatedAt
	}
	return record, nil
}

var _ checkpoint.Saver = (*Saver)(nil)
