package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/orchest/model"
)

// RedisStore is a Redis-backed Store. Each instance snapshot lives under
// <prefix>:instance:<id>, with the ID set <prefix>:instances as the listing
// index.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis store with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "orchest"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) instanceKey(id string) string {
	return s.prefix + ":instance:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":instances"
}

// Save persists the snapshot and registers the ID in the listing index.
func (s *RedisStore) Save(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.instanceKey(inst.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), inst.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: saving instance %s: %w", inst.ID, err)
	}
	return nil
}

// Load retrieves an instance snapshot.
func (s *RedisStore) Load(ctx context.Context, instanceID string) (*model.WorkflowInstance, error) {
	data, err := s.client.Get(ctx, s.instanceKey(instanceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.NewInstanceNotFoundError(instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading instance %s: %w", instanceID, err)
	}
	return DecodeInstance(data)
}

// Update applies a mutation to the stored snapshot. The read and write are
// not transactional; the engine serializes writers per instance.
func (s *RedisStore) Update(ctx context.Context, instanceID string, apply func(*model.WorkflowInstance) error) error {
	inst, err := s.Load(ctx, instanceID)
	if err != nil {
		return err
	}
	if err := apply(inst); err != nil {
		return err
	}
	return s.Save(ctx, inst)
}

// List returns matching instances, most recently started first.
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*model.WorkflowInstance, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: listing instances: %w", err)
	}

	var result []*model.WorkflowInstance
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.instanceKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Index entry without a snapshot: tolerate and skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: loading instance %s: %w", id, err)
		}
		inst, err := DecodeInstance(data)
		if err != nil {
			return nil, err
		}
		if filter.matches(inst) {
			result = append(result, inst)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return filter.page(result), nil
}

// Delete removes the snapshot and its index entry.
func (s *RedisStore) Delete(ctx context.Context, instanceID string) error {
	removed, err := s.client.Del(ctx, s.instanceKey(instanceID)).Result()
	if err != nil {
		return fmt.Errorf("store: deleting instance %s: %w", instanceID, err)
	}
	if removed == 0 {
		return model.NewInstanceNotFoundError(instanceID)
	}
	if err := s.client.SRem(ctx, s.indexKey(), instanceID).Err(); err != nil {
		return fmt.Errorf("store: deleting instance %s from index: %w", instanceID, err)
	}
	return nil
}

// HealthCheck pings the Redis server.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
