package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisLocationRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisLocationRepository(client *redis.Client) ports.LocationRepository {
	return &RedisLocationRepository{
		client: client,
		prefix: "huddle:location:",
	}
}

func (r *RedisLocationRepository) groupKey(groupID domain.GroupID) string {
	return r.prefix + string(groupID)
}

func (r *RedisLocationRepository) Insert(ctx context.Context, sample *domain.LocationSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal location sample: %w", err)
	}

	// LPUSH keeps the list newest first, matching FindByGroup ordering.
	if err := r.client.LPush(ctx, r.groupKey(sample.GroupID), data).Err(); err != nil {
		return fmt.Errorf("failed to append location sample to Redis: %w", err)
	}
	return nil
}

func (r *RedisLocationRepository) FindByGroup(ctx context.Context, groupID domain.GroupID, q ports.LocationQuery) ([]*domain.LocationSample, error) {
	raw, err := r.client.LRange(ctx, r.groupKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read location log from Redis: %w", err)
	}

	var out []*domain.LocationSample
	for _, item := range raw {
		var sample domain.LocationSample
		if err := json.Unmarshal([]byte(item), &sample); err != nil {
			// Skip records that no longer parse
			continue
		}
		if q.UserID != "" && sample.UserID != q.UserID {
			continue
		}
		if q.Since != nil && sample.Timestamp.Before(*q.Since) {
			continue
		}
		if q.Until != nil && sample.Timestamp.After(*q.Until) {
			continue
		}
		s := sample
		out = append(out, &s)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
