package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		prefix: "huddle:session:",
	}
}

func (r *RedisSessionRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionRepository) activeKey(groupID domain.GroupID, kind domain.SessionKind) string {
	return fmt.Sprintf("%sactive:%s:%s", r.prefix, groupID, kind)
}

func (r *RedisSessionRepository) FindActive(ctx context.Context, groupID domain.GroupID, kind domain.SessionKind) (*domain.CommunicationSession, error) {
	id, err := r.client.Get(ctx, r.activeKey(groupID, kind)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session pointer from Redis: %w", err)
	}

	data, err := r.client.Get(ctx, r.sessionKey(domain.SessionID(id))).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.CommunicationSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if !session.Active {
		return nil, domain.ErrSessionNotFound
	}

	return &session, nil
}

func (r *RedisSessionRepository) Upsert(ctx context.Context, session *domain.CommunicationSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}

	key := r.activeKey(session.GroupID, session.Kind)
	if session.Active {
		if err := r.client.Set(ctx, key, string(session.ID), 0).Err(); err != nil {
			return fmt.Errorf("failed to set active session pointer: %w", err)
		}
		return nil
	}

	// Only clear the pointer when it still names this session; a newer
	// active session may have replaced it already.
	current, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read active session pointer: %w", err)
	}
	if current == string(session.ID) {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear active session pointer: %w", err)
		}
	}
	return nil
}
