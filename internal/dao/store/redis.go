package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	id "daofund/pkg/domain"
	"daofund/pkg/platform/sentinel"
)

const markerKeyPrefix = "daofund:pending:"

// RedisMarkerStore shares pending release markers across instances. GETDEL
// keeps the consume-exactly-once contract atomic without a lock.
type RedisMarkerStore struct {
	client *redis.Client
}

func NewRedisMarkerStore(client *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

func (s *RedisMarkerStore) Set(ctx context.Context, projectID id.ProjectID) error {
	// Key existence is the marker; the value is irrelevant.
	return s.client.Set(ctx, markerKeyPrefix+projectID.String(), "1", 0).Err()
}

func (s *RedisMarkerStore) Consume(ctx context.Context, projectID id.ProjectID) error {
	err := s.client.GetDel(ctx, markerKeyPrefix+projectID.String()).Err()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNothingPending
	}
	return err
}
