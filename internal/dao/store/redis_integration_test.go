//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"daofund/internal/dao/store"
	id "daofund/pkg/domain"
	"daofund/pkg/platform/sentinel"
	"daofund/pkg/testutil/containers"
)

type RedisMarkerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisMarkerStore
	ctx   context.Context
}

func TestRedisMarkerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisMarkerSuite))
}

func (s *RedisMarkerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedisMarkerStore(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisMarkerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisMarkerSuite) TestConsumeExactlyOnce() {
	projectID := id.ProjectID("p1")

	s.ErrorIs(s.store.Consume(s.ctx, projectID), sentinel.ErrNothingPending)

	s.Require().NoError(s.store.Set(s.ctx, projectID))
	s.Require().NoError(s.store.Consume(s.ctx, projectID))
	s.ErrorIs(s.store.Consume(s.ctx, projectID), sentinel.ErrNothingPending)
}

func (s *RedisMarkerSuite) TestConcurrentConsumersGetOneWin() {
	projectID := id.ProjectID("p2")
	s.Require().NoError(s.store.Set(s.ctx, projectID))

	wins := make(chan struct{}, 10)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			if err := s.store.Consume(s.ctx, projectID); err == nil {
				wins <- struct{}{}
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	s.Len(wins, 1, "GETDEL admits exactly one consumer")
}

func (s *RedisMarkerSuite) TestMarkersScopedPerProject() {
	s.Require().NoError(s.store.Set(s.ctx, "a"))
	s.ErrorIs(s.store.Consume(s.ctx, "b"), sentinel.ErrNothingPending)
	s.NoError(s.store.Consume(s.ctx, "a"))
}
