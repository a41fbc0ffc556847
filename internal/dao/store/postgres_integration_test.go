//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"daofund/internal/dao/models"
	"daofund/internal/dao/store"
	id "daofund/pkg/domain"
	"daofund/pkg/platform/sentinel"
	"daofund/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresProjectStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.ctx = context.Background()
	_, err := s.postgres.DB.ExecContext(s.ctx, store.Schema)
	s.Require().NoError(err)
	s.store = store.NewPostgresProjectStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "projects"))
}

func newProject(commit string) *models.Project {
	project := models.NewProject("https://github.com/org/repo/pull/1", commit, models.TypeGrant, false)
	project.Plans = []models.BudgetPlan{{Index: 0, Phase: 1, Symbol: "ELF", Amount: 100}}
	return project
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	project := newProject("abc")
	s.Require().NoError(s.store.Create(s.ctx, project))

	found, err := s.store.FindByID(s.ctx, project.ID)
	s.Require().NoError(err)
	s.Equal(project.ID, found.ID)
	s.Equal(models.StatusProposed, found.Status)
	s.Len(found.Plans, 1)
}

func (s *PostgresStoreSuite) TestDuplicateCreateConflicts() {
	project := newProject("abc")
	s.Require().NoError(s.store.Create(s.ctx, project))
	s.ErrorIs(s.store.Create(s.ctx, project), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestMissingProject() {
	_, err := s.store.FindByID(s.ctx, id.ProjectID("missing"))
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, id.ProjectID("missing")), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateAndDelete() {
	project := newProject("abc")
	s.Require().NoError(s.store.Create(s.ctx, project))

	project.Status = models.StatusApproved
	s.Require().NoError(s.store.Update(s.ctx, project))

	found, err := s.store.FindByID(s.ctx, project.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)

	s.Require().NoError(s.store.Delete(s.ctx, project.ID))
	_, err = s.store.FindByID(s.ctx, project.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExecuteAtomicity() {
	project := newProject("abc")
	s.Require().NoError(s.store.Create(s.ctx, project))

	s.Run("failed mutation rolls back", func() {
		boom := errors.New("mutation failed")
		_, err := s.store.Execute(s.ctx, project.ID,
			nil,
			func(p *models.Project) error {
				p.Status = models.StatusDelivered
				return boom
			})
		s.ErrorIs(err, boom)

		found, err := s.store.FindByID(s.ctx, project.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusProposed, found.Status)
	})

	s.Run("concurrent funding serializes under the row lock", func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, project.ID,
					nil,
					func(p *models.Project) error {
						gap := p.Plans[0].Amount - p.Plans[0].PaidIn
						if gap > 10 {
							gap = 10
						}
						p.Plans[0].PaidIn += gap
						return nil
					})
				s.NoError(err)
			}()
		}
		wg.Wait()

		found, err := s.store.FindByID(s.ctx, project.ID)
		s.Require().NoError(err)
		s.Equal(int64(100), found.Plans[0].PaidIn, "never exceeds the cap")
	})
}
