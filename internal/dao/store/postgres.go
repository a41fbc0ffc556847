package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"daofund/internal/dao/models"
	id "daofund/pkg/domain"
	"daofund/pkg/platform/sentinel"
)

// PostgresProjectStore persists project aggregates in PostgreSQL. The
// aggregate is stored as a JSON document; the project id is the only key
// anything queries by.
type PostgresProjectStore struct {
	db *sql.DB
}

func NewPostgresProjectStore(db *sql.DB) *PostgresProjectStore {
	return &PostgresProjectStore{db: db}
}

// Schema is the DDL for the projects table; applied by deployment tooling
// and by integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id   TEXT PRIMARY KEY,
    data JSONB NOT NULL
);`

func (s *PostgresProjectStore) Create(ctx context.Context, project *models.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, data) VALUES ($1, $2)`,
		project.ID.String(), data)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresProjectStore) FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM projects WHERE id = $1`,
		projectID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return decodeProject(data)
}

func (s *PostgresProjectStore) Update(ctx context.Context, project *models.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET data = $2 WHERE id = $1`,
		project.ID.String(), data)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresProjectStore) Delete(ctx context.Context, projectID id.ProjectID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1`, projectID.String())
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute runs validate-then-mutate under a row lock (SELECT ... FOR UPDATE)
// so concurrent operations on the same project serialize, and nothing is
// persisted unless both callbacks succeed.
func (s *PostgresProjectStore) Execute(ctx context.Context, projectID id.ProjectID, validate func(*models.Project) error, mutate func(*models.Project) error) (*models.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM projects WHERE id = $1 FOR UPDATE`,
		projectID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock project: %w", err)
	}

	project, err := decodeProject(data)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(project); err != nil {
			return nil, err
		}
	}
	if err := mutate(project); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(project)
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET data = $2 WHERE id = $1`,
		projectID.String(), updated); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return project, nil
}

func decodeProject(data []byte) (*models.Project, error) {
	var project models.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &project, nil
}
