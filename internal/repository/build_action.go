package repository

import (
	"database/sql"
	"log/slog"

	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
)

// BuildActionRepository provides methods to persist and query build action records.
type BuildActionRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewBuildActionRepository(db *sql.DB, clock core.Clock) *BuildActionRepository {
	return &BuildActionRepository{db: db, clock: clock}
}

// Save inserts a new build action and returns its ID.
// It expects the following table schema (PostgreSQL):
//
//	build_actions(id BIGSERIAL PK, build_id BIGINT, runner_id BIGINT, execution_count INT,
//	              retry_count INT, type TEXT, name TEXT, text TEXT, date_time TIMESTAMP)
func (r *BuildActionRepository) Save(a *domain.BuildAction) (int64, error) {
	base := `
		INSERT INTO build_actions (
			build_id, runner_id, execution_count, retry_count, type, name, text, date_time
		) VALUES (
			` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `
		)`
	var err error
	if supportsReturning() {
		query := base + " RETURNING id"
		err = r.db.QueryRow(
			query,
			a.BuildID,
			a.RunnerID,
			a.ExecutionCount,
			a.RetryCount,
			a.Type,
			a.Name,
			a.Text,
			a.DateTime,
		).Scan(&a.ID)
	} else {
		res, e := r.db.Exec(base,
			a.BuildID,
			a.RunnerID,
			a.ExecutionCount,
			a.RetryCount,
			a.Type,
			a.Name,
			a.Text,
			a.DateTime,
		)
		if e != nil {
			err = e
		} else {
			id, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				a.ID = id
			}
		}
	}

	if err != nil {
		slog.Error("Failed to save build action", "error", err)
	}

	return a.ID, err
}

// FindByID fetches a single build action by its ID.
func (r *BuildActionRepository) FindByID(id int64) (*domain.BuildAction, error) {
	query := `
		SELECT id, build_id, runner_id, execution_count, retry_count, type, name, text, date_time
		FROM build_actions
		WHERE id = ` + placeholder(1) + `
	`
	var a domain.BuildAction
	err := r.db.QueryRow(query, id).Scan(
		&a.ID,
		&a.BuildID,
		&a.RunnerID,
		&a.ExecutionCount,
		&a.RetryCount,
		&a.Type,
		&a.Name,
		&a.Text,
		&a.DateTime,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAllByBuildID returns all actions for a specific build, newest first.
func (r *BuildActionRepository) FindAllByBuildID(buildID int64) (*[]domain.BuildAction, error) {
	query := `
		SELECT id, build_id, runner_id, execution_count, retry_count, type, name, text, date_time
		FROM build_actions
		WHERE build_id = ` + placeholder(1) + `
		ORDER BY  id DESC
	`
	rows, err := r.db.Query(query, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []domain.BuildAction
	for rows.Next() {
		var a domain.BuildAction
		if err := rows.Scan(
			&a.ID,
			&a.BuildID,
			&a.RunnerID,
			&a.ExecutionCount,
			&a.RetryCount,
			&a.Type,
			&a.Name,
			&a.Text,
			&a.DateTime,
		); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return &actions, nil
}
