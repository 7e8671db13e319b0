package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/conveyorci/conveyor/internal/domain"
)

// RunnerRepository provides persistence for the runners table.
type RunnerRepository struct {
	db *sql.DB
}

func NewRunnerRepository(db *sql.DB) *RunnerRepository {
	return &RunnerRepository{db: db}
}

// Save inserts a new runner row and returns its ID.
func (r *RunnerRepository) Save(e *domain.Runner) (int64, error) {
	// Ensure timestamps are set if zero; started defaults to now if unset
	var started time.Time = e.Started
	if started.IsZero() {
		started = time.Now()
	}
	var lastActive time.Time = e.LastActive
	if lastActive.IsZero() {
		lastActive = started
	}
	vals := []interface{}{e.Name, formatDateInDatabase(started), formatDateInDatabase(lastActive)}
	pps := []string{placeholder(1), placeholder(2), placeholder(3)}
	base := `INSERT INTO runners (name, started, last_active) VALUES (` + strings.Join(pps, ", ") + `)`
	if supportsReturning() {
		query := base + " RETURNING id"
		if err := r.db.QueryRow(query, vals...).Scan(&e.ID); err != nil {
			return 0, err
		}
	} else {
		res, err := r.db.Exec(base, vals...)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		e.ID = id
	}
	e.Started = started
	e.LastActive = lastActive
	return e.ID, nil
}

// UpdateLastActive sets last_active for the runner id to the provided timestamp.
func (r *RunnerRepository) UpdateLastActive(id int64, ts time.Time) error {
	query := `UPDATE runners SET last_active = ` + placeholder(1) + ` WHERE id = ` + placeholder(2) + ``
	_, err := r.db.Exec(query, formatDateInDatabase(ts), id)
	return err
}

func (r *RunnerRepository) GetRunnersByLastActive(limit int) ([]*domain.Runner, error) {
	query := `
		SELECT id, name, started, last_active
		FROM runners
		ORDER BY last_active DESC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runners []*domain.Runner
	for rows.Next() {
		var e domain.Runner
		if err := rows.Scan(&e.ID, &e.Name, &e.Started, &e.LastActive); err != nil {
			return nil, err
		}
		runners = append(runners, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runners, nil
}
