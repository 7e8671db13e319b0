package repository

import (
	"database/sql"
	"fmt"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	domain "github.com/conveyorci/conveyor/pkg/conveyor/domain"

	"log/slog"
	"strings"
	"time"
)

type BuildRepository struct {
	db    *sql.DB
	clock core.Clock
}

// BuildOverviewRow holds grouped counts by runner_group and pipeline_name
type BuildOverviewRow struct {
	RunnerGroup     string
	PipelineName    string
	NewCount        int
	ScheduledCount  int
	ExecutingCount  int
	FinishedCount   int
	FailedCount     int
	InProgressCount int
}

// PipelineStageRow holds counts by stage for a pipeline
type PipelineStageRow struct {
	Stage           string
	NewCount        int
	ScheduledCount  int
	ExecutingCount  int
	InProgressCount int
	FinishedCount   int
	FailedCount     int
}

const ALL_COLUMNS = ` id, status, execution_count, retry_count, created, modified,
		       next_activation, started, runner_id, runner_group,
		       pipeline_name, external_id, business_key, stage, build_vars `

func NewBuildRepository(db *sql.DB, clock core.Clock) *BuildRepository {
	return &BuildRepository{db: db, clock: clock}
}

func scanBuild(scan func(dest ...any) error) (*domain.Build, error) {
	var b domain.Build
	err := scan(
		&b.ID,
		&b.Status,
		&b.ExecutionCount,
		&b.RetryCount,
		&b.Created,
		&b.Modified,
		&b.NextActivation,
		&b.Started,
		&b.RunnerID,
		&b.RunnerGroup,
		&b.PipelineName,
		&b.ExternalID,
		&b.BusinessKey,
		&b.Stage,
		&b.BuildVars,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BuildRepository) FindByID(id int64) (*domain.Build, error) {
	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds WHERE id = ` + placeholder(1) + `
	`
	return scanBuild(r.db.QueryRow(query, id).Scan)
}

func (r *BuildRepository) FindByExternalId(id string) (*domain.Build, error) {
	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds WHERE external_id = ` + placeholder(1) + `
	`
	return scanBuild(r.db.QueryRow(query, id).Scan)
}

func (r *BuildRepository) Save(b *domain.Build) (int64, error) {
	vals := []interface{}{b.Status, b.ExecutionCount, b.RetryCount, formatDateInDatabase(b.Created), formatDateInDatabase(b.Modified),
		formatDateInDatabaseNull(b.NextActivation), formatDateInDatabaseNull(b.Started), b.RunnerID, b.RunnerGroup,
		b.PipelineName, b.ExternalID, b.BusinessKey, b.Stage, b.BuildVars}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	base := `INSERT INTO builds (
		status, execution_count, retry_count, created, modified,
		next_activation, started, runner_id, runner_group,
		pipeline_name, external_id, business_key, stage, build_vars
	) VALUES (` + strings.Join(pps, ", ") + `)`
	var err error
	if supportsReturning() {
		query := base + " RETURNING id"
		err = r.db.QueryRow(query, vals...).Scan(&b.ID)
	} else {
		res, e := r.db.Exec(base, vals...)
		if e != nil {
			err = e
		} else {
			id, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				b.ID = id
			}
		}
	}
	return b.ID, err
}

func formatDateInDatabase(ts time.Time) string {
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_SQLLITE {
		return ts.UTC().Format("2006-01-02 15:04:05.000")
	}
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_MYSQL {
		return ts.UTC().Format("2006-01-02 15:04:05.000000")
	}
	// PostgreSQL supports RFC3339
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatDateInDatabaseNull(ts sql.NullTime) interface{} {
	if !ts.Valid {
		return nil
	}
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_SQLLITE {
		return ts.Time.UTC().Format("2006-01-02 15:04:05.000")
	}
	if config.GetSystemSettingString(config.DATABASE_TYPE) == config.DATABASE_TYPE_MYSQL {
		return ts.Time.UTC().Format("2006-01-02 15:04:05.000000")
	}
	return ts.Time
}

func (r *BuildRepository) FindPendingBuilds(size int, runnerGroup string) (*[]domain.Build, error) {
	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds
		WHERE  ` + dateBeforeNow("next_activation", r.clock) + `
		  AND status in ('NEW', 'IN_PROGRESS')
		  AND runner_id IS NULL
		  AND runner_group = ` + placeholder(1) + `
		ORDER BY next_activation ASC
		LIMIT ` + placeholder(2) + `
	`
	rows, err := r.db.Query(query, runnerGroup, size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []domain.Build
	for rows.Next() {
		b, err := scanBuild(rows.Scan)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return &builds, nil
}

func (r *BuildRepository) MarkBuildAsScheduledForExecution(id int64, runnerId int64, modified time.Time) bool {
	query := `
		UPDATE builds
		SET status = 'SCHEDULED', modified = ` + nowFunc(r.clock) + `, runner_id = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND modified = ` + placeholder(3) + ` AND status IN ('NEW', 'IN_PROGRESS') AND runner_id IS NULL
	`
	stringdate := formatDateInDatabase(modified)
	result, err := r.db.Exec(query, runnerId, id, stringdate)
	if err != nil {
		slog.Error("Failed to mark build as scheduled", "error", err, "id", id, "runnerId", runnerId, "modified", modified)
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

// UpdateStage records the job the build is currently executing. Retry counts
// are build scoped so progressing through stages does not reset them.
func (r *BuildRepository) UpdateStage(id int64, stage string) error {
	query := `
		UPDATE builds
		SET stage = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, stage, id)
	return err
}

func (r *BuildRepository) UpdateBuildStatus(id int64, status string) error {
	query := `
		UPDATE builds
		SET status = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, status, id)
	return err
}

func (r *BuildRepository) UpdateBuildStartingTime(id int64) error {
	query := `
		UPDATE builds
		SET  started = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(1) + `
	`
	_, err := r.db.Exec(query, id)
	return err
}

func (r *BuildRepository) SaveBuildVariables(id int64, vars string) error {
	query := `
		UPDATE builds
		SET build_vars = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, vars, id)
	return err
}

// SaveBuildVariablesAndTouch updates build_vars and touches the modified timestamp.
func (r *BuildRepository) SaveBuildVariablesAndTouch(id int64, vars string) error {
	query := `
		UPDATE builds
		SET build_vars = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, vars, id)
	return err
}

func (r *BuildRepository) UpdateNextActivationSpecific(id int64, next time.Time) error {
	query := `
		UPDATE builds
		SET status = 'IN_PROGRESS', next_activation = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, formatDateInDatabase(next), id)
	return err
}

func (r *BuildRepository) ClearRunnerId(id int64) error {
	query := `
		UPDATE builds
		SET runner_id = NULL, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(1) + `
	`
	_, err := r.db.Exec(query, id)
	return err
}

func (r *BuildRepository) IncrementRetryCounterAndSetNextActivation(id int64, activation time.Time) error {
	query := `
		UPDATE builds
		SET status = 'IN_PROGRESS', runner_id = NULL, retry_count = retry_count + 1, next_activation = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, formatDateInDatabase(activation), id)
	return err
}

func (r *BuildRepository) FindStuckBuilds(minutesRepair string, runnerGroup string, limit int) (*[]domain.Build, error) {
	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds
		WHERE modified < ` + placeholder(1) + `
		  AND status IN ('SCHEDULED', 'EXECUTING', 'IN_PROGRESS', 'LOCK')
		  AND runner_group = ` + placeholder(2) + `
		  AND runner_id NOT IN (
		      SELECT id
		      FROM runners
		      WHERE last_active > ` + placeholder(3) + `
		  )
		ORDER BY next_activation ASC
		LIMIT ` + placeholder(4) + `
		`
	// minutesRepair is a string like "10" or "10 minutes"; extract leading integer minutes
	mins := 0
	fmt.Sscanf(minutesRepair, "%d", &mins)
	cutoff := r.clock.Now().UTC().Add(-time.Duration(mins) * time.Minute)
	rows, err := r.db.Query(query, formatDateInDatabase(cutoff), runnerGroup, formatDateInDatabase(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var builds []domain.Build
	for rows.Next() {
		b, err := scanBuild(rows.Scan)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return &builds, nil
}

func (r *BuildRepository) LockBuildByModified(id int64, modified time.Time) bool {
	query := `
		UPDATE builds
		SET status = 'LOCK', runner_id = NULL, retry_count = retry_count + 1, next_activation = ` + placeholder(1) + `, modified = ` + nowFunc(r.clock) + `
		WHERE id = ` + placeholder(2) + ` AND modified = ` + placeholder(3) + `
	`
	result, err := r.db.Exec(query, formatDateInDatabase(modified), id, formatDateInDatabase(modified))
	if err != nil {
		return false
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return rowsAffected == 1
}

func (r *BuildRepository) SearchBuilds(req models.SearchBuildRequest) (*[]domain.Build, error) {
	whereClause, args := buildWhereClause(req)

	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds
		` + whereClause +
		` ORDER BY id DESC
	` + buildLimitsAndOffset(req)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []domain.Build
	for rows.Next() {
		b, err := scanBuild(rows.Scan)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return &builds, nil
}

// GetBuildOverview returns aggregated counts grouped by runner_group and pipeline_name
func (r *BuildRepository) GetBuildOverview() ([]BuildOverviewRow, error) {
	query := `
SELECT
    runner_group,
    pipeline_name,
    SUM(CASE WHEN status = 'NEW' THEN 1 ELSE 0 END) AS new_count,
    SUM(CASE WHEN status = 'SCHEDULED'  THEN 1 ELSE 0 END) AS scheduled_count,
    SUM(CASE WHEN status = 'EXECUTING' THEN 1 ELSE 0 END) AS executing_count,
    SUM(CASE WHEN status = 'FINISHED'  THEN 1 ELSE 0 END) AS finished_count,
    SUM(CASE WHEN status = 'FAILED'  THEN 1 ELSE 0 END) AS failed_count,
    SUM(CASE WHEN status = 'IN_PROGRESS'  THEN 1 ELSE 0 END) AS in_progress_count
FROM builds
GROUP BY runner_group, pipeline_name;
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []BuildOverviewRow
	for rows.Next() {
		var row BuildOverviewRow
		if err := rows.Scan(&row.RunnerGroup, &row.PipelineName, &row.NewCount, &row.ScheduledCount, &row.ExecutingCount, &row.FinishedCount, &row.FailedCount, &row.InProgressCount); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}

// GetPipelineStageOverview returns counts by stage for a given pipeline
func (r *BuildRepository) GetPipelineStageOverview(pipelineName string) ([]PipelineStageRow, error) {
	query := `
SELECT
    COALESCE(stage, '') AS stage,
    SUM(CASE WHEN status = 'NEW' THEN 1 ELSE 0 END) AS new_count,
    SUM(CASE WHEN status = 'SCHEDULED'  THEN 1 ELSE 0 END) AS scheduled_count,
    SUM(CASE WHEN status = 'EXECUTING' THEN 1 ELSE 0 END) AS executing_count,
    SUM(CASE WHEN status = 'IN_PROGRESS'  THEN 1 ELSE 0 END) AS in_progress_count,
    SUM(CASE WHEN status = 'FINISHED'  THEN 1 ELSE 0 END) AS finished_count,
    SUM(CASE WHEN status = 'FAILED'  THEN 1 ELSE 0 END) AS failed_count
FROM builds
WHERE pipeline_name = ` + placeholder(1) + `
GROUP BY COALESCE(stage, '')
ORDER BY COALESCE(stage, '')
	`
	rows, err := r.db.Query(query, pipelineName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []PipelineStageRow
	for rows.Next() {
		var row PipelineStageRow
		if err := rows.Scan(&row.Stage, &row.NewCount, &row.ScheduledCount, &row.ExecutingCount, &row.InProgressCount, &row.FinishedCount, &row.FailedCount); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}

// GetTopExecuting returns builds currently executing ordered by modified desc
func (r *BuildRepository) GetTopExecuting(limit int) (*[]domain.Build, error) {
	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds
		WHERE status = 'EXECUTING'
		ORDER BY modified DESC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var builds []domain.Build
	for rows.Next() {
		b, err := scanBuild(rows.Scan)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return &builds, nil
}

// GetNextToExecute returns upcoming builds with status NEW or IN_PROGRESS ordered by next_activation asc
func (r *BuildRepository) GetNextToExecute(limit int) (*[]domain.Build, error) {
	query := `
		SELECT ` + ALL_COLUMNS + `
		FROM builds
		WHERE status IN ('NEW','IN_PROGRESS')
		ORDER BY next_activation ASC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var builds []domain.Build
	for rows.Next() {
		b, err := scanBuild(rows.Scan)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return &builds, nil
}

func buildLimitsAndOffset(req models.SearchBuildRequest) string {
	if req.Limit > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", req.Limit, req.Offset)
	}
	return ""
}

func buildWhereClause(req models.SearchBuildRequest) (string, []interface{}) {
	var andClauses []string
	var args []interface{}

	// First, collect the OR-able identity filters: id OR external_id OR business_key
	var orClauses []string
	if req.ID != 0 {
		args = append(args, req.ID)
		orClauses = append(orClauses, fmt.Sprintf("id = %s", placeholder(len(args))))
	}
	if req.ExternalID != "" {
		args = append(args, req.ExternalID)
		orClauses = append(orClauses, fmt.Sprintf("external_id = %s", placeholder(len(args))))
	}
	if req.BusinessKey != "" {
		args = append(args, req.BusinessKey)
		orClauses = append(orClauses, fmt.Sprintf("business_key = %s", placeholder(len(args))))
	}

	// Now, add the remaining AND filters
	if req.RunnerGroup != "" {
		args = append(args, req.RunnerGroup)
		andClauses = append(andClauses, fmt.Sprintf("runner_group = %s", placeholder(len(args))))
	}
	if req.PipelineName != "" {
		args = append(args, req.PipelineName)
		andClauses = append(andClauses, fmt.Sprintf("pipeline_name = %s", placeholder(len(args))))
	}
	if req.Stage != "" {
		args = append(args, req.Stage)
		andClauses = append(andClauses, fmt.Sprintf("stage = %s", placeholder(len(args))))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		andClauses = append(andClauses, fmt.Sprintf("status = %s", placeholder(len(args))))
	}

	if len(orClauses) > 0 {
		andClauses = append(andClauses, "("+strings.Join(orClauses, " OR ")+")")
	}

	if len(andClauses) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(andClauses, " AND "), args
}
