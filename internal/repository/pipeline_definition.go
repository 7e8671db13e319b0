package repository

import (
	"database/sql"

	"github.com/conveyorci/conveyor/internal/config"
	domain "github.com/conveyorci/conveyor/pkg/conveyor/domain"
)

type PipelineDefinitionRepository struct {
	db *sql.DB
}

func NewPipelineDefinitionRepository(db *sql.DB) *PipelineDefinitionRepository {
	return &PipelineDefinitionRepository{db: db}
}

// Save inserts a new pipeline definition or updates an existing one by name.
func (r *PipelineDefinitionRepository) Save(def *domain.PipelineDefinition) error {
	query := ""
	db := config.GetSystemSettingString(config.DATABASE_TYPE)
	if db == config.DATABASE_TYPE_POSTGRES || db == config.DATABASE_TYPE_SQLLITE {
		query = `
		INSERT INTO pipeline_definitions (name, description, created, updated, flow_chart)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `)
		ON CONFLICT (name)
		DO UPDATE SET description = EXCLUDED.description,
			updated = EXCLUDED.updated,
			flow_chart = EXCLUDED.flow_chart
	`
	} else if db == config.DATABASE_TYPE_MYSQL {
		query = `
		INSERT INTO pipeline_definitions (name, description, created, updated, flow_chart)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `)
		ON DUPLICATE KEY UPDATE description = VALUES(description),
			updated = VALUES(updated),
			flow_chart = VALUES(flow_chart)
	`
	} else {
		panic("Unknown database type trying to save pipeline definition")
	}

	_, err := r.db.Exec(query, def.Name, def.Description, def.Created, def.Updated, def.FlowChart)
	return err
}

// FindByName fetches a pipeline definition by its unique name.
func (r *PipelineDefinitionRepository) FindByName(name string) (*domain.PipelineDefinition, error) {
	query := `
		SELECT name, description, created, updated, flow_chart
		FROM pipeline_definitions WHERE name = ` + placeholder(1) + `
	`
	var def domain.PipelineDefinition
	err := r.db.QueryRow(query, name).Scan(
		&def.Name,
		&def.Description,
		&def.Created,
		&def.Updated,
		&def.FlowChart,
	)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// FindAll returns all pipeline definitions.
func (r *PipelineDefinitionRepository) FindAll() (*[]domain.PipelineDefinition, error) {
	query := `
		SELECT name, description, created, updated, flow_chart
		FROM pipeline_definitions
		ORDER BY name
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.PipelineDefinition, 0)
	for rows.Next() {
		var d domain.PipelineDefinition
		if err := rows.Scan(&d.Name, &d.Description, &d.Created, &d.Updated, &d.FlowChart); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &defs, nil
}
