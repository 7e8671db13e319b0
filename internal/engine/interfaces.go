package engine

import (
	"database/sql"
	"time"

	internaldomain "github.com/conveyorci/conveyor/internal/domain"
	"github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/internal/repository"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
)

// BuildRepo defines the interface for build persistence, matching repository.BuildRepository.
type BuildRepo interface {
	UpdateBuildStatus(id int64, status string) error
	UpdateBuildStartingTime(id int64) error
	UpdateStage(id int64, stage string) error
	SaveBuildVariables(id int64, vars string) error
	SaveBuildVariablesAndTouch(id int64, vars string) error
	Save(b *domain.Build) (int64, error)
	FindByID(id int64) (*domain.Build, error)
	FindByExternalId(id string) (*domain.Build, error)
	UpdateNextActivationSpecific(id int64, next time.Time) error
	ClearRunnerId(id int64) error
	IncrementRetryCounterAndSetNextActivation(id int64, activation time.Time) error
	FindPendingBuilds(size int, runnerGroup string) (*[]domain.Build, error)
	MarkBuildAsScheduledForExecution(id int64, runnerId int64, modified time.Time) bool
	FindStuckBuilds(minutesRepair string, runnerGroup string, limit int) (*[]domain.Build, error)
	LockBuildByModified(id int64, modified time.Time) bool
	SearchBuilds(req models.SearchBuildRequest) (*[]domain.Build, error)
	GetTopExecuting(limit int) (*[]domain.Build, error)
	GetNextToExecute(limit int) (*[]domain.Build, error)
	GetBuildOverview() ([]repository.BuildOverviewRow, error)
	GetPipelineStageOverview(pipelineName string) ([]repository.PipelineStageRow, error)
}

// BuildActionRepo defines the interface for build action persistence.
type BuildActionRepo interface {
	Save(a *domain.BuildAction) (int64, error)
	FindAllByBuildID(buildID int64) (*[]domain.BuildAction, error)
}

// RunnerRepo defines the interface for runner persistence.
type RunnerRepo interface {
	Save(e *internaldomain.Runner) (int64, error)
	UpdateLastActive(id int64, ts time.Time) error
	GetRunnersByLastActive(limit int) ([]*internaldomain.Runner, error)
}

// DefinitionRepo defines the interface for pipeline definition persistence.
type DefinitionRepo interface {
	FindAll() (*[]domain.PipelineDefinition, error)
	FindByName(name string) (*domain.PipelineDefinition, error)
	Save(def *domain.PipelineDefinition) error
}

// UserRepo defines the interface for user persistence.
type UserRepo interface {
	FindBySessionID(sessionID string, now time.Time) (*internaldomain.User, error)
	FindByApiKey(apiKey string) (*internaldomain.User, error)
	FindAll() (*[]internaldomain.User, error)
	Save(user *internaldomain.User) (int64, error)
	FindById(id int64) (*internaldomain.User, error)
	DeleteById(id int64) error
	FindByUsername(username string) (*internaldomain.User, error)
	UpdateSession(userID int64, sessionID string, expiry time.Time) error
	ClearSessionBySessionID(sessionID string) error
	UpdateUser(id int64, username string, apiKey sql.NullString, enabled sql.NullBool) error
}
