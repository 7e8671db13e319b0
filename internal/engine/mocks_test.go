package engine

import (
	"database/sql"
	"sync"
	"time"

	internaldomain "github.com/conveyorci/conveyor/internal/domain"
	"github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/internal/repository"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
)

// Mock repos for engine tests, implementing the engine interfaces with
// overridable func fields.

type MockBuildRepo struct {
	FindByIDFunc                                  func(id int64) (*domain.Build, error)
	FindByExternalIdFunc                          func(id string) (*domain.Build, error)
	SaveFunc                                      func(b *domain.Build) (int64, error)
	UpdateBuildStatusFunc                         func(id int64, status string) error
	UpdateStageFunc                               func(id int64, stage string) error
	FindPendingBuildsFunc                         func(size int, runnerGroup string) (*[]domain.Build, error)
	MarkBuildAsScheduledForExecutionFunc          func(id int64, runnerId int64, modified time.Time) bool
	IncrementRetryCounterAndSetNextActivationFunc func(id int64, activation time.Time) error
	ClearRunnerIdFunc                             func(id int64) error
	FindStuckBuildsFunc                           func(minutesRepair string, runnerGroup string, limit int) (*[]domain.Build, error)
	LockBuildByModifiedFunc                       func(id int64, modified time.Time) bool
	UpdateNextActivationSpecificFunc              func(id int64, next time.Time) error
	SaveBuildVariablesFunc                        func(id int64, vars string) error
}

func (m *MockBuildRepo) UpdateBuildStatus(id int64, status string) error {
	if m.UpdateBuildStatusFunc != nil {
		return m.UpdateBuildStatusFunc(id, status)
	}
	return nil
}
func (m *MockBuildRepo) UpdateBuildStartingTime(id int64) error { return nil }
func (m *MockBuildRepo) UpdateStage(id int64, stage string) error {
	if m.UpdateStageFunc != nil {
		return m.UpdateStageFunc(id, stage)
	}
	return nil
}
func (m *MockBuildRepo) SaveBuildVariables(id int64, vars string) error {
	if m.SaveBuildVariablesFunc != nil {
		return m.SaveBuildVariablesFunc(id, vars)
	}
	return nil
}
func (m *MockBuildRepo) SaveBuildVariablesAndTouch(id int64, vars string) error { return nil }
func (m *MockBuildRepo) Save(b *domain.Build) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(b)
	}
	return 1, nil
}
func (m *MockBuildRepo) FindByID(id int64) (*domain.Build, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockBuildRepo) FindByExternalId(id string) (*domain.Build, error) {
	if m.FindByExternalIdFunc != nil {
		return m.FindByExternalIdFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockBuildRepo) UpdateNextActivationSpecific(id int64, next time.Time) error {
	if m.UpdateNextActivationSpecificFunc != nil {
		return m.UpdateNextActivationSpecificFunc(id, next)
	}
	return nil
}
func (m *MockBuildRepo) ClearRunnerId(id int64) error {
	if m.ClearRunnerIdFunc != nil {
		return m.ClearRunnerIdFunc(id)
	}
	return nil
}
func (m *MockBuildRepo) IncrementRetryCounterAndSetNextActivation(id int64, activation time.Time) error {
	if m.IncrementRetryCounterAndSetNextActivationFunc != nil {
		return m.IncrementRetryCounterAndSetNextActivationFunc(id, activation)
	}
	return nil
}
func (m *MockBuildRepo) FindPendingBuilds(size int, runnerGroup string) (*[]domain.Build, error) {
	if m.FindPendingBuildsFunc != nil {
		return m.FindPendingBuildsFunc(size, runnerGroup)
	}
	return &[]domain.Build{}, nil
}
func (m *MockBuildRepo) MarkBuildAsScheduledForExecution(id int64, runnerId int64, modified time.Time) bool {
	if m.MarkBuildAsScheduledForExecutionFunc != nil {
		return m.MarkBuildAsScheduledForExecutionFunc(id, runnerId, modified)
	}
	return true
}
func (m *MockBuildRepo) FindStuckBuilds(minutesRepair string, runnerGroup string, limit int) (*[]domain.Build, error) {
	if m.FindStuckBuildsFunc != nil {
		return m.FindStuckBuildsFunc(minutesRepair, runnerGroup, limit)
	}
	return &[]domain.Build{}, nil
}
func (m *MockBuildRepo) LockBuildByModified(id int64, modified time.Time) bool {
	if m.LockBuildByModifiedFunc != nil {
		return m.LockBuildByModifiedFunc(id, modified)
	}
	return true
}
func (m *MockBuildRepo) SearchBuilds(req models.SearchBuildRequest) (*[]domain.Build, error) {
	return nil, nil
}
func (m *MockBuildRepo) GetTopExecuting(limit int) (*[]domain.Build, error)  { return nil, nil }
func (m *MockBuildRepo) GetNextToExecute(limit int) (*[]domain.Build, error) { return nil, nil }
func (m *MockBuildRepo) GetBuildOverview() ([]repository.BuildOverviewRow, error) {
	return nil, nil
}
func (m *MockBuildRepo) GetPipelineStageOverview(pipelineName string) ([]repository.PipelineStageRow, error) {
	return nil, nil
}

// MockBuildActionRepo records every saved action for assertions.
type MockBuildActionRepo struct {
	mu      sync.Mutex
	Actions []domain.BuildAction
}

func (m *MockBuildActionRepo) Save(a *domain.BuildAction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Actions = append(m.Actions, *a)
	return int64(len(m.Actions)), nil
}
func (m *MockBuildActionRepo) FindAllByBuildID(buildID int64) (*[]domain.BuildAction, error) {
	return nil, nil
}

func (m *MockBuildActionRepo) ByType(actionType string) []domain.BuildAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BuildAction
	for _, a := range m.Actions {
		if a.Type == actionType {
			out = append(out, a)
		}
	}
	return out
}

type MockRunnerRepo struct {
	SaveFunc func(e *internaldomain.Runner) (int64, error)
}

func (m *MockRunnerRepo) Save(e *internaldomain.Runner) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(e)
	}
	return 1, nil
}
func (m *MockRunnerRepo) UpdateLastActive(id int64, ts time.Time) error { return nil }
func (m *MockRunnerRepo) GetRunnersByLastActive(limit int) ([]*internaldomain.Runner, error) {
	return nil, nil
}

type MockDefinitionRepo struct {
	FindAllFunc    func() (*[]domain.PipelineDefinition, error)
	FindByNameFunc func(name string) (*domain.PipelineDefinition, error)
	SaveFunc       func(def *domain.PipelineDefinition) error
}

func (m *MockDefinitionRepo) FindAll() (*[]domain.PipelineDefinition, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc()
	}
	return nil, nil
}
func (m *MockDefinitionRepo) FindByName(name string) (*domain.PipelineDefinition, error) {
	if m.FindByNameFunc != nil {
		return m.FindByNameFunc(name)
	}
	return nil, nil
}
func (m *MockDefinitionRepo) Save(def *domain.PipelineDefinition) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(def)
	}
	return nil
}
