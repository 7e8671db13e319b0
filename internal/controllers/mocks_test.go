package controllers

import (
	"database/sql"
	"time"

	internaldomain "github.com/conveyorci/conveyor/internal/domain"
	"github.com/conveyorci/conveyor/internal/engine"
	"github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/internal/repository"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"
)

// Mock repos for controller tests, implementing the engine interfaces with
// overridable func fields.

type MockBuildRepo struct {
	FindByIDFunc         func(id int64) (*domain.Build, error)
	FindByExternalIdFunc func(id string) (*domain.Build, error)
	SaveFunc             func(b *domain.Build) (int64, error)
	SearchBuildsFunc     func(req models.SearchBuildRequest) (*[]domain.Build, error)
}

func (m *MockBuildRepo) UpdateBuildStatus(id int64, status string) error      { return nil }
func (m *MockBuildRepo) UpdateBuildStartingTime(id int64) error               { return nil }
func (m *MockBuildRepo) UpdateStage(id int64, stage string) error             { return nil }
func (m *MockBuildRepo) SaveBuildVariables(id int64, vars string) error       { return nil }
func (m *MockBuildRepo) SaveBuildVariablesAndTouch(id int64, vars string) error {
	return nil
}
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
func (m *MockBuildRepo) UpdateNextActivationSpecific(id int64, next time.Time) error { return nil }
func (m *MockBuildRepo) ClearRunnerId(id int64) error                                { return nil }
func (m *MockBuildRepo) IncrementRetryCounterAndSetNextActivation(id int64, activation time.Time) error {
	return nil
}
func (m *MockBuildRepo) FindPendingBuilds(size int, runnerGroup string) (*[]domain.Build, error) {
	return &[]domain.Build{}, nil
}
func (m *MockBuildRepo) MarkBuildAsScheduledForExecution(id int64, runnerId int64, modified time.Time) bool {
	return true
}
func (m *MockBuildRepo) FindStuckBuilds(minutesRepair string, runnerGroup string, limit int) (*[]domain.Build, error) {
	return &[]domain.Build{}, nil
}
func (m *MockBuildRepo) LockBuildByModified(id int64, modified time.Time) bool { return true }
func (m *MockBuildRepo) SearchBuilds(req models.SearchBuildRequest) (*[]domain.Build, error) {
	if m.SearchBuildsFunc != nil {
		return m.SearchBuildsFunc(req)
	}
	return &[]domain.Build{}, nil
}
func (m *MockBuildRepo) GetTopExecuting(limit int) (*[]domain.Build, error)  { return nil, nil }
func (m *MockBuildRepo) GetNextToExecute(limit int) (*[]domain.Build, error) { return nil, nil }
func (m *MockBuildRepo) GetBuildOverview() ([]repository.BuildOverviewRow, error) {
	return nil, nil
}
func (m *MockBuildRepo) GetPipelineStageOverview(pipelineName string) ([]repository.PipelineStageRow, error) {
	return nil, nil
}

type MockBuildActionRepo struct {
	SaveFunc            func(a *domain.BuildAction) (int64, error)
	FindAllByBuildIDFunc func(buildID int64) (*[]domain.BuildAction, error)
}

func (m *MockBuildActionRepo) Save(a *domain.BuildAction) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(a)
	}
	return 1, nil
}
func (m *MockBuildActionRepo) FindAllByBuildID(buildID int64) (*[]domain.BuildAction, error) {
	if m.FindAllByBuildIDFunc != nil {
		return m.FindAllByBuildIDFunc(buildID)
	}
	return &[]domain.BuildAction{}, nil
}

type MockRunnerRepo struct {
	GetRunnersByLastActiveFunc func(limit int) ([]*internaldomain.Runner, error)
}

func (m *MockRunnerRepo) Save(e *internaldomain.Runner) (int64, error)  { return 1, nil }
func (m *MockRunnerRepo) UpdateLastActive(id int64, ts time.Time) error { return nil }
func (m *MockRunnerRepo) GetRunnersByLastActive(limit int) ([]*internaldomain.Runner, error) {
	if m.GetRunnersByLastActiveFunc != nil {
		return m.GetRunnersByLastActiveFunc(limit)
	}
	return nil, nil
}

type MockDefinitionRepo struct {
	FindAllFunc    func() (*[]domain.PipelineDefinition, error)
	FindByNameFunc func(name string) (*domain.PipelineDefinition, error)
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
func (m *MockDefinitionRepo) Save(def *domain.PipelineDefinition) error { return nil }

func testPipelines() map[string]*pipeline.Spec {
	return map[string]*pipeline.Spec{
		"ci": {
			Name: "ci",
			On:   pipeline.Triggers{Push: &pipeline.BranchFilter{Branches: []string{"main"}}},
			Jobs: map[string]pipeline.Job{"test": {Steps: []pipeline.Step{{Script: "true"}}}},
		},
	}
}

func newTestManager(buildRepo engine.BuildRepo) *engine.BuildManager {
	return newTestManagerWithDefs(buildRepo, &MockDefinitionRepo{})
}

func newTestManagerWithDefs(buildRepo engine.BuildRepo, defRepo engine.DefinitionRepo) *engine.BuildManager {
	registry := map[string]func() core.StepHandler{}
	return engine.NewBuildManager(buildRepo, &MockBuildActionRepo{}, &MockRunnerRepo{}, defRepo,
		testPipelines(), &registry, core.NewRealClock())
}
