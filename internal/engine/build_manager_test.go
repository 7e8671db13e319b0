package engine

import (
	"database/sql"
	"testing"

	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"
)

func testPipelines() map[string]*pipeline.Spec {
	return map[string]*pipeline.Spec{
		"ci": {
			Name: "ci",
			On:   pipeline.Triggers{Push: &pipeline.BranchFilter{Branches: []string{"main"}}},
			Jobs: map[string]pipeline.Job{"test": {Steps: []pipeline.Step{{Script: "true"}}}},
		},
		"nightly": {
			Name: "nightly",
			On:   pipeline.Triggers{Push: &pipeline.BranchFilter{Branches: []string{"release-*"}}},
			Jobs: map[string]pipeline.Job{"test": {Steps: []pipeline.Step{{Script: "true"}}}},
		},
	}
}

func newTestManager(buildRepo *MockBuildRepo) *BuildManager {
	registry := map[string]func() core.StepHandler{}
	return NewBuildManager(buildRepo, &MockBuildActionRepo{}, &MockRunnerRepo{}, &MockDefinitionRepo{},
		testPipelines(), &registry, core.NewRealClock())
}

func TestMatchAndCreateBuildsPushToMain(t *testing.T) {
	var saved []*domain.Build
	repo := &MockBuildRepo{
		SaveFunc: func(b *domain.Build) (int64, error) {
			saved = append(saved, b)
			return int64(len(saved)), nil
		},
	}
	bm := newTestManager(repo)

	resp, err := bm.MatchAndCreateBuilds(pipeline.Event{
		Type:       pipeline.EventPush,
		DeliveryID: "d1",
		Repo:       "https://example.com/repo.git",
		Branch:     "main",
		SHA:        "abc123",
	})
	if err != nil {
		t.Fatalf("MatchAndCreateBuilds failed: %v", err)
	}
	if len(resp.BuildIDs) != 1 || resp.Pipelines[0] != "ci" {
		t.Fatalf("Expected one ci build, got %+v", resp)
	}
	if len(saved) != 1 {
		t.Fatalf("Expected 1 saved build, got %d", len(saved))
	}
	b := saved[0]
	if b.ExternalID != "d1-ci" {
		t.Errorf("Expected external id d1-ci, got %s", b.ExternalID)
	}
	if b.PipelineName != "ci" {
		t.Errorf("Expected pipeline ci, got %s", b.PipelineName)
	}
	if !b.NextActivation.Valid {
		t.Error("Expected next activation to be set")
	}
	if !b.BuildVars.Valid {
		t.Error("Expected build vars to be recorded")
	}

	// the wakeup channel was signalled
	select {
	case <-bm.wakeup:
	default:
		t.Error("Expected a wakeup signal after creating builds")
	}
}

func TestMatchAndCreateBuildsNoMatchIsEmptyNotError(t *testing.T) {
	repo := &MockBuildRepo{}
	bm := newTestManager(repo)

	resp, err := bm.MatchAndCreateBuilds(pipeline.Event{
		Type:       pipeline.EventPush,
		DeliveryID: "d2",
		Repo:       "https://example.com/repo.git",
		Branch:     "feature/x",
	})
	if err != nil {
		t.Fatalf("MatchAndCreateBuilds failed: %v", err)
	}
	if len(resp.BuildIDs) != 0 {
		t.Errorf("Expected no builds, got %+v", resp)
	}
}

func TestMatchAndCreateBuildsDuplicateDelivery(t *testing.T) {
	existing := &domain.Build{ID: 42, ExternalID: "d3-ci", PipelineName: "ci"}
	saves := 0
	repo := &MockBuildRepo{
		FindByExternalIdFunc: func(id string) (*domain.Build, error) {
			if id == "d3-ci" {
				return existing, nil
			}
			return nil, sql.ErrNoRows
		},
		SaveFunc: func(b *domain.Build) (int64, error) {
			saves++
			return 1, nil
		},
	}
	bm := newTestManager(repo)

	resp, err := bm.MatchAndCreateBuilds(pipeline.Event{
		Type:       pipeline.EventPush,
		DeliveryID: "d3",
		Repo:       "https://example.com/repo.git",
		Branch:     "main",
	})
	if err != nil {
		t.Fatalf("MatchAndCreateBuilds failed: %v", err)
	}
	if saves != 0 {
		t.Errorf("Expected no new build for a duplicate delivery, got %d saves", saves)
	}
	if len(resp.BuildIDs) != 1 || resp.BuildIDs[0] != 42 {
		t.Errorf("Expected existing build id 42, got %+v", resp)
	}
}

func TestMatchAndCreateBuildsMatchesMultiplePipelines(t *testing.T) {
	saves := 0
	repo := &MockBuildRepo{
		SaveFunc: func(b *domain.Build) (int64, error) {
			saves++
			return int64(saves), nil
		},
	}
	bm := newTestManager(repo)
	// widen ci to all branches so both pipelines match a release push
	bm.Pipelines["ci"].On.Push.Branches = nil

	resp, err := bm.MatchAndCreateBuilds(pipeline.Event{
		Type:       pipeline.EventPush,
		DeliveryID: "d4",
		Repo:       "https://example.com/repo.git",
		Branch:     "release-1.0",
	})
	if err != nil {
		t.Fatalf("MatchAndCreateBuilds failed: %v", err)
	}
	if len(resp.BuildIDs) != 2 {
		t.Fatalf("Expected 2 builds, got %+v", resp)
	}
	// stable, name sorted order
	if resp.Pipelines[0] != "ci" || resp.Pipelines[1] != "nightly" {
		t.Errorf("Expected [ci nightly], got %v", resp.Pipelines)
	}
}

func TestWakeupDoesNotBlock(t *testing.T) {
	bm := newTestManager(&MockBuildRepo{})
	// second call must not block on the full channel
	bm.Wakeup()
	bm.Wakeup()
}

func TestGetLoadedPipeline(t *testing.T) {
	bm := newTestManager(&MockBuildRepo{})
	if _, err := bm.GetLoadedPipeline("ci"); err != nil {
		t.Errorf("Expected ci to be loaded: %v", err)
	}
	if _, err := bm.GetLoadedPipeline("nope"); err == nil {
		t.Error("Expected error for unknown pipeline")
	}
}
