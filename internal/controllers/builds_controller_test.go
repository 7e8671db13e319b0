package controllers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	internalmodels "github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/models"
)

func newBuildsController(repo *MockBuildRepo) *BuildsController {
	return NewBuildsController(repo, &MockBuildActionRepo{}, newTestManager(repo), &MockUserRepo{})
}

func TestBuildsController_GetBuildById(t *testing.T) {
	now := time.Now().UTC()
	repo := &MockBuildRepo{
		FindByIDFunc: func(id int64) (*domain.Build, error) {
			if id != 12 {
				return nil, sql.ErrNoRows
			}
			return &domain.Build{
				ID:           12,
				Status:       models.StatusFinished,
				Created:      now,
				Modified:     now,
				PipelineName: "ci",
				ExternalID:   "d1-ci",
				BusinessKey:  "repo@main",
				BuildVars:    sql.NullString{String: `{"branch":"main"}`, Valid: true},
			}, nil
		},
	}
	c := newBuildsController(repo)

	req := httptest.NewRequest("GET", "/api/builds/12", nil)
	req.SetPathValue("id", "12")
	w := httptest.NewRecorder()
	c.handleGetBuildById(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp models.BuildApiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != 12 || resp.PipelineName != "ci" || resp.BuildVars["branch"] != "main" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	// unknown id
	req = httptest.NewRequest("GET", "/api/builds/99", nil)
	req.SetPathValue("id", "99")
	w = httptest.NewRecorder()
	c.handleGetBuildById(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	// non-numeric id
	req = httptest.NewRequest("GET", "/api/builds/abc", nil)
	req.SetPathValue("id", "abc")
	w = httptest.NewRecorder()
	c.handleGetBuildById(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestBuildsController_GetBuildByExternalId(t *testing.T) {
	repo := &MockBuildRepo{
		FindByExternalIdFunc: func(id string) (*domain.Build, error) {
			if id == "d1-ci" {
				return &domain.Build{ID: 3, ExternalID: "d1-ci", PipelineName: "ci"}, nil
			}
			return nil, sql.ErrNoRows
		},
	}
	c := newBuildsController(repo)

	req := httptest.NewRequest("GET", "/api/builds/byExternalId/d1-ci", nil)
	req.SetPathValue("externalId", "d1-ci")
	w := httptest.NewRecorder()
	c.handleGetBuildByExternalId(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp models.BuildApiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != 3 {
		t.Errorf("Expected id 3, got %d", resp.ID)
	}

	req = httptest.NewRequest("GET", "/api/builds/byExternalId/missing", nil)
	req.SetPathValue("externalId", "missing")
	w = httptest.NewRecorder()
	c.handleGetBuildByExternalId(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestBuildsController_CreateBuild(t *testing.T) {
	var saved *domain.Build
	repo := &MockBuildRepo{
		SaveFunc: func(b *domain.Build) (int64, error) {
			saved = b
			return 21, nil
		},
	}
	c := newBuildsController(repo)

	body, _ := json.Marshal(models.CreateBuildRequest{
		ExternalID:   "manual-1",
		PipelineName: "ci",
		BusinessKey:  "repo@main",
		BuildVars:    map[string]string{"branch": "main"},
	})
	req := httptest.NewRequest("POST", "/api/builds", bytes.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), core.CtxKeyUsername, "alice"))
	w := httptest.NewRecorder()
	c.handleCreateBuild(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.CreateBuildResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != 21 {
		t.Errorf("Expected id 21, got %d", resp.ID)
	}
	if saved == nil {
		t.Fatal("Expected a build to be saved")
	}
	if saved.Status != models.StatusNew {
		t.Errorf("Expected status NEW, got %s", saved.Status)
	}
	if saved.RunnerGroup != "default" {
		t.Errorf("Expected default runner group, got %s", saved.RunnerGroup)
	}

	var vars map[string]string
	if err := json.Unmarshal([]byte(saved.BuildVars.String), &vars); err != nil {
		t.Fatalf("Failed to parse build vars: %v", err)
	}
	if vars["createdBy"] != "alice" {
		t.Errorf("Expected createdBy alice, got %q", vars["createdBy"])
	}
}

func TestBuildsController_CreateBuildValidation(t *testing.T) {
	c := newBuildsController(&MockBuildRepo{})

	// missing required fields
	body, _ := json.Marshal(models.CreateBuildRequest{ExternalID: "x"})
	req := httptest.NewRequest("POST", "/api/builds", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.handleCreateBuild(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	// unknown fields rejected
	req = httptest.NewRequest("POST", "/api/builds", bytes.NewReader([]byte(`{"externalId":"x","bogus":1}`)))
	w = httptest.NewRecorder()
	c.handleCreateBuild(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown field, got %d", w.Code)
	}
}

func TestBuildsController_CreateBuildUnknownPipeline(t *testing.T) {
	saves := 0
	repo := &MockBuildRepo{
		SaveFunc: func(b *domain.Build) (int64, error) {
			saves++
			return 1, nil
		},
	}
	c := newBuildsController(repo)

	body, _ := json.Marshal(models.CreateBuildRequest{
		ExternalID:   "manual-2",
		PipelineName: "does-not-exist",
		BusinessKey:  "repo@main",
	})
	req := httptest.NewRequest("POST", "/api/builds", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.handleCreateBuild(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if saves != 0 {
		t.Errorf("Expected no save for unknown pipeline, got %d", saves)
	}
}

func TestBuildsController_CreateBuildDuplicateExternalId(t *testing.T) {
	saves := 0
	repo := &MockBuildRepo{
		FindByExternalIdFunc: func(id string) (*domain.Build, error) {
			return &domain.Build{ID: 42, ExternalID: id}, nil
		},
		SaveFunc: func(b *domain.Build) (int64, error) {
			saves++
			return 1, nil
		},
	}
	c := newBuildsController(repo)

	body, _ := json.Marshal(models.CreateBuildRequest{
		ExternalID:   "manual-1",
		PipelineName: "ci",
		BusinessKey:  "repo@main",
	})
	req := httptest.NewRequest("POST", "/api/builds", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.handleCreateBuild(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp models.CreateBuildResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != 42 {
		t.Errorf("Expected existing id 42, got %d", resp.ID)
	}
	if saves != 0 {
		t.Errorf("Expected no save for duplicate, got %d", saves)
	}
}

func TestBuildsController_SearchBuilds(t *testing.T) {
	repo := &MockBuildRepo{
		SearchBuildsFunc: func(req internalmodels.SearchBuildRequest) (*[]domain.Build, error) {
			if req.Status != models.StatusFailed {
				t.Errorf("Expected status filter to pass through, got %q", req.Status)
			}
			return &[]domain.Build{{ID: 1, Status: models.StatusFailed}}, nil
		},
	}
	c := newBuildsController(repo)

	body, _ := json.Marshal(internalmodels.SearchBuildRequest{Status: models.StatusFailed, Limit: 10})
	req := httptest.NewRequest("POST", "/api/builds/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.handleSearchBuilds(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp internalmodels.SearchBuildResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Results != 1 || len(resp.Builds) != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestBuildsController_SearchBuildsLimitTooLarge(t *testing.T) {
	c := newBuildsController(&MockBuildRepo{})

	body, _ := json.Marshal(internalmodels.SearchBuildRequest{Limit: 1001})
	req := httptest.NewRequest("POST", "/api/builds/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.handleSearchBuilds(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
