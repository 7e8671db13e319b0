package controllers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/engine"
	internalmodels "github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/internal/util"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/models"

	"log/slog"
	"net/http"
)

// BuildsController holds dependencies for build HTTP endpoints.
type BuildsController struct {
	AuthController
	BuildRepo       engine.BuildRepo
	BuildActionRepo engine.BuildActionRepo
	BuildManager    *engine.BuildManager
}

func NewBuildsController(buildRepo engine.BuildRepo, buildActionRepo engine.BuildActionRepo, buildManager *engine.BuildManager,
	userRepo engine.UserRepo) *BuildsController {
	return &BuildsController{BuildRepo: buildRepo, BuildActionRepo: buildActionRepo, BuildManager: buildManager, AuthController: AuthController{
		UserRepo: userRepo,
	}}
}

func (c *BuildsController) handleGetBuildById(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	idStr := r.PathValue("id")
	if idStr == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "id is an integer", http.StatusBadRequest)
		return
	}

	id64 := int64(id)
	result, err := c.BuildRepo.FindByID(id64)
	if err != nil {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, mapBuildToApiBuild(result, id64))
}

func (c *BuildsController) handleGetBuildByExternalId(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	externalId := r.PathValue("externalId")
	if externalId == "" {
		http.Error(w, "externalId is required", http.StatusBadRequest)
		return
	}

	result, err := c.BuildRepo.FindByExternalId(externalId)
	if err != nil || result == nil {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, mapBuildToApiBuild(result, result.ID))
}

func (c *BuildsController) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.CreateBuildRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	err := validateCreateBuild(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err, id := createBuild(r.Context(), c, req)

	if err != nil {
		slog.Error("Failed to save build", "error", err)
		http.Error(w, "failed to create build", http.StatusInternalServerError)
		return
	}

	c.BuildManager.Wakeup()

	util.WriteJSONResponse(w, http.StatusOK, models.CreateBuildResponse{ID: id})
}

func validateCreateBuild(ctx context.Context, req models.CreateBuildRequest) error {
	// Validate required fields
	if req.ExternalID == "" || req.PipelineName == "" || req.BusinessKey == "" {
		return errors.New("externalId, pipelineName and businessKey are required")
	}
	return nil
}

func createBuild(ctx context.Context, c *BuildsController, req models.CreateBuildRequest) (error, int64) {
	slog.InfoContext(ctx, "Creating build", "externalId", req.ExternalID, "businessKey", req.BusinessKey, "pipeline", req.PipelineName)

	// the pipeline must be loaded, a build for an unknown pipeline would never run
	if _, err := c.BuildManager.GetLoadedPipeline(req.PipelineName); err != nil {
		return err, 0
	}

	//add the username of the creating user to the build vars
	if userName := ctx.Value(core.CtxKeyUsername); userName != nil {
		if s, ok := userName.(string); ok && s != "" {
			if req.BuildVars == nil {
				req.BuildVars = make(map[string]string)
			}
			req.BuildVars["createdBy"] = s
		}
	}

	//if the external id is a duplicate, we return the existing build
	existing, _ := c.BuildRepo.FindByExternalId(req.ExternalID)
	if existing != nil {
		slog.WarnContext(ctx, "Build already exists", "externalId", req.ExternalID)
		return nil, existing.ID
	}

	// Serialize build vars
	var buildVarsJSON string
	if req.BuildVars != nil {
		b, err := json.Marshal(req.BuildVars)
		if err != nil {
			return err, 0
		}
		buildVarsJSON = string(b)
	}

	runnerGroup := req.RunnerGroup
	if runnerGroup == "" {
		runnerGroup = config.GetSystemSettingString(config.ENGINE_RUNNER_GROUP)
	}

	now := time.Now().UTC()
	var nextActivation time.Time
	if req.NextActivation != nil {
		nextActivation = *req.NextActivation
	} else {
		// default to NOW if not specified
		nextActivation = now
	}

	b := &domain.Build{
		Status:         models.StatusNew,
		ExecutionCount: 0,
		RetryCount:     0,
		Created:        now,
		Modified:       now,
		NextActivation: sql.NullTime{Time: nextActivation, Valid: true},
		Started:        sql.NullTime{},
		RunnerGroup:    runnerGroup,
		PipelineName:   req.PipelineName,
		ExternalID:     req.ExternalID,
		BusinessKey:    req.BusinessKey,
	}
	if buildVarsJSON != "" {
		b.BuildVars.String = buildVarsJSON
		b.BuildVars.Valid = true
	}

	id, err := c.BuildRepo.Save(b)
	return err, id
}

func mapBuildToApiBuild(result *domain.Build, id int64) models.BuildApiResponse {
	buildVars := make(map[string]string)
	if result.BuildVars.Valid && len(result.BuildVars.String) > 0 {
		if err := json.Unmarshal([]byte(result.BuildVars.String), &buildVars); err != nil {
			slog.Warn("Failed to parse build vars", "id", id, "error", err)
		}
	}
	apiResult := models.BuildApiResponse{
		ID:             result.ID,
		Status:         result.Status,
		ExecutionCount: result.ExecutionCount,
		RetryCount:     result.RetryCount,
		Created:        result.Created,
		Modified:       result.Modified,
		NextActivation: func() time.Time {
			if result.NextActivation.Valid {
				return result.NextActivation.Time
			}
			return time.Time{}
		}(),
		Started: func() time.Time {
			if result.Started.Valid {
				return result.Started.Time
			}
			return time.Time{}
		}(),
		RunnerID: func() string {
			if result.RunnerID.Valid {
				return result.RunnerID.String
			}
			return ""
		}(),
		RunnerGroup:  result.RunnerGroup,
		PipelineName: result.PipelineName,
		ExternalID:   result.ExternalID,
		BusinessKey:  result.BusinessKey,
		Stage:        result.Stage,
		BuildVars:    buildVars,
	}
	return apiResult
}

func (c *BuildsController) handleSearchBuilds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req internalmodels.SearchBuildRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	//max of 1000 results is allowed
	if req.Limit > 1000 {
		slog.Warn("limit cannot be greater than 1000")
		http.Error(w, "limit cannot be greater than 1000", http.StatusBadRequest)
		return
	}

	results, err := c.BuildRepo.SearchBuilds(req)
	if err != nil {
		slog.Error("Failed to search builds", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(results)
		return
	}
	if results != nil {
		searchResponse := internalmodels.SearchBuildResponse{
			Results: int64(len(*results)),
			Offset:  req.Offset,
			Builds:  *results,
		}
		util.WriteJSONResponse(w, http.StatusOK, searchResponse)
		return
	}

}
