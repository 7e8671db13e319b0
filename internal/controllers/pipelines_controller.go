package controllers

import (
	"log/slog"
	"net/http"

	"github.com/conveyorci/conveyor/internal/engine"
	"github.com/conveyorci/conveyor/internal/util"
)

type PipelinesController struct {
	AuthController
	BuildManager *engine.BuildManager
}

func NewPipelinesController(buildManager *engine.BuildManager, userRepo engine.UserRepo) *PipelinesController {
	return &PipelinesController{
		BuildManager: buildManager,
		AuthController: AuthController{
			UserRepo: userRepo,
		},
	}
}

func (c *PipelinesController) handleGetPipelines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	defs, err := c.BuildManager.ListPipelineDefinitions()
	if err != nil {
		slog.Error("Failed to list pipeline definitions", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, defs)
}

func (c *PipelinesController) handleGetPipelineByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	def, err := c.BuildManager.GetPipelineDefinitionByName(name)
	if err != nil || def == nil {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, def)
}
