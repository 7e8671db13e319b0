package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/conveyorci/conveyor/internal/engine"
	"github.com/conveyorci/conveyor/internal/util"
)

type ActionsController struct {
	AuthController
	BuildRepo       engine.BuildRepo
	BuildActionRepo engine.BuildActionRepo
}

func NewActionsController(buildRepo engine.BuildRepo,
	buildActionsRepo engine.BuildActionRepo, userRepo engine.UserRepo) *ActionsController {
	return &ActionsController{BuildRepo: buildRepo,
		BuildActionRepo: buildActionsRepo, AuthController: AuthController{
			UserRepo: userRepo,
		}}
}

func (c *ActionsController) handleGetActionsForBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	idStr := r.PathValue("id")
	id, err := strconv.Atoi(idStr) // convert to int
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	results, err := c.BuildActionRepo.FindAllByBuildID(int64(id))
	if err != nil {
		slog.Error("Failed to find build actions", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if results != nil {
		util.WriteJSONResponse(w, http.StatusOK, results)
		return
	}

}
