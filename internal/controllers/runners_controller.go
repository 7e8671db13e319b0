package controllers

import (
	"log/slog"
	"net/http"

	"github.com/conveyorci/conveyor/internal/engine"
	"github.com/conveyorci/conveyor/internal/util"
)

type RunnersController struct {
	AuthController
	RunnersRepo engine.RunnerRepo
}

func NewRunnersController(
	runnersRepo engine.RunnerRepo, userRepo engine.UserRepo) *RunnersController {
	return &RunnersController{
		RunnersRepo: runnersRepo,
		AuthController: AuthController{
			UserRepo: userRepo,
		},
	}
}

func (c *RunnersController) handleGetRunners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	slog.Info("GetRunners called")

	results, err := c.RunnersRepo.GetRunnersByLastActive(20)
	if err != nil {
		slog.Error("Failed to search runners", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if results != nil {
		util.WriteJSONResponse(w, http.StatusOK, results)
		return
	}

}
