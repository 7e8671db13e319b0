package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/engine"
	"github.com/conveyorci/conveyor/internal/util"
	"github.com/conveyorci/conveyor/pkg/conveyor/models"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"
)

// HooksController receives repository events and turns them into builds.
// The hook endpoint authenticates with a shared secret token instead of the
// session or API key auth used everywhere else, because the caller is the
// forge, not a user.
type HooksController struct {
	BuildManager *engine.BuildManager
}

func NewHooksController(buildManager *engine.BuildManager) *HooksController {
	return &HooksController{BuildManager: buildManager}
}

func (c *HooksController) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if secret := config.GetSystemSettingString(config.HOOK_SHARED_SECRET); secret != "" {
		token := r.Header.Get("X-Conveyor-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	eventType := r.Header.Get("X-Conveyor-Event")
	if eventType != pipeline.EventPush && eventType != pipeline.EventPullRequest {
		http.Error(w, "unsupported event type", http.StatusBadRequest)
		return
	}

	var payload models.HookPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if err := validateHook(eventType, payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// a forge that sends no delivery id loses idempotency but still builds
	if payload.DeliveryID == "" {
		payload.DeliveryID = uuid.NewString()
	}

	ev := pipeline.Event{
		Type:       eventType,
		DeliveryID: payload.DeliveryID,
		Repo:       payload.Repo,
		Branch:     payload.Branch,
		BaseBranch: payload.BaseBranch,
		SHA:        payload.SHA,
		Sender:     payload.Sender,
	}

	resp, err := c.BuildManager.MatchAndCreateBuilds(ev)
	if err != nil {
		slog.Error("Failed to create builds for hook", "delivery_id", ev.DeliveryID, "error", err)
		http.Error(w, "failed to create builds", http.StatusInternalServerError)
		return
	}

	slog.Info("Processed hook", "event", eventType, "delivery_id", ev.DeliveryID, "builds", len(resp.BuildIDs))
	util.WriteJSONResponse(w, http.StatusOK, resp)
}

func validateHook(eventType string, payload models.HookPayload) error {
	if payload.Repo == "" || payload.Branch == "" {
		return errors.New("repo and branch are required")
	}
	if eventType == pipeline.EventPullRequest && payload.BaseBranch == "" {
		return errors.New("baseBranch is required for pull_request events")
	}
	return nil
}
