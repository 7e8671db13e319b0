package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/internal/repository"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	conveyormodels "github.com/conveyorci/conveyor/pkg/conveyor/models"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"

	internaldomain "github.com/conveyorci/conveyor/internal/domain"
)

// QueuedBuild pairs a locked build row with its resolved pipeline spec.
type QueuedBuild struct {
	Build domain.Build
	Spec  *pipeline.Spec
}

var buildQueue chan *QueuedBuild // Initialized in StartEngine using system setting

type BuildManager struct {
	Pipelines       map[string]*pipeline.Spec
	StepRegistry    *map[string]func() core.StepHandler
	BuildRepo       BuildRepo
	BuildActionRepo BuildActionRepo
	runnerRepo      RunnerRepo
	DefinitionRepo  DefinitionRepo
	runnerID        int64
	wakeup          chan struct{}
	clock           core.Clock
}

func NewBuildManager(buildRepo BuildRepo, buildActionRepo BuildActionRepo, runnerRepo RunnerRepo,
	definitionRepo DefinitionRepo, pipelines map[string]*pipeline.Spec,
	stepRegistry *map[string]func() core.StepHandler, clock core.Clock) *BuildManager {
	return &BuildManager{
		Pipelines:       pipelines,
		StepRegistry:    stepRegistry,
		BuildRepo:       buildRepo,
		BuildActionRepo: buildActionRepo,
		runnerRepo:      runnerRepo,
		DefinitionRepo:  definitionRepo,
		wakeup:          make(chan struct{}, 1),
		clock:           clock,
	}
}

// GetLoadedPipeline returns the in-memory spec for a pipeline name, or an
// error when no such pipeline was loaded at startup.
func (bm *BuildManager) GetLoadedPipeline(name string) (*pipeline.Spec, error) {
	spec, ok := bm.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("no pipeline loaded with name %q", name)
	}
	return spec, nil
}

// ListPipelineDefinitions exposes repository list for web/API layers.
func (bm *BuildManager) ListPipelineDefinitions() (*[]domain.PipelineDefinition, error) {
	return bm.DefinitionRepo.FindAll()
}

// GetPipelineDefinitionByName exposes repository get by name for web/API layers.
func (bm *BuildManager) GetPipelineDefinitionByName(name string) (*domain.PipelineDefinition, error) {
	return bm.DefinitionRepo.FindByName(name)
}

// ListRunners returns recent runners ordered by last_active desc.
func (bm *BuildManager) ListRunners(limit int) ([]*internaldomain.Runner, error) {
	return bm.runnerRepo.GetRunnersByLastActive(limit)
}

// SearchBuilds delegates to the repository to search based on request filters.
func (bm *BuildManager) SearchBuilds(req models.SearchBuildRequest) (*[]domain.Build, error) {
	return bm.BuildRepo.SearchBuilds(req)
}

// TopExecuting exposes repository method for dashboard
func (bm *BuildManager) TopExecuting(limit int) (*[]domain.Build, error) {
	return bm.BuildRepo.GetTopExecuting(limit)
}

// NextToExecute exposes repository method for dashboard
func (bm *BuildManager) NextToExecute(limit int) (*[]domain.Build, error) {
	return bm.BuildRepo.GetNextToExecute(limit)
}

// Overview exposes grouped counts for home dashboard
func (bm *BuildManager) Overview() ([]repository.BuildOverviewRow, error) {
	return bm.BuildRepo.GetBuildOverview()
}

// PipelineOverview exposes counts by stage for a pipeline
func (bm *BuildManager) PipelineOverview(pipelineName string) ([]repository.PipelineStageRow, error) {
	return bm.BuildRepo.GetPipelineStageOverview(pipelineName)
}

// StartEngine starts polling for new builds at the given interval
func (bm *BuildManager) StartEngine(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	registerRunnerInstance(ctx, bm)

	registerPipelineDefinitions(ctx, bm)

	go startBuildRepairService(ctx, bm)

	// Initialize build queue size from system setting ENGINE_BATCH_SIZE
	queueSize := config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE)
	if queueSize <= 0 {
		queueSize = 10 // fallback default
	}
	buildQueue = make(chan *QueuedBuild, queueSize)

	slog.Info("Starting build engine", "workers", config.GetSystemSettingInteger(config.ENGINE_RUNNER_SIZE), "queue_size", queueSize)
	for i := 0; i < config.GetSystemSettingInteger(config.ENGINE_RUNNER_SIZE); i++ {
		go Worker(ctx, i, bm.runnerID, bm.BuildRepo, bm.BuildActionRepo, *bm.StepRegistry, buildQueue)
	}

	slog.Info("Build engine started", "poll_interval", pollInterval.String())

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Build engine stopping due to context cancel")
			return
		case <-ticker.C:
			bm.pollAndRunBuilds(ctx)
		case <-bm.wakeup:
			bm.pollAndRunBuilds(ctx)
		}
	}
}

// responsible for finding builds that might have crashed half way and waking them up again
// these builds will be in a state of SCHEDULED or EXECUTING and the runner will be last active more than the repair threshold ago
func startBuildRepairService(ctx context.Context, bm *BuildManager) {
	dur, _ := time.ParseDuration(config.GetSystemSettingString(config.ENGINE_STUCK_BUILDS_INTERVAL))
	ticker := time.NewTicker(dur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Build repair service stopping due to context cancel")
			return
		case <-ticker.C:
			stuckBuilds, err := bm.BuildRepo.FindStuckBuilds(
				config.GetSystemSettingString(config.ENGINE_STUCK_BUILDS_REPAIR_AFTER_MINUTES),
				config.GetSystemSettingString(config.ENGINE_RUNNER_GROUP),
				100)
			if err != nil {
				slog.Error("Error finding stuck builds", "error", err)
				continue
			}
			for _, b := range *stuckBuilds {
				slog.Warn("Repairing stuck build", "build_id", b.ID, "business_key", b.BusinessKey, "stage", b.Stage, "status", b.Status)
				previousRunnerId := b.RunnerID
				exclusiveLock := bm.BuildRepo.LockBuildByModified(b.ID, b.Modified)
				if exclusiveLock {
					_, _ = bm.BuildActionRepo.Save(&domain.BuildAction{
						BuildID:        b.ID,
						RunnerID:       bm.runnerID,
						ExecutionCount: 1,
						Type:           "REPAIRED",
						Name:           "REPAIRED",
						Text:           "Repaired and scheduled, previous runner was: " + fmt.Sprint(previousRunnerId.String),
						DateTime:       time.Now(),
					})
					//set the build to next execute now
					err := bm.BuildRepo.UpdateNextActivationSpecific(b.ID, time.Now())
					if err != nil {
						slog.ErrorContext(ctx, "Failed to repair update build next activation", "build_id", b.ID, "error", err)
					}
					err = bm.BuildRepo.ClearRunnerId(b.ID)
					if err != nil {
						slog.ErrorContext(ctx, "Failed to repair clear runner id", "build_id", b.ID, "error", err)
					}
				}
			}
		}
	}
}

// registerPipelineDefinitions upserts a definition row per loaded pipeline so
// the web and API layers can show descriptions and flowcharts.
func registerPipelineDefinitions(ctx context.Context, bm *BuildManager) {
	for name, spec := range bm.Pipelines {
		def, err := bm.DefinitionRepo.FindByName(name)
		if err != nil {
			// If not found, we'll create it; for other errors, log and continue
			slog.WarnContext(ctx, "Pipeline definition lookup error, will attempt create", "name", name, "error", err)
			def = nil
		}

		flow := spec.FlowChart()

		if def == nil {
			def = &domain.PipelineDefinition{
				Name:        name,
				Description: spec.Description,
				Created:     time.Now(),
				Updated:     time.Now(),
				FlowChart:   flow,
			}
			slog.InfoContext(ctx, "Saving pipeline definition", "name", name)
			if err := bm.DefinitionRepo.Save(def); err != nil {
				slog.Error("Failed to save pipeline definition", "name", name, "error", err)
			}
			continue
		}

		slog.InfoContext(ctx, "Updating pipeline definition", "name", name)
		def.Description = spec.Description
		def.Updated = time.Now()
		def.FlowChart = flow
		if err := bm.DefinitionRepo.Save(def); err != nil {
			slog.Error("Failed to update pipeline definition", "name", name, "error", err)
		}
	}
}

func registerRunnerInstance(ctx context.Context, bm *BuildManager) {
	name := config.GetSystemSettingString(config.RUNNER_NAME)
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "conveyor-runner"
		} else {
			name = hostname
		}
	}
	runner := &internaldomain.Runner{Name: name, Started: time.Now(), LastActive: time.Now()}
	id, err := bm.runnerRepo.Save(runner)
	if err != nil {
		slog.Error("Failed to register runner", "error", err)
	} else {
		bm.runnerID = id
		slog.Info("Registered runner", "runner_id", id, "name", name)
		// Heartbeat ticker updates last_active every 30s
		hb := time.NewTicker(30 * time.Second)
		go func(runnerID int64) {
			for range hb.C {
				if err := bm.runnerRepo.UpdateLastActive(runnerID, time.Now()); err != nil {
					slog.Error("Failed to update runner last_active", "runner_id", runnerID, "error", err)
				} else {
					slog.Debug("Updated runner last_active", "runner_id", runnerID)
				}
			}
		}(id)
	}
}

// pollAndRunBuilds queries the repository for due builds and queues them
func (bm *BuildManager) pollAndRunBuilds(ctx context.Context) {
	slog.Debug("Polling for new builds")

	if len(buildQueue) >= config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE) {
		slog.Warn("build queue full, skipping pollAndRunBuilds, possibly stuck builds or long running builds")
		return
	}

	builds, err := bm.BuildRepo.FindPendingBuilds(
		config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE),
		config.GetSystemSettingString(config.ENGINE_RUNNER_GROUP),
	)
	if err != nil {
		slog.Error("Error fetching builds", "error", err)
		return
	}

	for _, b := range *builds {

		spec, ok := bm.Pipelines[b.PipelineName]
		if !ok {
			slog.Error("No pipeline loaded for build, failing it", "build_id", b.ID, "pipeline", b.PipelineName)
			_, _ = bm.BuildActionRepo.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: bm.runnerID, ExecutionCount: 1,
				Type: "ERROR", Name: "NO_PIPELINE", Text: "no pipeline definition loaded for " + b.PipelineName, DateTime: time.Now()})
			_ = bm.BuildRepo.UpdateBuildStatus(b.ID, conveyormodels.StatusFailed)
			continue
		}

		// first we mark the build as scheduled
		slog.InfoContext(ctx, "Marking build as scheduled for execution", "business_key", b.BusinessKey, "externalId", b.ExternalID)
		exclusiveLock := bm.BuildRepo.MarkBuildAsScheduledForExecution(b.ID, bm.runnerID, b.Modified)

		if exclusiveLock == false {
			slog.InfoContext(ctx, "Unable to gain lock on build, possibly picked up by other runner", "business_key", b.BusinessKey, "externalId", b.ExternalID)
			_, _ = bm.BuildActionRepo.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: bm.runnerID, ExecutionCount: 1, Type: "LOCK_FAILED", Name: "LOCK_FAILED", Text: "Failed to acquire a lock on the build", DateTime: time.Now()})
			continue
		}
		_, _ = bm.BuildActionRepo.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: bm.runnerID, ExecutionCount: 1, Type: "SCHEDULED", Name: "SCHEDULED", Text: "Scheduled for Execution", DateTime: time.Now()})

		slog.InfoContext(ctx, "Add build to execution channel", "business_key", b.BusinessKey, "externalId", b.ExternalID)
		buildQueue <- &QueuedBuild{Build: b, Spec: spec}
	}
}

// MatchAndCreateBuilds creates one build per pipeline matching the event.
// Deliveries are idempotent: an external id that already exists returns the
// existing build instead of creating another one.
func (bm *BuildManager) MatchAndCreateBuilds(ev pipeline.Event) (*conveyormodels.HookResponse, error) {
	resp := &conveyormodels.HookResponse{BuildIDs: []int64{}, Pipelines: []string{}}

	names := make([]string, 0, len(bm.Pipelines))
	for name := range bm.Pipelines {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := bm.Pipelines[name]
		if !spec.Matches(ev) {
			continue
		}
		externalID := ev.DeliveryID + "-" + name

		if existing, err := bm.BuildRepo.FindByExternalId(externalID); err == nil && existing != nil {
			slog.Info("Duplicate delivery, returning existing build", "external_id", externalID, "build_id", existing.ID)
			resp.BuildIDs = append(resp.BuildIDs, existing.ID)
			resp.Pipelines = append(resp.Pipelines, name)
			continue
		}

		vars := map[string]string{
			conveyormodels.VarEvent:  ev.Type,
			conveyormodels.VarRepo:   ev.Repo,
			conveyormodels.VarBranch: ev.Branch,
			conveyormodels.VarSHA:    ev.SHA,
		}
		if ev.BaseBranch != "" {
			vars[conveyormodels.VarBaseBranch] = ev.BaseBranch
		}
		if ev.Sender != "" {
			vars[conveyormodels.VarSender] = ev.Sender
		}
		varsJSON, _ := json.Marshal(vars)

		now := bm.clock.Now().UTC()
		b := &domain.Build{
			Status:         conveyormodels.StatusNew,
			Created:        now,
			Modified:       now,
			NextActivation: sql.NullTime{Time: now, Valid: true},
			RunnerGroup:    config.GetSystemSettingString(config.ENGINE_RUNNER_GROUP),
			PipelineName:   name,
			ExternalID:     externalID,
			BusinessKey:    ev.Repo + "@" + ev.Branch,
			BuildVars:      sql.NullString{String: string(varsJSON), Valid: true},
		}
		id, err := bm.BuildRepo.Save(b)
		if err != nil {
			return nil, err
		}
		slog.Info("Created build for event", "build_id", id, "pipeline", name, "event", ev.Type, "branch", ev.Branch)
		resp.BuildIDs = append(resp.BuildIDs, id)
		resp.Pipelines = append(resp.Pipelines, name)
	}

	if len(resp.BuildIDs) > 0 {
		bm.Wakeup()
	}
	return resp, nil
}

func (bm *BuildManager) Wakeup() {
	slog.Info("Wakeup Manager called")
	select {
	case bm.wakeup <- struct{}{}:
	default:
	}
}
