package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/models"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"
)

// RunBuild executes a queued build stage by stage. Jobs inside a stage run
// concurrently, steps inside a job run in order, and the first failing step
// fails its job and with it the whole build.
func RunBuild(ctx context.Context, qb *QueuedBuild, r BuildRepo, wa BuildActionRepo, registry map[string]func() core.StepHandler, runnerID int64, workerID string) {

	b := &qb.Build
	spec := qb.Spec

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "Panic while running build", "build_id", b.ID, "panic", rec, "worker_id", workerID)
			_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount,
				Type: "ERROR", Name: "PANIC", Text: fmt.Sprint(rec), DateTime: time.Now()})
			_ = r.UpdateBuildStatus(b.ID, models.StatusFailed)
			_ = r.ClearRunnerId(b.ID)
		}
	}()

	slog.InfoContext(ctx, "Running build", "build_id", b.ID, "pipeline", b.PipelineName, "worker_id", workerID)
	err := r.UpdateBuildStatus(b.ID, models.StatusExecuting)
	_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount, Type: "EXECUTING", Name: "EXECUTING", Text: "EXECUTING", DateTime: time.Now()})
	if err != nil {
		slog.ErrorContext(ctx, "Error updating build status", "error", err, "worker_id", workerID)
		return
	}

	vars := map[string]string{}
	if b.BuildVars.Valid && b.BuildVars.String != "" {
		if err := json.Unmarshal([]byte(b.BuildVars.String), &vars); err != nil {
			slog.ErrorContext(ctx, "Error parsing build vars", "build_id", b.ID, "error", err, "worker_id", workerID)
		}
	}

	if !b.Started.Valid {
		err := r.UpdateBuildStartingTime(b.ID)
		_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount, Type: "STARTING", Name: "EXECUTING", Text: "Starting Build", DateTime: time.Now()})
		if err != nil {
			slog.ErrorContext(ctx, "Error updating build starting time", "error", err, "worker_id", workerID)
			return
		}
	}

	// every execution, retries included, starts from a clean workspace
	workspace := filepath.Join(config.GetSystemSettingString(config.WORKSPACE_ROOT), fmt.Sprintf("%s-%d", b.PipelineName, b.ID))
	if err := prepareWorkspace(workspace); err != nil {
		processStepExecutionError(ctx, b, spec, r, wa, runnerID, workerID, "workspace", err)
		return
	}
	_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount, Type: "WORKSPACE", Name: "WORKSPACE", Text: workspace, DateTime: time.Now()})

	stages, err := spec.Stages()
	if err != nil {
		// a cycle slipping past validation means the loaded spec is unusable
		slog.ErrorContext(ctx, "Error computing stages", "build_id", b.ID, "error", err, "worker_id", workerID)
		_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount, Type: "ERROR", Name: "STAGES", Text: err.Error(), DateTime: time.Now()})
		_ = r.UpdateBuildStatus(b.ID, models.StatusFailed)
		_ = r.ClearRunnerId(b.ID)
		return
	}

	buildFailed := false
	for _, stage := range stages {
		g, gctx := errgroup.WithContext(ctx)
		for _, jobName := range stage {
			jobName := jobName
			g.Go(func() error {
				return runJob(gctx, b, spec, jobName, workspace, vars, r, wa, registry, runnerID, workerID)
			})
		}
		if err := g.Wait(); err != nil {
			processStepExecutionError(ctx, b, spec, r, wa, runnerID, workerID, b.Stage, err)
			buildFailed = true
			break
		}
	}

	if !buildFailed {
		compareAndSaveBuildVars(ctx, b, vars, r, workerID)
		processBuildCompleted(ctx, b, r, wa, runnerID, workerID)
	}

	retainWorkspace(ctx, workspace, buildFailed, workerID)
}

// runJob runs all steps of one job in order, stopping at the first failure.
func runJob(ctx context.Context, b *domain.Build, spec *pipeline.Spec, jobName string, workspace string,
	vars map[string]string, r BuildRepo, wa BuildActionRepo, registry map[string]func() core.StepHandler,
	runnerID int64, workerID string) error {

	job := spec.Jobs[jobName]

	slog.InfoContext(ctx, "Starting job", "build_id", b.ID, "job", jobName, "worker_id", workerID)
	//retry counts are build scoped so progressing through jobs does not reset them
	if err := r.UpdateStage(b.ID, jobName); err != nil {
		return err
	}
	b.Stage = jobName
	_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount, Type: "JOB_STARTED", Name: jobName, Text: "Starting job " + jobName, DateTime: time.Now()})

	for i, step := range job.Steps {
		stepName := step.Name
		if stepName == "" {
			stepName = fmt.Sprintf("step-%d", i+1)
		}

		factory, ok := registry[step.Kind()]
		if !ok {
			return fmt.Errorf("job %s step %s: no handler registered for kind %q", jobName, stepName, step.Kind())
		}

		dir := workspace
		if step.Dir != "" {
			dir = filepath.Join(workspace, step.Dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("job %s step %s: create dir: %w", jobName, stepName, err)
		}

		sc := &core.StepContext{
			Build:     b,
			Job:       jobName,
			Step:      step,
			Workspace: workspace,
			Dir:       dir,
			Env:       mergeEnv(spec, job, step, vars),
			Vars:      vars,
		}

		slog.InfoContext(ctx, "Running step", "build_id", b.ID, "job", jobName, "step", stepName, "kind", step.Kind(), "worker_id", workerID)
		res, err := factory().Execute(ctx, sc)

		text := ""
		if res != nil {
			text = res.Output
			if res.Truncated {
				slog.WarnContext(ctx, "Step output truncated", "build_id", b.ID, "job", jobName, "step", stepName, "worker_id", workerID)
			}
		}
		if err != nil {
			exitCode := -1
			if res != nil {
				exitCode = res.ExitCode
			}
			_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount,
				Type: "STEP_FAILED", Name: jobName + "/" + stepName, Text: text + "\n" + err.Error(), DateTime: time.Now()})
			return fmt.Errorf("job %s step %s failed (exit %d): %w", jobName, stepName, exitCode, err)
		}
		_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount,
			Type: "STEP", Name: jobName + "/" + stepName, Text: text, DateTime: time.Now()})
	}

	slog.InfoContext(ctx, "Job finished", "build_id", b.ID, "job", jobName, "worker_id", workerID)
	return nil
}

// mergeEnv layers the environments: process env, then pipeline, job and step
// env blocks, then the build vars exposed as CONVEYOR_* variables. Later
// layers win.
func mergeEnv(spec *pipeline.Spec, job pipeline.Job, step pipeline.Step, vars map[string]string) []string {
	env := os.Environ()
	for _, block := range []map[string]string{spec.Env, job.Env, step.Env} {
		for k, v := range block {
			env = append(env, k+"="+v)
		}
	}
	for k, v := range vars {
		env = append(env, "CONVEYOR_"+strings.ToUpper(k)+"="+v)
	}
	return env
}

func prepareWorkspace(workspace string) error {
	if err := os.RemoveAll(workspace); err != nil {
		return fmt.Errorf("clean workspace %s: %w", workspace, err)
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace %s: %w", workspace, err)
	}
	return nil
}

func retainWorkspace(ctx context.Context, workspace string, buildFailed bool, workerID string) {
	keep := config.GetSystemSettingString(config.KEEP_WORKSPACES)
	if keep == config.KEEP_WORKSPACES_ALWAYS {
		return
	}
	if keep == config.KEEP_WORKSPACES_ON_FAILURE && buildFailed {
		return
	}
	if err := os.RemoveAll(workspace); err != nil {
		slog.ErrorContext(ctx, "Error removing workspace", "workspace", workspace, "error", err, "worker_id", workerID)
	}
}

func processBuildCompleted(ctx context.Context, b *domain.Build, r BuildRepo, wa BuildActionRepo, runnerID int64, workerID string) {
	slog.InfoContext(ctx, "Build completed", "build_id", b.ID, "worker_id", workerID)
	err := r.UpdateBuildStatus(b.ID, models.StatusFinished)
	_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount, Type: "FINISHED", Name: b.Stage, Text: "build complete", DateTime: time.Now()})
	if err != nil {
		slog.ErrorContext(ctx, "Error updating build status", "error", err, "worker_id", workerID)
		return
	}
	//clear out the runner id so the row no longer looks in flight
	if err := r.ClearRunnerId(b.ID); err != nil {
		slog.ErrorContext(ctx, "Error clearing runner id", "error", err, "worker_id", workerID)
	}
}

func processStepExecutionError(ctx context.Context, b *domain.Build, spec *pipeline.Spec, r BuildRepo, wa BuildActionRepo, runnerID int64, workerID string, stage string, callErr error) {
	slog.ErrorContext(ctx, "Error executing build", "build_id", b.ID, "stage", stage, "error", callErr, "worker_id", workerID)
	_, _ = wa.Save(&domain.BuildAction{
		BuildID:        b.ID,
		RunnerID:       runnerID,
		ExecutionCount: b.ExecutionCount,
		Type:           "ERROR",
		Name:           stage,
		Text:           callErr.Error(),
		DateTime:       time.Now(),
	})

	retryConfig := spec.Retry.Config()
	if b.RetryCount >= retryConfig.MaxRetryCount {
		slog.ErrorContext(ctx, "Max retry count reached", "build_id", b.ID, "worker_id", workerID)
		_ = r.UpdateBuildStatus(b.ID, models.StatusFailed)
		_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount,
			Type: "FAILED", Name: stage, Text: fmt.Sprintf("Max retry count reached for build id:%d count :%d", b.ID, b.RetryCount), DateTime: time.Now()})
		_ = r.ClearRunnerId(b.ID)
		return
	}

	nextActivation := time.Now().Add(retryConfig.SlidingInterval(b.RetryCount))
	err := r.IncrementRetryCounterAndSetNextActivation(b.ID, nextActivation)
	if err != nil {
		slog.ErrorContext(ctx, "Error incrementing retry count", "error", err, "worker_id", workerID)
		return
	}
	_, _ = wa.Save(&domain.BuildAction{BuildID: b.ID, RunnerID: runnerID, ExecutionCount: b.ExecutionCount,
		Type: "RETRY", Name: stage, Text: fmt.Sprintf("Retry at  :%s", nextActivation), DateTime: time.Now()})
}

func compareAndSaveBuildVars(ctx context.Context, b *domain.Build, vars map[string]string, r BuildRepo, workerID string) {
	jsonString, _ := json.Marshal(vars)

	if string(jsonString) != b.BuildVars.String {
		slog.InfoContext(ctx, "Updating build variables", "build_id", b.ID, "build_vars", string(jsonString), "worker_id", workerID)
		if err := r.SaveBuildVariables(b.ID, string(jsonString)); err != nil {
			slog.ErrorContext(ctx, "Error saving build variables", "error", err, "worker_id", workerID)
		}
	}
}
