package core

import (
	"context"

	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"
)

// StepHandler executes one kind of pipeline step. Builtin kinds are "run"
// and "checkout"; embedders can register their own, see
// conveyor.RegisterStepKind.
type StepHandler interface {
	Execute(ctx context.Context, sc *StepContext) (*StepResult, error)
}

// StepContext is everything a step handler gets to work with.
type StepContext struct {
	Build     *domain.Build
	Job       string
	Step      pipeline.Step
	Workspace string            // absolute path of the per build workspace
	Dir       string            // resolved working directory for this step
	Env       []string          // merged environment in KEY=VALUE form
	Vars      map[string]string // build vars, handlers may add to them
}

// StepResult carries the captured output of a finished step. Output is
// returned even when the step failed so the failure is visible in the
// action log.
type StepResult struct {
	Output    string
	ExitCode  int
	Truncated bool
}
