// Package steps holds the builtin step handlers wired into the default
// registry: "run" and "checkout".
package steps

import (
	"context"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/shell"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
)

// RunStep executes a shell script inside the build workspace.
type RunStep struct{}

func NewRunStep() core.StepHandler { return &RunStep{} }

func (s *RunStep) Execute(ctx context.Context, sc *core.StepContext) (*core.StepResult, error) {
	res, err := shell.Run(ctx, shell.Command{
		Script:      sc.Step.Script,
		Dir:         sc.Dir,
		Env:         sc.Env,
		Shell:       sc.Step.Shell,
		Timeout:     time.Duration(sc.Step.Timeout),
		OutputLimit: config.GetSystemSettingInteger(config.STEP_OUTPUT_LIMIT_KB) * 1024,
	})
	out := &core.StepResult{}
	if res != nil {
		out.Output = res.Output
		out.ExitCode = res.ExitCode
		out.Truncated = res.Truncated
	}
	return out, err
}
