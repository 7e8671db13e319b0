package steps

import (
	"context"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/scm"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/models"
)

// CheckoutStep clones the triggering repository, or an explicit repo/ref
// named on the step, into the workspace.
type CheckoutStep struct{}

func NewCheckoutStep() core.StepHandler { return &CheckoutStep{} }

func (s *CheckoutStep) Execute(ctx context.Context, sc *core.StepContext) (*core.StepResult, error) {
	repo := sc.Step.Repo
	if repo == "" {
		repo = sc.Vars[models.VarRepo]
	}
	ref := sc.Step.Ref
	if ref == "" {
		// prefer the exact commit of the event over the branch head
		if sha := sc.Vars[models.VarSHA]; sha != "" {
			ref = sha
		} else {
			ref = sc.Vars[models.VarBranch]
		}
	}
	output, err := scm.Materialize(ctx, scm.Checkout{
		RepoURL: repo,
		Ref:     ref,
		Dir:     sc.Dir,
		Depth:   config.GetSystemSettingInteger(config.CLONE_DEPTH),
		Env:     sc.Env,
		Timeout: time.Duration(sc.Step.Timeout),
	})
	res := &core.StepResult{Output: output}
	if err != nil {
		res.ExitCode = 1
		return res, err
	}
	return res, nil
}
