// Package scm materializes git checkouts inside build workspaces.
package scm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/conveyorci/conveyor/internal/shell"
)

type Checkout struct {
	RepoURL string
	Ref     string // branch name or commit SHA, empty means the remote default
	Dir     string // absolute target directory
	Depth   int
	Env     []string
	Timeout time.Duration
}

// CommandLines returns the git command lines that materialize the checkout.
// Init plus an explicit fetch of the ref works for branches and for commit
// SHAs and keeps shallow clones honest.
func (c Checkout) CommandLines() []string {
	ref := c.Ref
	if ref == "" {
		ref = "HEAD"
	}
	depth := c.Depth
	if depth <= 0 {
		depth = 1
	}
	return []string{
		"git init -q .",
		fmt.Sprintf("git remote add origin %s", c.RepoURL),
		fmt.Sprintf("git fetch -q --depth %d origin %s", depth, ref),
		"git checkout -q --force FETCH_HEAD",
	}
}

// Materialize creates the target directory and runs the checkout command
// lines inside it. Output of all commands is concatenated for the action
// log.
func Materialize(ctx context.Context, c Checkout) (string, error) {
	if c.RepoURL == "" {
		return "", errors.New("checkout: no repository url")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create checkout dir %s", c.Dir)
	}

	var output string
	for _, line := range c.CommandLines() {
		res, err := shell.Run(ctx, shell.Command{
			Script:  line,
			Dir:     c.Dir,
			Env:     c.Env,
			Timeout: c.Timeout,
		})
		if res != nil && res.Output != "" {
			output += res.Output
		}
		if err != nil {
			return output, errors.Wrapf(err, "checkout %s@%s: %s", filepath.Base(c.RepoURL), c.Ref, line)
		}
	}
	return output, nil
}
