package pipeline

import (
	"path"

	"github.com/pkg/errors"
)

// Event types accepted on the hook surface.
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
)

// Event is a repository event after the hook controller has flattened the
// incoming payload.
type Event struct {
	Type       string
	DeliveryID string
	Repo       string // clone URL
	Branch     string // push: the pushed branch, pull_request: the head branch
	BaseBranch string // pull_request: the target branch
	SHA        string
	Sender     string
}

// Matches reports whether this pipeline should build for the given event.
// Push events filter on the pushed branch, pull request events on the base
// branch the PR targets.
func (s *Spec) Matches(ev Event) bool {
	switch ev.Type {
	case EventPush:
		if s.On.Push == nil {
			return false
		}
		return matchAnyBranch(s.On.Push.Branches, ev.Branch)
	case EventPullRequest:
		if s.On.PullRequest == nil {
			return false
		}
		return matchAnyBranch(s.On.PullRequest.Branches, ev.BaseBranch)
	}
	return false
}

// matchAnyBranch returns true when the branch matches any of the glob
// patterns. An empty pattern list matches every branch.
func matchAnyBranch(patterns []string, branch string) bool {
	if len(patterns) == 0 {
		return branch != ""
	}
	for _, p := range patterns {
		ok, err := matchBranch(p, branch)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func matchBranch(pattern string, branch string) (bool, error) {
	ok, err := path.Match(pattern, branch)
	if err != nil {
		return false, errors.Wrapf(err, "branch pattern %q", pattern)
	}
	return ok, nil
}
