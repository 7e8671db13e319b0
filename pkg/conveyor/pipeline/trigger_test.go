package pipeline

import "testing"

func pushSpec(branches ...string) *Spec {
	return &Spec{
		Name: "p",
		On:   Triggers{Push: &BranchFilter{Branches: branches}},
	}
}

func TestMatchesPushBranch(t *testing.T) {
	spec := pushSpec("main")
	if !spec.Matches(Event{Type: EventPush, Branch: "main"}) {
		t.Error("Expected push to main to match")
	}
	if spec.Matches(Event{Type: EventPush, Branch: "feature/x"}) {
		t.Error("Expected push to feature/x not to match")
	}
}

func TestMatchesPushGlob(t *testing.T) {
	spec := pushSpec("release-*")
	if !spec.Matches(Event{Type: EventPush, Branch: "release-1.2"}) {
		t.Error("Expected release-1.2 to match release-*")
	}
	if spec.Matches(Event{Type: EventPush, Branch: "main"}) {
		t.Error("Expected main not to match release-*")
	}
}

func TestMatchesEmptyFilterMatchesAnyBranch(t *testing.T) {
	spec := pushSpec()
	if !spec.Matches(Event{Type: EventPush, Branch: "anything"}) {
		t.Error("Expected empty filter to match any branch")
	}
	if spec.Matches(Event{Type: EventPush, Branch: ""}) {
		t.Error("Expected empty branch not to match")
	}
}

func TestMatchesPullRequestUsesBaseBranch(t *testing.T) {
	spec := &Spec{
		Name: "p",
		On:   Triggers{PullRequest: &BranchFilter{Branches: []string{"main"}}},
	}
	ev := Event{Type: EventPullRequest, Branch: "feature/x", BaseBranch: "main"}
	if !spec.Matches(ev) {
		t.Error("Expected PR targeting main to match")
	}
	ev.BaseBranch = "develop"
	if spec.Matches(ev) {
		t.Error("Expected PR targeting develop not to match")
	}
}

func TestMatchesNilTrigger(t *testing.T) {
	spec := pushSpec("main")
	if spec.Matches(Event{Type: EventPullRequest, Branch: "x", BaseBranch: "main"}) {
		t.Error("Expected PR event not to match a push-only pipeline")
	}
	if spec.Matches(Event{Type: "tag", Branch: "main"}) {
		t.Error("Expected unknown event type not to match")
	}
}
