package models

// Build status values as stored in the builds table.
const (
	StatusNew        = "NEW"
	StatusInProgress = "IN_PROGRESS"
	StatusScheduled  = "SCHEDULED"
	StatusExecuting  = "EXECUTING"
	StatusFinished   = "FINISHED"
	StatusFailed     = "FAILED"
)

// Well known keys inside a build's vars map. The hook controller fills these
// from the incoming event and the checkout step reads them back.
const (
	VarEvent      = "event"
	VarRepo       = "repo"
	VarBranch     = "branch"
	VarBaseBranch = "base_branch"
	VarSHA        = "sha"
	VarSender     = "sender"
)
