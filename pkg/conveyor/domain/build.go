package domain

import "time"
import "database/sql"

type Build struct {
	ID             int64
	Status         string
	ExecutionCount int
	RetryCount     int
	Created        time.Time
	Modified       time.Time
	NextActivation sql.NullTime
	Started        sql.NullTime
	RunnerID       sql.NullString
	RunnerGroup    string
	PipelineName   string
	ExternalID     string
	BusinessKey    string
	Stage          string
	BuildVars      sql.NullString
}
