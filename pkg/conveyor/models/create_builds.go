package models

import (
	"time"
)

// CreateBuildRequest is the payload for creating a build directly via the API.
type CreateBuildRequest struct {
	ExternalID   string            `json:"externalId"`
	RunnerGroup  string            `json:"runnerGroup"`
	PipelineName string            `json:"pipelineName"`
	BusinessKey  string            `json:"businessKey"`
	BuildVars    map[string]string `json:"buildVars"`
	// Optional scheduling input
	NextActivation *time.Time `json:"nextActivation,omitempty"`
}

// CreateBuildResponse is returned on successful creation.
type CreateBuildResponse struct {
	ID int64 `json:"id"`
}

// BuildApiResponse represents the API response for a build.
type BuildApiResponse struct {
	ID             int64             `json:"id"`
	Status         string            `json:"status"`
	ExecutionCount int               `json:"executionCount"`
	RetryCount     int               `json:"retryCount"`
	Created        time.Time         `json:"created"`
	Modified       time.Time         `json:"modified"`
	NextActivation time.Time         `json:"nextActivation,omitempty"`
	Started        time.Time         `json:"started,omitempty"`
	RunnerID       string            `json:"runnerId,omitempty"`
	RunnerGroup    string            `json:"runnerGroup"`
	PipelineName   string            `json:"pipelineName"`
	ExternalID     string            `json:"externalId"`
	BusinessKey    string            `json:"businessKey"`
	Stage          string            `json:"stage"`
	BuildVars      map[string]string `json:"buildVars,omitempty"`
}
