package models

import "github.com/conveyorci/conveyor/pkg/conveyor/domain"

type SearchBuildRequest struct {
	ID           int64  `json:"id"`
	ExternalID   string `json:"externalId"`
	RunnerGroup  string `json:"runnerGroup"`
	PipelineName string `json:"pipelineName"`
	BusinessKey  string `json:"businessKey"`
	Stage        string `json:"stage"`
	Status       string `json:"status"`
	Limit        int64  `json:"limit"`
	Offset       int64  `json:"offset"`
}
type SearchBuildResponse struct {
	Results int64          `json:"results"`
	Builds  []domain.Build `json:"builds"`
	Offset  int64          `json:"offset"`
}
