package domain

import "time"

type PipelineDefinition struct {
	Name        string
	Description string
	Created     time.Time
	Updated     time.Time
	FlowChart   string
}
