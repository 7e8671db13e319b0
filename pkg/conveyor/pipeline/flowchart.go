package pipeline

import (
	"fmt"
	"strings"
)

// FlowChart renders the job graph as a mermaid flowchart for the pipeline
// definitions table and the web UI.
func (s *Spec) FlowChart() string {
	var sb strings.Builder

	rootClass := "fill:#5568FE,stroke:#3346FF,stroke-width:2px,color:#fff,rx:10,ry:10;"
	jobClass := "fill:#F0F4F8,stroke:#B0C4DE,stroke-width:1px,color:#333,rx:10,ry:10;"

	sb.WriteString("flowchart TD\n")

	hasEdges := false
	for _, name := range s.JobNames() {
		for _, need := range s.Jobs[name].Needs {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", need, name))
			hasEdges = true
		}
	}
	if !hasEdges {
		for _, name := range s.JobNames() {
			sb.WriteString(fmt.Sprintf("    %s\n", name))
		}
	}

	sb.WriteString(fmt.Sprintf("    classDef rootClass %s\n", rootClass))
	sb.WriteString(fmt.Sprintf("    classDef jobClass %s\n", jobClass))

	for _, name := range s.JobNames() {
		if len(s.Jobs[name].Needs) == 0 {
			sb.WriteString(fmt.Sprintf("    class %s rootClass;\n", name))
		} else {
			sb.WriteString(fmt.Sprintf("    class %s jobClass;\n", name))
		}
	}

	return sb.String()
}
