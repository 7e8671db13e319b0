package pipeline

import (
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// JobGraph builds the directed needs graph of the pipeline. Edges point from
// a prerequisite job to the job that needs it. Cycle creation is rejected by
// the graph itself.
func (s *Spec) JobGraph() (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, name := range s.JobNames() {
		if err := g.AddVertex(name); err != nil {
			return nil, errors.Wrapf(err, "pipeline %s: add job %s", s.Name, name)
		}
	}
	for _, name := range s.JobNames() {
		for _, need := range s.Jobs[name].Needs {
			if err := g.AddEdge(need, name); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return nil, errors.Errorf("pipeline %s: job graph has a cycle through %s -> %s", s.Name, need, name)
				}
				return nil, errors.Wrapf(err, "pipeline %s: add edge %s -> %s", s.Name, need, name)
			}
		}
	}
	return g, nil
}

// Stages returns the execution plan: a list of stages, each stage a set of
// jobs whose prerequisites are all satisfied by earlier stages. Jobs in the
// same stage are independent of one another and may run concurrently.
// Job names inside a stage are sorted for deterministic scheduling.
func (s *Spec) Stages() ([][]string, error) {
	if _, err := s.JobGraph(); err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(s.Jobs))
	var depthOf func(name string) int
	depthOf = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		d := 0
		for _, need := range s.Jobs[name].Needs {
			if nd := depthOf(need) + 1; nd > d {
				d = nd
			}
		}
		depth[name] = d
		return d
	}

	max := 0
	for _, name := range s.JobNames() {
		if d := depthOf(name); d > max {
			max = d
		}
	}
	stages := make([][]string, max+1)
	for _, name := range s.JobNames() {
		d := depth[name]
		stages[d] = append(stages[d], name)
	}
	for _, stage := range stages {
		sort.Strings(stage)
	}
	return stages, nil
}
