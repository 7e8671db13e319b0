package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Parse decodes a single pipeline definition and validates it.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.Wrap(err, "decode pipeline yaml")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadDir loads every *.yml / *.yaml file in dir. Any invalid pipeline file
// is a hard error so a broken definition is caught at startup, not at build
// time.
func LoadDir(dir string) (map[string]*Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read pipelines dir %s", dir)
	}
	specs := make(map[string]*Spec)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read pipeline file %s", e.Name())
		}
		spec, err := Parse(data)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline file %s", e.Name())
		}
		if _, exists := specs[spec.Name]; exists {
			return nil, errors.Errorf("pipeline file %s: duplicate pipeline name %q", e.Name(), spec.Name)
		}
		specs[spec.Name] = spec
	}
	return specs, nil
}

// Validate checks the structural rules of the definition: a name, at least
// one job, known needs targets, an acyclic job graph and non empty steps.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return errors.New("pipeline name must not be empty")
	}
	if len(s.Jobs) == 0 {
		return errors.Errorf("pipeline %s: at least one job is required", s.Name)
	}
	for name, job := range s.Jobs {
		if len(job.Steps) == 0 {
			return errors.Errorf("pipeline %s: job %s has no steps", s.Name, name)
		}
		for i, step := range job.Steps {
			switch step.Kind() {
			case StepKindRun:
				if step.Script == "" {
					return errors.Errorf("pipeline %s: job %s step %d: run step has an empty script", s.Name, name, i+1)
				}
			case StepKindCheckout:
				// repo/ref fall back to the triggering event, nothing mandatory
			}
		}
		for _, need := range job.Needs {
			if _, ok := s.Jobs[need]; !ok {
				return errors.Errorf("pipeline %s: job %s needs unknown job %s", s.Name, name, need)
			}
			if need == name {
				return errors.Errorf("pipeline %s: job %s needs itself", s.Name, name)
			}
		}
	}
	if err := s.validateBranchFilters(); err != nil {
		return err
	}
	// cycle check via the job graph
	if _, err := s.JobGraph(); err != nil {
		return err
	}
	return nil
}

func (s *Spec) validateBranchFilters() error {
	check := func(f *BranchFilter) error {
		if f == nil {
			return nil
		}
		for _, p := range f.Branches {
			if _, err := matchBranch(p, "probe"); err != nil {
				return errors.Errorf("pipeline %s: invalid branch pattern %q", s.Name, p)
			}
		}
		return nil
	}
	if err := check(s.On.Push); err != nil {
		return err
	}
	return check(s.On.PullRequest)
}

// JobNames returns the job names in a stable order.
func (s *Spec) JobNames() []string {
	names := make([]string, 0, len(s.Jobs))
	for name := range s.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
