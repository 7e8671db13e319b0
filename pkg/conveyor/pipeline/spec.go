package pipeline

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/conveyorci/conveyor/pkg/conveyor/models"
)

// Step kinds understood by the builtin registry. Additional kinds can be
// registered by embedders, see conveyor.RegisterStepKind.
const (
	StepKindRun      = "run"
	StepKindCheckout = "checkout"
)

// Spec is a pipeline definition as loaded from a YAML file.
type Spec struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	On          Triggers          `yaml:"on"`
	Env         map[string]string `yaml:"env"`
	Retry       RetrySpec         `yaml:"retry"`
	Jobs        map[string]Job    `yaml:"jobs"`
}

// Triggers declares which repository events start a build of this pipeline.
// A nil filter means the pipeline does not react to that event type at all.
type Triggers struct {
	Push        *BranchFilter `yaml:"push"`
	PullRequest *BranchFilter `yaml:"pull_request"`
}

// BranchFilter restricts an event trigger to a set of branch glob patterns.
// An empty Branches list matches every branch.
type BranchFilter struct {
	Branches []string `yaml:"branches"`
}

type Job struct {
	Needs []string          `yaml:"needs"`
	Env   map[string]string `yaml:"env"`
	Steps []Step            `yaml:"steps"`
}

type Step struct {
	Name    string            `yaml:"name"`
	Uses    string            `yaml:"uses"` // step kind, defaults to "run"
	Script  string            `yaml:"run"`
	Dir     string            `yaml:"dir"`
	Shell   string            `yaml:"shell"`
	Env     map[string]string `yaml:"env"`
	Timeout Duration          `yaml:"timeout"`

	// checkout step fields, both default to the triggering event's values
	Repo string `yaml:"repo"`
	Ref  string `yaml:"ref"`
}

// Kind resolves the step handler kind for this step.
func (s Step) Kind() string {
	if s.Uses != "" {
		return s.Uses
	}
	return StepKindRun
}

type RetrySpec struct {
	MaxCount    int      `yaml:"max_count"`
	MinInterval Duration `yaml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval"`
}

// Config converts the YAML retry block into the engine's RetryConfig,
// applying defaults for anything left unset.
func (r RetrySpec) Config() models.RetryConfig {
	cfg := models.RetryConfig{
		MaxRetryCount:    r.MaxCount,
		RetryIntervalMin: time.Duration(r.MinInterval),
		RetryIntervalMax: time.Duration(r.MaxInterval),
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 2
	}
	if cfg.RetryIntervalMin <= 0 {
		cfg.RetryIntervalMin = 30 * time.Second
	}
	if cfg.RetryIntervalMax < cfg.RetryIntervalMin {
		cfg.RetryIntervalMax = 10 * time.Minute
	}
	return cfg
}

// Duration wraps time.Duration so YAML scalars like "90s" or "5m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
