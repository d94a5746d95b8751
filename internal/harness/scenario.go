package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/horizon/internal/ir"
	"github.com/roach88/horizon/internal/simtime"
)

// Scenario is a scripted plan session: resources, initial values and a
// sequence of edits and queries with optional expectations.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Model is a path to a CUE resource model, relative to the scenario
	// file. Exclusive with Resources.
	Model string `yaml:"model,omitempty"`

	// Resources declares resources inline. Exclusive with Model.
	Resources map[string]ResourceDecl `yaml:"resources,omitempty"`

	// Start is the plan start. Default: 0.
	Start Time `yaml:"start,omitempty"`

	// Initial overrides resource defaults.
	Initial map[string]float64 `yaml:"initial,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// dir is the directory of the scenario file, for resolving Model.
	dir string
}

// ResourceDecl is an inline resource declaration.
type ResourceDecl struct {
	Kind    string  `yaml:"kind"`
	Default float64 `yaml:"default,omitempty"`
}

// Step is one scenario step. Exactly one field is set.
type Step struct {
	Insert *InsertStep `yaml:"insert,omitempty"`
	Remove string      `yaml:"remove,omitempty"`
	Sample *SampleStep `yaml:"sample,omitempty"`
	View   *ViewStep   `yaml:"view,omitempty"`
}

// InsertStep inserts an activity from the built-in library.
type InsertStep struct {
	// ID names the activity for later remove steps. Optional.
	ID       string         `yaml:"id,omitempty"`
	Activity string         `yaml:"activity"`
	At       Time           `yaml:"at"`
	Args     map[string]any `yaml:"args"`
	// ExpectError is the code the insert must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// SampleStep samples a resource.
type SampleStep struct {
	Resource    string   `yaml:"resource"`
	At          Time     `yaml:"at"`
	Expect      *float64 `yaml:"expect,omitempty"`
	ExpectError string   `yaml:"expect_error,omitempty"`
}

// ViewStep views a resource over (from, to].
type ViewStep struct {
	Resource    string      `yaml:"resource"`
	From        Time        `yaml:"from"`
	To          Time        `yaml:"to"`
	Expect      []ViewPoint `yaml:"expect,omitempty"`
	ExpectError string      `yaml:"expect_error,omitempty"`
}

// ViewPoint is an expected view point.
type ViewPoint struct {
	At    Time    `yaml:"at"`
	Value float64 `yaml:"value"`
}

// Time is a scenario time: a duration string ("1.5s") or whole seconds.
type Time simtime.Time

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Time) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d, err := ir.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = Time(d)
	return nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	sc.dir = filepath.Dir(path)
	if sc.Model != "" && !filepath.IsAbs(sc.Model) {
		sc.Model = filepath.Join(sc.dir, sc.Model)
	}
	if sc.Model != "" {
		if _, err := os.Stat(sc.Model); os.IsNotExist(err) {
			return nil, &ModelNotFoundError{Scenario: sc.Name, Path: sc.Model}
		}
	}
	return sc, nil
}

// ParseScenario parses scenario YAML. A relative model path is left as is.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "step:" vs "steps:".
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Model == "") == (len(s.Resources) == 0) {
		return fmt.Errorf("exactly one of model and resources is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	ids := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, ids); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step *Step, ids map[string]bool) error {
	set := 0
	if step.Insert != nil {
		set++
	}
	if step.Remove != "" {
		set++
	}
	if step.Sample != nil {
		set++
	}
	if step.View != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of insert, remove, sample and view is required", i)
	}

	switch {
	case step.Insert != nil:
		if step.Insert.Activity == "" {
			return fmt.Errorf("steps[%d].insert: activity is required", i)
		}
		if id := step.Insert.ID; id != "" {
			if ids[id] {
				return fmt.Errorf("steps[%d].insert: duplicate id %q", i, id)
			}
			ids[id] = true
		}
	case step.Remove != "":
		if !ids[step.Remove] {
			return fmt.Errorf("steps[%d].remove: unknown id %q", i, step.Remove)
		}
	case step.Sample != nil:
		if step.Sample.Resource == "" {
			return fmt.Errorf("steps[%d].sample: resource is required", i)
		}
		if step.Sample.Expect != nil && step.Sample.ExpectError != "" {
			return fmt.Errorf("steps[%d].sample: expect and expect_error are exclusive", i)
		}
	case step.View != nil:
		if step.View.Resource == "" {
			return fmt.Errorf("steps[%d].view: resource is required", i)
		}
		if step.View.To < step.View.From {
			return fmt.Errorf("steps[%d].view: to is before from", i)
		}
	}
	return nil
}
