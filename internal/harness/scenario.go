package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one recorded run of a workout.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workout is a path to a CUE workout, relative to the scenario file.
	// Exactly one of Workout and Source is set.
	Workout string `yaml:"workout,omitempty"`

	// Source is an inline CUE workout.
	Source string `yaml:"source,omitempty"`

	// Events are delivered to the runtime in order, one turn each.
	Events []Step `yaml:"events"`

	// Assertions validate the span log and the final runtime state.
	Assertions []Assertion `yaml:"assertions"`

	// RunID names the run in the span store. Defaults to the scenario name.
	RunID string `yaml:"run_id,omitempty"`
}

// Step is one host event. The fake clock moves AdvanceMs before the event
// is handled. Repeat delivers the same step several times (default once).
type Step struct {
	Event     string `yaml:"event"`
	AdvanceMs int64  `yaml:"advance_ms,omitempty"`
	Repeat    int    `yaml:"repeat,omitempty"`
}

// Assertion validates the result. Label and BlockType select spans for the
// span_* types; an empty selector matches every span.
type Assertion struct {
	Type string `yaml:"type"`

	Label     string `yaml:"label,omitempty"`
	BlockType string `yaml:"block_type,omitempty"`

	// Occurrence picks the Nth matching span (1-based, default 1).
	Occurrence int `yaml:"occurrence,omitempty"`

	// Count is used by span_count, error_count and memory_count.
	Count int `yaml:"count,omitempty"`

	// Labels is the expected relative order (span_order).
	Labels []string `yaml:"labels,omitempty"`

	Metric     string `yaml:"metric,omitempty"`
	Value      *int64 `yaml:"value,omitempty"`
	DurationMs *int64 `yaml:"duration_ms,omitempty"`

	// Code narrows error_count to one RuntimeErrorCode.
	Code string `yaml:"code,omitempty"`

	// Expect is the expected completion state (complete).
	Expect *bool `yaml:"expect,omitempty"`

	// Depth is the expected stack depth (stack_depth).
	Depth int `yaml:"depth,omitempty"`
}

// Assertion type constants.
const (
	AssertSpanCount    = "span_count"
	AssertSpanOrder    = "span_order"
	AssertSpanMetric   = "span_metric"
	AssertSpanDuration = "span_duration"
	AssertComplete     = "complete"
	AssertErrorCount   = "error_count"
	AssertStackDepth   = "stack_depth"
	AssertMemoryCount  = "memory_count"
)

// LoadScenario reads and parses a scenario YAML file. The workout path is
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.Workout != "" && !filepath.IsAbs(s.Workout) {
		s.Workout = filepath.Join(filepath.Dir(path), s.Workout)
	}
	if s.Workout != "" {
		if _, err := os.Stat(s.Workout); err != nil {
			return nil, fmt.Errorf("invalid scenario: workout file not found: %s", s.Workout)
		}
	}
	return s, nil
}

// ParseScenario decodes scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Workout == "" && s.Source == "":
		return fmt.Errorf("one of workout or source is required")
	case s.Workout != "" && s.Source != "":
		return fmt.Errorf("workout and source are mutually exclusive")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Events {
		if step.Event == "" {
			return fmt.Errorf("events[%d]: event is required", i)
		}
		if step.AdvanceMs < 0 {
			return fmt.Errorf("events[%d]: advance_ms must be non-negative", i)
		}
		if step.Repeat < 0 {
			return fmt.Errorf("events[%d]: repeat must be non-negative", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Occurrence < 0 {
		return fmt.Errorf("assertions[%d]: occurrence must be positive", index)
	}

	switch a.Type {
	case AssertSpanCount, AssertErrorCount, AssertMemoryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSpanOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for span_order", index)
		}
	case AssertSpanMetric:
		if a.Metric == "" || a.Value == nil {
			return fmt.Errorf("assertions[%d]: metric and value are required for span_metric", index)
		}
	case AssertSpanDuration:
		if a.DurationMs == nil {
			return fmt.Errorf("assertions[%d]: duration_ms is required for span_duration", index)
		}
	case AssertComplete:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for complete", index)
		}
	case AssertStackDepth:
		if a.Depth < 0 {
			return fmt.Errorf("assertions[%d]: depth must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
