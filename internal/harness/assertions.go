package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the span log to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Spans    []SpanRecord
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Spans) > 0 {
		fmt.Fprintf(&buf, "\nSpan log:\n")
		for i, s := range e.Spans {
			fmt.Fprintf(&buf, "  [%d] %-10s %-24q %6d..%-6d\n", i+1, s.BlockType, s.Label, s.StartMs, s.EndMs)
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSpanCount:
			err = assertSpanCount(result, a)
		case AssertSpanOrder:
			err = assertSpanOrder(result, a)
		case AssertSpanMetric:
			err = assertSpanMetric(result, a)
		case AssertSpanDuration:
			err = assertSpanDuration(result, a)
		case AssertComplete:
			err = assertComplete(result, a)
		case AssertErrorCount:
			err = assertErrorCount(result, a)
		case AssertStackDepth:
			if result.Depth != a.Depth {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("depth %d", a.Depth), Actual: fmt.Sprintf("depth %d", result.Depth)}
			}
		case AssertMemoryCount:
			if result.MemoryRefs != a.Count {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d references", a.Count), Actual: fmt.Sprintf("%d references", result.MemoryRefs)}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func selects(a Assertion, s SpanRecord) bool {
	return (a.Label == "" || s.Label == a.Label) && (a.BlockType == "" || s.BlockType == a.BlockType)
}

func describe(a Assertion) string {
	var parts []string
	if a.Label != "" {
		parts = append(parts, fmt.Sprintf("label %q", a.Label))
	}
	if a.BlockType != "" {
		parts = append(parts, "type "+a.BlockType)
	}
	if len(parts) == 0 {
		return "any span"
	}
	return strings.Join(parts, ", ")
}

// nth returns the Nth selected span, 1-based.
func nth(result *Result, a Assertion) (SpanRecord, error) {
	want := max(a.Occurrence, 1)
	seen := 0
	for _, s := range result.Spans {
		if selects(a, s) {
			seen++
			if seen == want {
				return s, nil
			}
		}
	}
	return SpanRecord{}, &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("occurrence %d of %s", want, describe(a)),
		Actual:   fmt.Sprintf("%d matching spans", seen),
		Spans:    result.Spans,
	}
}

func assertSpanCount(result *Result, a Assertion) error {
	count := 0
	for _, s := range result.Spans {
		if selects(a, s) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d spans of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d spans", count),
			Spans:    result.Spans,
		}
	}
	return nil
}

// assertSpanOrder checks that the labels appear in order. Spans need not be
// consecutive; each label matches its first occurrence after the previous.
func assertSpanOrder(result *Result, a Assertion) error {
	next := 0
	for _, s := range result.Spans {
		if next < len(a.Labels) && s.Label == a.Labels[next] {
			next++
		}
	}
	if next < len(a.Labels) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("labels in order: %v", a.Labels),
			Actual:   fmt.Sprintf("%q not found after %v", a.Labels[next], a.Labels[:next]),
			Spans:    result.Spans,
		}
	}
	return nil
}

func assertSpanMetric(result *Result, a Assertion) error {
	s, err := nth(result, a)
	if err != nil {
		return err
	}
	m, ok := s.Metric(a.Metric)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("metric %s=%d on %s", a.Metric, *a.Value, describe(a)),
			Actual:   "metric not recorded",
			Spans:    result.Spans,
		}
	}
	if m.Value != *a.Value {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("metric %s=%d on %s", a.Metric, *a.Value, describe(a)),
			Actual:   fmt.Sprintf("%s=%d", a.Metric, m.Value),
			Spans:    result.Spans,
		}
	}
	return nil
}

func assertSpanDuration(result *Result, a Assertion) error {
	s, err := nth(result, a)
	if err != nil {
		return err
	}
	if s.DurationMs() != *a.DurationMs {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s lasting %dms", describe(a), *a.DurationMs),
			Actual:   fmt.Sprintf("%dms", s.DurationMs()),
			Spans:    result.Spans,
		}
	}
	return nil
}

func assertComplete(result *Result, a Assertion) error {
	if result.Complete != *a.Expect {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("complete=%t", *a.Expect),
			Actual:   fmt.Sprintf("complete=%t with %d blocks on the stack", result.Complete, result.Depth),
			Spans:    result.Spans,
		}
	}
	return nil
}

func assertErrorCount(result *Result, a Assertion) error {
	count := 0
	var seen []string
	for _, e := range result.RuntimeErrors {
		seen = append(seen, string(e.Code))
		if a.Code == "" || string(e.Code) == a.Code {
			count++
		}
	}
	if count != a.Count {
		want := "errors"
		if a.Code != "" {
			want = a.Code + " errors"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s", a.Count, want),
			Actual:   fmt.Sprintf("%d (%v)", count, seen),
		}
	}
	return nil
}
