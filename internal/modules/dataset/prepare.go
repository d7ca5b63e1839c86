package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnStep applies a transform with a period to one column.
type ColumnStep struct {
	Column  string
	Periods int
}

// ParseColumnSteps parses "column:periods" items from a comma-separated list.
func ParseColumnSteps(items []string) ([]ColumnStep, error) {
	steps := make([]ColumnStep, 0, len(items))
	for _, item := range items {
		column, periods, ok := strings.Cut(item, ":")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid step %q, want column:periods", item)
		}
		n, err := strconv.Atoi(strings.TrimSpace(periods))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid periods in step %q", item)
		}
		steps = append(steps, ColumnStep{Column: column, Periods: n})
	}
	return steps, nil
}

// Preparation turns a raw macro dataset into model inputs. Steps run in field
// order: growth rates, forward fill, smoothing, then rows missing any Required
// column are dropped.
type Preparation struct {
	PctChange   []ColumnStep
	ForwardFill bool
	Smooth      []ColumnStep
	Required    []string
}

// Apply runs the preparation on f and returns a new frame.
func (p Preparation) Apply(f *Frame) (*Frame, error) {
	out := f
	for _, step := range p.PctChange {
		next, err := out.PctChangeColumn(step.Column, step.Periods)
		if err != nil {
			return nil, err
		}
		out = next
	}
	if p.ForwardFill {
		out = out.ForwardFill()
	}
	for _, step := range p.Smooth {
		next, err := out.RollingMean(step.Column, step.Periods)
		if err != nil {
			return nil, err
		}
		out = next
	}
	if len(p.Required) > 0 {
		if _, err := out.Select(p.Required...); err != nil {
			return nil, err
		}
		out = out.DropIncomplete(p.Required...)
	}
	return out, nil
}
