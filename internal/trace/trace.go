// Package trace models a line-by-line execution walkthrough of a program
// and plays it back through a narrator, one spoken step at a time.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Step is one moment of the walkthrough: the line being executed, what to
// say about it, and an opaque snapshot of the variables in scope at that
// point. State is passed through untouched for display layers to interpret.
type Step struct {
	Line      int             `json:"line"`
	Narration string          `json:"narration"`
	State     json.RawMessage `json:"state,omitempty"`
}

// Trace is an ordered walkthrough of a piece of code.
type Trace struct {
	Language string `json:"-"`
	Source   string `json:"-"`
	Steps    []Step `json:"steps"`
}

// Parse decodes a generated trace. Models routinely wrap JSON in markdown
// fences despite being told not to, so fences are stripped before decoding.
func Parse(raw string) (*Trace, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, errors.New("trace: empty response")
	}

	var tr Trace
	if err := json.Unmarshal([]byte(cleaned), &tr); err != nil {
		return nil, fmt.Errorf("trace: decode: %w", err)
	}
	if len(tr.Steps) == 0 {
		return nil, errors.New("trace: no steps")
	}
	for i, step := range tr.Steps {
		if step.Line < 1 {
			return nil, fmt.Errorf("trace: step %d has invalid line %d", i, step.Line)
		}
		if strings.TrimSpace(step.Narration) == "" {
			return nil, fmt.Errorf("trace: step %d has empty narration", i)
		}
	}
	return &tr, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
