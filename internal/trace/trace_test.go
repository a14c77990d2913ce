package trace_test

import (
	"strings"
	"testing"

	"github.com/voxtrace/voxtrace/internal/trace"
)

func TestParsePlainJSON(t *testing.T) {
	raw := `{"steps": [
		{"line": 1, "narration": "x is set to one", "state": {"x": 1}},
		{"line": 2, "narration": "x is printed"}
	]}`

	tr, err := trace.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(tr.Steps))
	}
	if tr.Steps[0].Line != 1 || tr.Steps[0].Narration != "x is set to one" {
		t.Errorf("step 0 = %+v", tr.Steps[0])
	}
	if string(tr.Steps[0].State) != `{"x": 1}` {
		t.Errorf("step 0 state = %s, want raw passthrough", tr.Steps[0].State)
	}
	if tr.Steps[1].Line != 2 {
		t.Errorf("step 1 line = %d, want 2", tr.Steps[1].Line)
	}
	if tr.Steps[1].State != nil {
		t.Errorf("step 1 state = %s, want nil", tr.Steps[1].State)
	}
}

func TestParseStripsMarkdownFences(t *testing.T) {
	for _, raw := range []string{
		"```json\n{\"steps\": [{\"line\": 1, \"narration\": \"go\"}]}\n```",
		"```\n{\"steps\": [{\"line\": 1, \"narration\": \"go\"}]}\n```",
		"\n  {\"steps\": [{\"line\": 1, \"narration\": \"go\"}]}  \n",
	} {
		tr, err := trace.Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q): %v", raw, err)
			continue
		}
		if len(tr.Steps) != 1 || tr.Steps[0].Narration != "go" {
			t.Errorf("Parse(%q) steps = %+v", raw, tr.Steps)
		}
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "empty response"},
		{"fences only", "```json\n```", "empty response"},
		{"not json", "Sure! Here is the trace you asked for.", "decode"},
		{"no steps", `{"steps": []}`, "no steps"},
		{"zero line", `{"steps": [{"line": 0, "narration": "go"}]}`, "invalid line"},
		{"blank narration", `{"steps": [{"line": 3, "narration": "  "}]}`, "empty narration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trace.Parse(tt.raw)
			if err == nil {
				t.Fatal("Parse succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}
