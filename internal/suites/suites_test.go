package suites

import (
	"strings"
	"testing"

	"github.com/martinscooper/lighteval/internal/task"
)

func mcExample() task.Example {
	return task.Example{
		"query":   "What is the boiling point of water at sea level?",
		"choices": []string{"90C", "100C", "110C"},
		"gold":    1,
		"fewshot": []string{"Q1\nA. x\nB. y\nAnswer: A", "Q2\nA. x\nB. y\nAnswer: B"},
	}
}

func TestBuiltin(t *testing.T) {
	reg := Builtin()
	for _, pair := range [][2]string{
		{"leaderboard", "truthfulqa:mc"},
		{"leaderboard", "arc:challenge"},
		{"helm", "boolq"},
		{"demo", "qa"},
	} {
		if _, ok := reg.Lookup(pair[0], pair[1]); !ok {
			t.Fatalf("Lookup(%s, %s): not registered", pair[0], pair[1])
		}
	}
}

func TestMultipleChoice_RenderContext(t *testing.T) {
	ctx, err := MultipleChoice{}.RenderContext(mcExample(), 1)
	if err != nil {
		t.Fatalf("RenderContext: %v", err)
	}
	if !strings.Contains(ctx, "Q1") {
		t.Fatalf("first demonstration missing:\n%s", ctx)
	}
	if strings.Contains(ctx, "Q2") {
		t.Fatalf("second demonstration should be cut at 1-shot:\n%s", ctx)
	}
	if !strings.Contains(ctx, "B. 100C") {
		t.Fatalf("lettered choices missing:\n%s", ctx)
	}
	if !strings.HasSuffix(ctx, "Answer:") {
		t.Fatalf("prompt should end with the answer cue:\n%s", ctx)
	}
}

func TestMultipleChoice_RenderContext_ZeroShot(t *testing.T) {
	ctx, err := MultipleChoice{}.RenderContext(mcExample(), 0)
	if err != nil {
		t.Fatalf("RenderContext: %v", err)
	}
	if strings.Contains(ctx, "Q1") {
		t.Fatalf("0-shot must not include demonstrations:\n%s", ctx)
	}
}

func TestMultipleChoice_RenderContext_MissingQuery(t *testing.T) {
	if _, err := (MultipleChoice{}).RenderContext(task.Example{}, 0); err == nil {
		t.Fatalf("RenderContext: expected error")
	}
}

func TestMultipleChoice_Choices(t *testing.T) {
	got := MultipleChoice{}.Choices(mcExample())
	if len(got) != 1 || got[0] != "B" {
		t.Fatalf("Choices: got %v, want [B]", got)
	}

	// Gold decoded from JSON arrives as float64.
	ex := mcExample()
	ex["gold"] = float64(2)
	got = MultipleChoice{}.Choices(ex)
	if len(got) != 1 || got[0] != "C" {
		t.Fatalf("Choices: got %v, want [C]", got)
	}

	ex["gold"] = 7 // out of range
	if got := (MultipleChoice{}).Choices(ex); got != nil {
		t.Fatalf("Choices: got %v, want nil", got)
	}
}

func TestMultipleChoice_Metric(t *testing.T) {
	outcomes := []task.Outcome{
		{RawOutput: "B", Choices: []string{"B"}},
		{RawOutput: " b) because...", Choices: []string{"B"}},
		{RawOutput: "A", Choices: []string{"B"}},
		{RawOutput: "", Choices: []string{"B"}},
	}
	m := MultipleChoice{}.Metric(outcomes)
	if m["acc"] != 0.5 {
		t.Fatalf("acc: got %v, want 0.5", m["acc"])
	}
}

func TestFreeGeneration(t *testing.T) {
	ex := task.Example{"query": "Capital of France?", "gold": "Paris"}

	ctx, err := FreeGeneration{}.RenderContext(ex, 0)
	if err != nil {
		t.Fatalf("RenderContext: %v", err)
	}
	if ctx != "Capital of France?" {
		t.Fatalf("context: got %q", ctx)
	}

	choices := FreeGeneration{}.Choices(ex)
	if len(choices) != 1 || choices[0] != "Paris" {
		t.Fatalf("Choices: got %v", choices)
	}

	m := FreeGeneration{}.Metric([]task.Outcome{
		{RawOutput: " Paris \n", Choices: []string{"Paris"}},
		{RawOutput: "London", Choices: []string{"Paris"}},
	})
	if m["exact_match"] != 0.5 {
		t.Fatalf("exact_match: got %v, want 0.5", m["exact_match"])
	}
}
