// Package suites holds the builtin task implementations. They are ordinary
// registry entries; external suites plug in through the same interfaces.
package suites

import (
	"fmt"
	"strings"

	"github.com/martinscooper/lighteval/internal/task"
)

// Builtin returns a registry with the bundled benchmark tasks.
func Builtin() *task.Registry {
	reg := task.NewRegistry()

	mc := []struct{ suite, name string }{
		{"leaderboard", "truthfulqa:mc"},
		{"leaderboard", "arc:challenge"},
		{"helm", "boolq"},
	}
	for _, t := range mc {
		_ = reg.Register(t.suite, t.name, MultipleChoice{})
	}
	_ = reg.Register("demo", "qa", FreeGeneration{})

	return reg
}

// MultipleChoice renders a question with lettered choices and scores exact
// choice selection. Expected example fields: "query", "choices", "gold"
// (index into choices), and optionally "fewshot" (pre-rendered
// demonstrations, most relevant first).
type MultipleChoice struct{}

func (MultipleChoice) RenderContext(ex task.Example, numFewShot int) (string, error) {
	query, ok := ex["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("suites: example missing query")
	}

	var sb strings.Builder
	for i, demo := range demos(ex) {
		if i >= numFewShot {
			break
		}
		sb.WriteString(demo)
		sb.WriteString("\n\n")
	}

	sb.WriteString(query)
	sb.WriteString("\n")
	for i, c := range stringSlice(ex["choices"]) {
		fmt.Fprintf(&sb, "%c. %s\n", 'A'+i, c)
	}
	sb.WriteString("Answer:")
	return sb.String(), nil
}

// Choices returns the expected continuation set: the letter of the gold
// choice.
func (MultipleChoice) Choices(ex task.Example) []string {
	idx := goldIndex(ex)
	if idx < 0 || idx >= len(stringSlice(ex["choices"])) {
		return nil
	}
	return []string{fmt.Sprintf("%c", 'A'+idx)}
}

// Metric computes accuracy: the output's first letter must name the gold
// choice.
func (MultipleChoice) Metric(outcomes []task.Outcome) map[string]float64 {
	if len(outcomes) == 0 {
		return map[string]float64{"acc": 0}
	}
	correct := 0
	for _, o := range outcomes {
		if len(o.Choices) == 0 {
			continue
		}
		if firstLetter(o.RawOutput) == o.Choices[0] {
			correct++
		}
	}
	return map[string]float64{"acc": float64(correct) / float64(len(outcomes))}
}

// FreeGeneration renders the query verbatim and scores exact string match
// against choice 0 (the reference answer).
type FreeGeneration struct{}

func (FreeGeneration) RenderContext(ex task.Example, numFewShot int) (string, error) {
	query, ok := ex["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("suites: example missing query")
	}

	var sb strings.Builder
	for i, demo := range demos(ex) {
		if i >= numFewShot {
			break
		}
		sb.WriteString(demo)
		sb.WriteString("\n\n")
	}
	sb.WriteString(query)
	return sb.String(), nil
}

func (FreeGeneration) Choices(ex task.Example) []string {
	if gold, ok := ex["gold"].(string); ok {
		return []string{gold}
	}
	return nil
}

func (FreeGeneration) Metric(outcomes []task.Outcome) map[string]float64 {
	if len(outcomes) == 0 {
		return map[string]float64{"exact_match": 0}
	}
	correct := 0
	for _, o := range outcomes {
		if len(o.Choices) > 0 && strings.TrimSpace(o.RawOutput) == strings.TrimSpace(o.Choices[0]) {
			correct++
		}
	}
	return map[string]float64{"exact_match": float64(correct) / float64(len(outcomes))}
}

func demos(ex task.Example) []string {
	return stringSlice(ex["fewshot"])
}

func goldIndex(ex task.Example) int {
	switch v := ex["gold"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return -1
	}
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func firstLetter(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1])
}
