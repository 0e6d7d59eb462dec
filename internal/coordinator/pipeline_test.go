package coordinator

import (
	"context"
	"fmt"
	"testing"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/batch"
	"github.com/martinscooper/lighteval/internal/suites"
	"github.com/martinscooper/lighteval/internal/task"
	"github.com/martinscooper/lighteval/internal/topology"
)

// oracleProvider answers every multiple-choice request with its gold letter.
type oracleProvider struct{}

func (oracleProvider) Name() string { return "oracle" }

func (oracleProvider) Run(ctx context.Context, b batch.Batch) ([]string, error) {
	out := make([]string, 0, len(b.Requests))
	for _, r := range b.Requests {
		if len(r.Choices) == 0 {
			return nil, fmt.Errorf("request %d has no expected continuations", r.Index)
		}
		out = append(out, r.Choices[0])
	}
	return out, nil
}

type memDataset struct {
	examples []task.Example
}

func (m memDataset) Examples(d task.Descriptor) ([]task.Example, error) {
	return m.examples, nil
}

func truthfulQAExamples(n int) []task.Example {
	out := make([]task.Example, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, task.Example{
			"query":   fmt.Sprintf("Question %d?", i),
			"choices": []string{"wrong", "right", "also wrong"},
			"gold":    1,
		})
	}
	return out
}

// runPipeline drives parse, expand, plan, execute and aggregate over an
// in-memory dataset with the given topology.
func runPipeline(t *testing.T, descSpec string, topo topology.Topology, n int) *aggregate.Report {
	t.Helper()

	registry := suites.Builtin()
	descs, err := task.Parse([]string{descSpec}, registry)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	requests, err := task.ExpandAll(descs, registry, memDataset{truthfulQAExamples(n)}, 0)
	if err != nil {
		t.Fatalf("ExpandAll: %v", err)
	}

	plan, err := batch.Build(requests, topo, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	partials, errs := RunAll(context.Background(), plan, oracleProvider{})
	if len(errs) != 0 {
		t.Fatalf("RunAll: %v", errs)
	}

	rep, err := aggregate.Aggregate(aggregate.Input{
		Descriptors: descs,
		Expected:    plan.ExpectedCounts(),
		Partials:    partials,
	}, registry)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	return rep
}

func TestPipeline_SingleProcess(t *testing.T) {
	env := topology.ExecContext{WorldSize: 1}
	topo, err := topology.Resolve(topology.Degrees{Data: 1}, env)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rep := runPipeline(t, "leaderboard|truthfulqa:mc|0|0", topo, 10)
	tr := rep.Results["leaderboard|truthfulqa:mc|0"]
	if tr.Metrics["acc"] != 1.0 || tr.Examples != 10 {
		t.Fatalf("report: got %+v", tr)
	}
	if rep.Partial {
		t.Fatalf("report should not be partial")
	}
}

func TestPipeline_DataParallelMatchesSingleProcess(t *testing.T) {
	single, err := topology.Resolve(topology.Degrees{Data: 1}, topology.ExecContext{WorldSize: 1})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wide, err := topology.Resolve(topology.Degrees{AllowModelParallel: true}, topology.ExecContext{WorldSize: 8, DevicesPerProcess: 1})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if wide.DataParallel != 8 {
		t.Fatalf("topology: got %+v", wide)
	}

	a := runPipeline(t, "leaderboard|truthfulqa:mc|0|0", single, 13)
	b := runPipeline(t, "leaderboard|truthfulqa:mc|0|0", wide, 13)

	ta := a.Results["leaderboard|truthfulqa:mc|0"]
	tb := b.Results["leaderboard|truthfulqa:mc|0"]
	if ta.Metrics["acc"] != tb.Metrics["acc"] || ta.Examples != tb.Examples {
		t.Fatalf("parallelism changed the result: %+v vs %+v", ta, tb)
	}
}
