package aggregate

import (
	"errors"
	"fmt"

	"github.com/martinscooper/lighteval/internal/task"
)

var (
	// ErrDuplicateResult reports two workers claiming the same
	// (task, request_index) slot: a sharding bug.
	ErrDuplicateResult = errors.New("aggregate: duplicate result")

	// ErrMissingResult reports an expected request index with no partial
	// result: a dropped batch.
	ErrMissingResult = errors.New("aggregate: missing result")
)

// Partial is the write-once unit a worker hands to aggregation, 1:1 with an
// evaluation request by (TaskID, Index).
type Partial struct {
	TaskID    string   `json:"task_id"`
	Index     int      `json:"index"`
	RawOutput string   `json:"raw_output"`
	Choices   []string `json:"choices,omitempty"`
}

// TaskReport is the per-task slice of the final report.
type TaskReport struct {
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Examples int                `json:"examples"`
	Error    string             `json:"error,omitempty"`
}

// Report is the canonical aggregated output, identical regardless of how
// many workers produced the partials.
type Report struct {
	Results    map[string]TaskReport `json:"results"`
	Partial    bool                  `json:"partial"`
	MaxSamples int                   `json:"max_samples,omitempty"`
}

// Input bundles everything a reduction needs. Expected maps task ID to the
// request count the plan assigned; Incomplete marks a run where a worker
// aborted, which flags the report partial even when all received partials
// reconcile.
type Input struct {
	Descriptors []task.Descriptor
	Expected    map[string]int
	Partials    []Partial
	Incomplete  bool
	MaxSamples  int

	// TaskErrors carries per-task fatal errors raised before execution
	// (context overflow); those tasks report the error instead of metrics.
	TaskErrors map[string]string
}

// Aggregate merges partials into one report. It is a pure reduction:
// order-independent over the input multiset and idempotent, so re-running it
// on the same partials yields byte-identical serialized output. Duplicate or
// missing results fail only the task they belong to.
func Aggregate(in Input, reg task.Resolver) (*Report, error) {
	if reg == nil {
		return nil, errors.New("aggregate: nil registry")
	}

	byTask := make(map[string]map[int]Partial, len(in.Expected))
	taskErrs := make(map[string]error)

	for _, p := range in.Partials {
		slots, ok := byTask[p.TaskID]
		if !ok {
			slots = make(map[int]Partial)
			byTask[p.TaskID] = slots
		}
		if _, dup := slots[p.Index]; dup {
			if taskErrs[p.TaskID] == nil {
				taskErrs[p.TaskID] = fmt.Errorf("%w: %s request %d", ErrDuplicateResult, p.TaskID, p.Index)
			}
			continue
		}
		slots[p.Index] = p
	}

	rep := &Report{
		Results:    make(map[string]TaskReport, len(in.Descriptors)),
		Partial:    in.Incomplete,
		MaxSamples: in.MaxSamples,
	}

	for _, d := range in.Descriptors {
		id := d.ID()
		expected := in.Expected[id]
		slots := byTask[id]

		if msg, bad := in.TaskErrors[id]; bad {
			rep.Results[id] = TaskReport{Error: msg}
			rep.Partial = true
			continue
		}
		if err := taskErrs[id]; err != nil {
			rep.Results[id] = TaskReport{Examples: len(slots), Error: err.Error()}
			rep.Partial = true
			continue
		}
		if missing := firstMissing(slots, expected); missing >= 0 {
			rep.Results[id] = TaskReport{
				Examples: len(slots),
				Error:    fmt.Errorf("%w: %s request %d", ErrMissingResult, id, missing).Error(),
			}
			rep.Partial = true
			continue
		}

		impl, ok := reg.Lookup(d.Suite, d.Task)
		if !ok {
			rep.Results[id] = TaskReport{Error: fmt.Errorf("%w: %s", task.ErrUnknownTask, id).Error()}
			rep.Partial = true
			continue
		}

		outcomes := make([]task.Outcome, 0, expected)
		for i := 0; i < expected; i++ {
			p := slots[i]
			outcomes = append(outcomes, task.Outcome{RawOutput: p.RawOutput, Choices: p.Choices})
		}
		rep.Results[id] = TaskReport{
			Metrics:  impl.Metric(outcomes),
			Examples: expected,
		}
	}

	return rep, nil
}

// firstMissing returns the lowest absent index in [0, expected), or -1 when
// the slot map is complete.
func firstMissing(slots map[int]Partial, expected int) int {
	for i := 0; i < expected; i++ {
		if _, ok := slots[i]; !ok {
			return i
		}
	}
	return -1
}
