package task

import (
	"errors"
	"fmt"
)

// Request is one concrete (context, choices) evaluation unit expanded from a
// descriptor against its dataset. Index is the stable ordinal within the
// task used for deterministic re-merging after sharded execution.
type Request struct {
	Desc    Descriptor
	Index   int
	Context string
	Choices []string

	// FewShot is the demonstration count the context was rendered with. It
	// starts at Desc.FewShot and may be lowered by auto-reduce.
	FewShot int

	// Example is retained so the context can be re-rendered at a lower
	// few-shot count.
	Example Example
}

// Expand renders every example of a descriptor into requests. maxSamples > 0
// caps the number of examples taken from the split.
func Expand(d Descriptor, reg Resolver, data DatasetProvider, maxSamples int) ([]Request, error) {
	if reg == nil {
		return nil, errors.New("task: nil registry")
	}
	if data == nil {
		return nil, errors.New("task: nil dataset provider")
	}

	impl, ok := reg.Lookup(d.Suite, d.Task)
	if !ok {
		return nil, fmt.Errorf("%w: %s|%s", ErrUnknownTask, d.Suite, d.Task)
	}

	examples, err := data.Examples(d)
	if err != nil {
		return nil, fmt.Errorf("task: examples for %s: %w", d.ID(), err)
	}
	if maxSamples > 0 && len(examples) > maxSamples {
		examples = examples[:maxSamples]
	}

	out := make([]Request, 0, len(examples))
	for i, ex := range examples {
		rendered, err := impl.RenderContext(ex, d.FewShot)
		if err != nil {
			return nil, fmt.Errorf("task: render %s example %d: %w", d.ID(), i, err)
		}
		out = append(out, Request{
			Desc:    d,
			Index:   i,
			Context: rendered,
			Choices: impl.Choices(ex),
			FewShot: d.FewShot,
			Example: ex,
		})
	}
	return out, nil
}

// ExpandAll expands descriptors in the given order into one flat request
// slice. The flat order (descriptor order, then ascending index) is the
// global order the batcher shards over.
func ExpandAll(descs []Descriptor, reg Resolver, data DatasetProvider, maxSamples int) ([]Request, error) {
	var out []Request
	for _, d := range descs {
		reqs, err := Expand(d, reg, data, maxSamples)
		if err != nil {
			return nil, err
		}
		out = append(out, reqs...)
	}
	return out, nil
}
