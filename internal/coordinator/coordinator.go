package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/batch"
)

var (
	// ErrProviderContract reports a provider returning a different number of
	// outputs than the batch holds requests. Positional correspondence is
	// the whole contract, so this is fatal.
	ErrProviderContract = errors.New("coordinator: provider contract violation")

	// ErrExecutionFailed reports a provider call failure. Never retried:
	// re-running a batch against a model-serving backend risks duplicate
	// device allocations. The failing worker stops; its earlier partials
	// are kept.
	ErrExecutionFailed = errors.New("coordinator: execution failed")
)

// Provider executes one batch synchronously and returns one raw output per
// request, in request order. Tensor/pipeline coordination inside a replica
// is the provider's business; the coordinator sees one logical worker per
// data-parallel rank.
type Provider interface {
	Name() string
	Run(ctx context.Context, b batch.Batch) ([]string, error)
}

// RunWorker drives one logical worker through its batch sequence, strictly
// in plan order. On provider failure it returns the partials produced so far
// together with an ErrExecutionFailed naming the offending task and request
// range.
func RunWorker(ctx context.Context, rank int, batches []batch.Batch, p Provider) ([]aggregate.Partial, error) {
	if ctx == nil {
		return nil, errors.New("coordinator: nil context")
	}
	if p == nil {
		return nil, errors.New("coordinator: nil provider")
	}

	log := logrus.WithFields(logrus.Fields{"worker": rank, "provider": p.Name()})

	var partials []aggregate.Partial
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return partials, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
		}

		outputs, err := p.Run(ctx, b)
		if err != nil {
			log.WithField("batch", i).WithError(err).Error("provider call failed")
			return partials, fmt.Errorf("%w: %s: %v", ErrExecutionFailed, describeBatch(b), err)
		}
		if len(outputs) != len(b.Requests) {
			return partials, fmt.Errorf("%w: %s: got %d outputs for %d requests",
				ErrProviderContract, describeBatch(b), len(outputs), len(b.Requests))
		}

		for j, r := range b.Requests {
			partials = append(partials, aggregate.Partial{
				TaskID:    r.Desc.ID(),
				Index:     r.Index,
				RawOutput: outputs[j],
				Choices:   r.Choices,
			})
		}
		log.WithFields(logrus.Fields{"batch": i, "requests": len(b.Requests)}).Debug("batch done")
	}

	log.WithField("results", len(partials)).Info("worker finished")
	return partials, nil
}

// RunAll executes every shard of the plan as independent workers. Workers
// never synchronize with each other; correctness rests on the aggregator's
// re-sort by request index, not on completion order. One worker failing does
// not cancel its siblings, and every worker's partials survive.
func RunAll(ctx context.Context, plan *batch.Plan, p Provider) ([]aggregate.Partial, []error) {
	if plan == nil {
		return nil, []error{errors.New("coordinator: nil plan")}
	}

	partialSets := make([][]aggregate.Partial, len(plan.Shards))
	workerErrs := make([]error, len(plan.Shards))

	var wg sync.WaitGroup
	for rank := range plan.Shards {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			partialSets[rank], workerErrs[rank] = RunWorker(ctx, rank, plan.Shards[rank], p)
		}(rank)
	}
	wg.Wait()

	var partials []aggregate.Partial
	var errs []error
	for rank := range plan.Shards {
		partials = append(partials, partialSets[rank]...)
		if workerErrs[rank] != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", rank, workerErrs[rank]))
		}
	}
	return partials, errs
}

func describeBatch(b batch.Batch) string {
	if len(b.Requests) == 0 {
		return fmt.Sprintf("worker %d empty batch", b.Worker)
	}
	first := b.Requests[0]
	last := b.Requests[len(b.Requests)-1]
	if first.Desc == last.Desc {
		return fmt.Sprintf("worker %d %s requests %d-%d", b.Worker, first.Desc.ID(), first.Index, last.Index)
	}
	return fmt.Sprintf("worker %d %s request %d through %s request %d", b.Worker, first.Desc.ID(), first.Index, last.Desc.ID(), last.Index)
}
