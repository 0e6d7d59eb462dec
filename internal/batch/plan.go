package batch

import (
	"errors"
	"fmt"

	"github.com/martinscooper/lighteval/internal/task"
	"github.com/martinscooper/lighteval/internal/topology"
)

// Batch is an ordered run of requests handed to one worker in a single
// provider call.
type Batch struct {
	Worker   int
	Requests []task.Request
}

// Plan assigns every request to exactly one worker. Sharding is contiguous
// over the global request order so the aggregator can reconstruct that order
// from request indices alone, without knowing partition boundaries.
type Plan struct {
	Topology  topology.Topology
	BatchSize int

	// Shards is indexed by data-parallel rank; each shard is the ordered
	// batch sequence for that worker.
	Shards [][]Batch
}

// EffectiveBatchSize is the derived global batch size: per-device size times
// the data-parallel width. It is reported, never configured, so it cannot be
// double-counted.
func (p *Plan) EffectiveBatchSize() int {
	if p == nil {
		return 0
	}
	return p.BatchSize * p.Topology.DataParallel
}

// Requests returns how many requests the plan covers.
func (p *Plan) Requests() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, shard := range p.Shards {
		for _, b := range shard {
			n += len(b.Requests)
		}
	}
	return n
}

// ExpectedCounts returns the per-task request counts the aggregator checks
// completeness against.
func (p *Plan) ExpectedCounts() map[string]int {
	counts := make(map[string]int)
	if p == nil {
		return counts
	}
	for _, shard := range p.Shards {
		for _, b := range shard {
			for _, r := range b.Requests {
				counts[r.Desc.ID()]++
			}
		}
	}
	return counts
}

// Build shards requests across the data-parallel dimension and groups each
// shard into batches of at most batchSize, preserving the incoming order
// throughout. No reordering for load balance: metric tie-breaking depends on
// stable request order within a task.
func Build(requests []task.Request, topo topology.Topology, batchSize int) (*Plan, error) {
	if topo.DataParallel < 1 {
		return nil, fmt.Errorf("batch: invalid topology (%s)", topo)
	}
	if batchSize < 1 {
		return nil, errors.New("batch: batch size must be >= 1")
	}

	plan := &Plan{
		Topology:  topo,
		BatchSize: batchSize,
		Shards:    make([][]Batch, topo.DataParallel),
	}

	for rank, shard := range shardContiguous(requests, topo.DataParallel) {
		var batches []Batch
		for start := 0; start < len(shard); start += batchSize {
			end := min(start+batchSize, len(shard))
			batches = append(batches, Batch{Worker: rank, Requests: shard[start:end]})
		}
		plan.Shards[rank] = batches
	}
	return plan, nil
}

// shardContiguous splits requests into parts contiguous ranges. The first
// len(requests)%parts shards take one extra request, so the split is
// deterministic and reversible by index arithmetic.
func shardContiguous(requests []task.Request, parts int) [][]task.Request {
	out := make([][]task.Request, parts)
	base := len(requests) / parts
	extra := len(requests) % parts

	start := 0
	for i := 0; i < parts; i++ {
		size := base
		if i < extra {
			size++
		}
		out[i] = requests[start : start+size]
		start += size
	}
	return out
}
