package topology

import (
	"errors"
	"fmt"
)

var (
	// ErrTopologyMismatch reports requested parallelism degrees whose product
	// does not equal the launched world size. Degrees are never rescaled to
	// fit: results must be attributable to the topology that was asked for.
	ErrTopologyMismatch = errors.New("topology: degrees do not match world size")

	// ErrAmbiguousTopology reports a configuration the resolver refuses to
	// guess at, e.g. no degrees and no allow-model-parallel flag, or an
	// unknown device count when the model-parallel heuristic is needed.
	ErrAmbiguousTopology = errors.New("topology: ambiguous configuration")
)

// Degrees carries the requested parallelism degrees. Zero means unset.
type Degrees struct {
	Data     int
	Tensor   int
	Pipeline int

	// AllowModelParallel enables the automatic processes-vs-devices
	// heuristic when tensor/pipeline degrees are unset.
	AllowModelParallel bool
}

// Topology is the resolved process grid. Immutable after resolution.
type Topology struct {
	DataParallel     int
	TensorParallel   int
	PipelineParallel int
	WorldSize        int

	// ModelSharded is set when the model must be split across devices,
	// either by explicit tensor/pipeline degrees or by the heuristic
	// detecting fewer processes than visible devices. The split itself is
	// owned by the execution provider.
	ModelSharded bool
}

// Workers is the number of logical workers the coordinator drives: one per
// data-parallel replica. A tensor/pipeline group counts as one worker.
func (t Topology) Workers() int {
	return t.DataParallel
}

func (t Topology) String() string {
	return fmt.Sprintf("dp=%d tp=%d pp=%d world=%d", t.DataParallel, t.TensorParallel, t.PipelineParallel, t.WorldSize)
}

// Resolve validates requested degrees against the execution context and
// derives the process grid.
//
// Fully specified degrees must multiply to the actual world size. With
// tensor/pipeline unset and AllowModelParallel set, the grid is derived from
// the documented heuristic: fewer launched processes than visible devices per
// process means the model is sharded across devices inside each process;
// otherwise every process is a pure data-parallel replica. Anything the rules
// do not cover fails with ErrAmbiguousTopology rather than guessing.
func Resolve(req Degrees, env ExecContext) (Topology, error) {
	world := env.WorldSize
	if world < 1 {
		return Topology{}, fmt.Errorf("%w: world size %d", ErrAmbiguousTopology, world)
	}
	if req.Data < 0 || req.Tensor < 0 || req.Pipeline < 0 {
		return Topology{}, fmt.Errorf("%w: negative degree", ErrTopologyMismatch)
	}

	modelDegreesSet := req.Tensor > 0 || req.Pipeline > 0

	if modelDegreesSet {
		// Explicit grid: fill the unset model degree with 1, derive an unset
		// data degree only when the division is exact.
		tp := req.Tensor
		if tp == 0 {
			tp = 1
		}
		pp := req.Pipeline
		if pp == 0 {
			pp = 1
		}
		dp := req.Data
		if dp == 0 {
			if world%(tp*pp) != 0 {
				return Topology{}, fmt.Errorf("%w: world %d not divisible by tp*pp=%d", ErrTopologyMismatch, world, tp*pp)
			}
			dp = world / (tp * pp)
		}
		if dp*tp*pp != world {
			return Topology{}, fmt.Errorf("%w: dp*tp*pp=%d, world=%d", ErrTopologyMismatch, dp*tp*pp, world)
		}
		return Topology{
			DataParallel:     dp,
			TensorParallel:   tp,
			PipelineParallel: pp,
			WorldSize:        world,
			ModelSharded:     tp > 1 || pp > 1,
		}, nil
	}

	if !req.AllowModelParallel {
		if req.Data == 0 {
			return Topology{}, fmt.Errorf("%w: no degrees requested and model parallelism not allowed", ErrAmbiguousTopology)
		}
		if req.Data != world {
			return Topology{}, fmt.Errorf("%w: dp=%d, world=%d", ErrTopologyMismatch, req.Data, world)
		}
		return Topology{DataParallel: world, TensorParallel: 1, PipelineParallel: 1, WorldSize: world}, nil
	}

	// Heuristic: compare launched processes with visible devices. Unknown
	// device count cannot be resolved safely.
	if env.DevicesPerProcess <= 0 {
		return Topology{}, fmt.Errorf("%w: device count unknown, cannot apply model-parallel heuristic", ErrAmbiguousTopology)
	}
	if req.Data > 0 && req.Data != world {
		return Topology{}, fmt.Errorf("%w: dp=%d, world=%d", ErrTopologyMismatch, req.Data, world)
	}

	return Topology{
		DataParallel:     world,
		TensorParallel:   1,
		PipelineParallel: 1,
		WorldSize:        world,
		ModelSharded:     world < env.DevicesPerProcess,
	}, nil
}
