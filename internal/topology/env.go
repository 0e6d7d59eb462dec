package topology

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ExecContext is the per-process execution environment, constructed once at
// startup and passed explicitly so the core never reads ambient global state
// mid-run.
type ExecContext struct {
	WorldSize int
	Rank      int

	// DevicesPerProcess is the number of accelerators visible to this
	// process; zero means it could not be determined.
	DevicesPerProcess int
}

// FromEnv builds the execution context from torchrun-style launcher
// variables. Absent variables default to a single-process run; an absent or
// empty device list leaves DevicesPerProcess at zero (unknown).
func FromEnv() (ExecContext, error) {
	world, err := envInt("WORLD_SIZE", 1)
	if err != nil {
		return ExecContext{}, err
	}
	rank, err := envInt("RANK", 0)
	if err != nil {
		return ExecContext{}, err
	}
	if world < 1 {
		return ExecContext{}, fmt.Errorf("topology: WORLD_SIZE must be >= 1 (got %d)", world)
	}
	if rank < 0 || rank >= world {
		return ExecContext{}, fmt.Errorf("topology: RANK %d out of range for world size %d", rank, world)
	}

	return ExecContext{
		WorldSize:         world,
		Rank:              rank,
		DevicesPerProcess: visibleDevices(),
	}, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("topology: parse %s=%q: %w", key, raw, err)
	}
	return v, nil
}

func visibleDevices() int {
	raw := strings.TrimSpace(os.Getenv("CUDA_VISIBLE_DEVICES"))
	if raw == "" {
		return 0
	}
	n := 0
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
