package task

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMalformedDescriptor reports a task descriptor that does not follow
	// the suite|task|num_few_shot|auto_reduce grammar.
	ErrMalformedDescriptor = errors.New("task: malformed descriptor")

	// ErrUnknownTask reports a (suite, task) pair with no registered
	// implementation.
	ErrUnknownTask = errors.New("task: unknown task")
)

// Descriptor identifies one benchmark task to evaluate. Identity is
// (Suite, Task, FewShot); AutoReduce is a rendering policy, not identity.
type Descriptor struct {
	Suite      string
	Task       string
	FewShot    int
	AutoReduce bool
}

// ID returns the canonical suite|task|num_few_shot identifier used as the
// report key.
func (d Descriptor) ID() string {
	return fmt.Sprintf("%s|%s|%d", d.Suite, d.Task, d.FewShot)
}

func (d Descriptor) String() string {
	auto := 0
	if d.AutoReduce {
		auto = 1
	}
	return fmt.Sprintf("%s|%s|%d|%d", d.Suite, d.Task, d.FewShot, auto)
}

// ParseDescriptor parses a single suite|task|num_few_shot|auto_reduce string.
func ParseDescriptor(s string) (Descriptor, error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return Descriptor{}, fmt.Errorf("%w: %q: want 4 pipe-delimited fields, got %d", ErrMalformedDescriptor, raw, len(parts))
	}

	suite := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	if suite == "" || name == "" {
		return Descriptor{}, fmt.Errorf("%w: %q: empty suite or task", ErrMalformedDescriptor, raw)
	}

	fewShot, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: num_few_shot: %v", ErrMalformedDescriptor, raw, err)
	}
	if fewShot < 0 {
		return Descriptor{}, fmt.Errorf("%w: %q: num_few_shot must be >= 0 (got %d)", ErrMalformedDescriptor, raw, fewShot)
	}

	auto, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: auto_reduce: %v", ErrMalformedDescriptor, raw, err)
	}
	if auto != 0 && auto != 1 {
		return Descriptor{}, fmt.Errorf("%w: %q: auto_reduce must be 0 or 1 (got %d)", ErrMalformedDescriptor, raw, auto)
	}

	return Descriptor{
		Suite:      suite,
		Task:       name,
		FewShot:    fewShot,
		AutoReduce: auto == 1,
	}, nil
}

// Parse parses a list of descriptor strings into a deduplicated, stably
// ordered set. Duplicates collapse by (suite, task, num_few_shot); a later
// occurrence wins if it redefines auto_reduce. Every descriptor must resolve
// against the registry, otherwise ErrUnknownTask is returned.
func Parse(specs []string, reg Resolver) ([]Descriptor, error) {
	if reg == nil {
		return nil, errors.New("task: nil registry")
	}

	order := make([]string, 0, len(specs))
	byID := make(map[string]Descriptor, len(specs))

	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		d, err := ParseDescriptor(s)
		if err != nil {
			return nil, err
		}
		if _, ok := reg.Lookup(d.Suite, d.Task); !ok {
			return nil, fmt.Errorf("%w: %s|%s", ErrUnknownTask, d.Suite, d.Task)
		}

		id := d.ID()
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = d
	}

	out := make([]Descriptor, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// ParseList splits a comma-separated descriptor string and parses it.
func ParseList(csv string, reg Resolver) ([]Descriptor, error) {
	return Parse(strings.Split(csv, ","), reg)
}

// ParseFile reads one descriptor per line. Blank lines and lines starting
// with '#' are ignored.
func ParseFile(path string, reg Resolver) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("task: open descriptor file: %w", err)
	}
	defer f.Close()

	var specs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		specs = append(specs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("task: read descriptor file: %w", err)
	}

	return Parse(specs, reg)
}
