package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Example is one dataset record. Implementations interpret the fields they
// need (query, choices, gold, ...).
type Example map[string]any

// Outcome pairs one raw model output with the choice set it was scored
// against, in request order.
type Outcome struct {
	RawOutput string
	Choices   []string
}

// Implementation is the per-task collaborator: it renders contexts, exposes
// the answer choices of an example, and reduces ordered outcomes to metrics.
type Implementation interface {
	RenderContext(ex Example, numFewShot int) (string, error)
	Choices(ex Example) []string
	Metric(outcomes []Outcome) map[string]float64
}

// Resolver looks up the implementation behind a (suite, task) pair.
type Resolver interface {
	Lookup(suite, task string) (Implementation, bool)
}

// DatasetProvider expands a descriptor into its finite example sequence.
// Calls are restartable: each call yields the same examples in the same order.
type DatasetProvider interface {
	Examples(d Descriptor) ([]Example, error)
}

// Registry is a map-backed Resolver.
type Registry struct {
	mu    sync.RWMutex
	impls map[string]Implementation
}

func NewRegistry() *Registry {
	return &Registry{impls: make(map[string]Implementation)}
}

func (r *Registry) Register(suite, task string, impl Implementation) error {
	if r == nil {
		return errors.New("task: nil registry")
	}
	suite = strings.TrimSpace(suite)
	task = strings.TrimSpace(task)
	if suite == "" || task == "" {
		return errors.New("task: empty suite or task name")
	}
	if impl == nil {
		return fmt.Errorf("task: nil implementation for %s|%s", suite, task)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.impls[suite+"|"+task] = impl
	return nil
}

func (r *Registry) Lookup(suite, task string) (Implementation, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[strings.TrimSpace(suite)+"|"+strings.TrimSpace(task)]
	return impl, ok
}

// Names lists registered suite|task pairs in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.impls))
	for k := range r.impls {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
