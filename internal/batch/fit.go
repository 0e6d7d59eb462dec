package batch

import (
	"errors"
	"fmt"

	"github.com/martinscooper/lighteval/internal/task"
)

// ErrContextTooLong reports a rendered context that exceeds the model's
// maximum input length and cannot (or may not) be reduced further. Fatal for
// its task only; other tasks keep running.
var ErrContextTooLong = errors.New("batch: context too long")

// LengthChecker decides whether a rendered context fits the model's input
// window. Injected so the batcher stays independent of any tokenizer.
type LengthChecker interface {
	Fits(context string) bool
}

// CharLimit is a LengthChecker over raw character count.
type CharLimit int

func (l CharLimit) Fits(context string) bool {
	return l <= 0 || len(context) <= int(l)
}

// Fit applies the auto-reduce policy to every request. A request whose
// context overflows and whose task has auto_reduce set is re-rendered with
// one fewer demonstration until it fits or the count reaches zero; a strict
// decrease each iteration bounds the loop. Without auto_reduce the first
// overflow fails the task immediately. No silent truncation either way.
//
// The returned slice holds the surviving requests in their original order;
// the map carries the per-task fatal errors.
func Fit(requests []task.Request, reg task.Resolver, check LengthChecker) ([]task.Request, map[string]error) {
	failed := make(map[string]error)
	if check == nil {
		return requests, failed
	}

	fitted := make([]task.Request, 0, len(requests))
	for _, r := range requests {
		id := r.Desc.ID()
		if _, bad := failed[id]; bad {
			continue
		}

		out, err := fitOne(r, reg, check)
		if err != nil {
			failed[id] = err
			// Drop requests already accepted for this task: a task either
			// runs completely or not at all.
			kept := fitted[:0]
			for _, f := range fitted {
				if f.Desc.ID() != id {
					kept = append(kept, f)
				}
			}
			fitted = kept
			continue
		}
		fitted = append(fitted, out)
	}
	return fitted, failed
}

func fitOne(r task.Request, reg task.Resolver, check LengthChecker) (task.Request, error) {
	if check.Fits(r.Context) {
		return r, nil
	}
	if !r.Desc.AutoReduce {
		return task.Request{}, fmt.Errorf("%w: %s request %d at %d-shot", ErrContextTooLong, r.Desc.ID(), r.Index, r.FewShot)
	}

	impl, ok := reg.Lookup(r.Desc.Suite, r.Desc.Task)
	if !ok {
		return task.Request{}, fmt.Errorf("%w: %s|%s", task.ErrUnknownTask, r.Desc.Suite, r.Desc.Task)
	}

	for shots := r.FewShot - 1; shots >= 0; shots-- {
		rendered, err := impl.RenderContext(r.Example, shots)
		if err != nil {
			return task.Request{}, fmt.Errorf("batch: re-render %s request %d: %w", r.Desc.ID(), r.Index, err)
		}
		if check.Fits(rendered) {
			r.Context = rendered
			r.FewShot = shots
			return r, nil
		}
	}
	return task.Request{}, fmt.Errorf("%w: %s request %d does not fit even at 0-shot", ErrContextTooLong, r.Desc.ID(), r.Index)
}
