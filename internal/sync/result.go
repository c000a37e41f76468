package sync

import (
	stdsync "sync"
	"time"
)

// Outcome is what a run did with one page.
type Outcome string

const (
	// OutcomeUnchanged means the stored digest matched and nothing was rendered.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeCommitted means a new rendering was written to the store.
	OutcomeCommitted Outcome = "committed"
	// OutcomeFailed means rendering or writing failed and the previous
	// entry, if any, was left untouched.
	OutcomeFailed Outcome = "failed_keep_previous"
	// OutcomeDeleted means the page no longer exists upstream and was removed.
	OutcomeDeleted Outcome = "deleted"
	// OutcomePending means the page was not processed: a dry run, or a run
	// interrupted before reaching it.
	OutcomePending Outcome = "pending"
)

// PageResult records the outcome for one page.
type PageResult struct {
	ID       string
	Title    string
	Outcome  Outcome
	Fallback bool
	Err      error
}

// Result summarizes a sync run.
type Result struct {
	RunID    string
	DryRun   bool
	Duration time.Duration
	Pages    []PageResult

	Unchanged int
	Committed int
	Fallbacks int
	Failed    int
	Deleted   int
	Pending   int

	mu   stdsync.Mutex
	seen map[string]struct{}
}

func newResult(runID string, dryRun bool) *Result {
	return &Result{
		RunID:  runID,
		DryRun: dryRun,
		seen:   make(map[string]struct{}),
	}
}

func (r *Result) add(pr PageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Pages = append(r.Pages, pr)
	r.seen[pr.ID] = struct{}{}
	switch pr.Outcome {
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeCommitted:
		r.Committed++
		if pr.Fallback {
			r.Fallbacks++
		}
	case OutcomeFailed:
		r.Failed++
	case OutcomeDeleted:
		r.Deleted++
	case OutcomePending:
		r.Pending++
	}
}

func (r *Result) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// Page returns the result for id.
func (r *Result) Page(id string) (PageResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pr := range r.Pages {
		if pr.ID == id {
			return pr, true
		}
	}
	return PageResult{}, false
}

// Errors returns the per-page errors of the run.
func (r *Result) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, pr := range r.Pages {
		if pr.Err != nil {
			errs = append(errs, pr.Err)
		}
	}
	return errs
}
