package docsession

import (
	"context"
	"fmt"
	"log/slog"

	multierror "github.com/hashicorp/go-multierror"
)

type (
	// FlushReport describes what a Flush committed and what the store refused.
	// TransportErr is set when the batch could not be submitted at all, in which
	// case Committed and Failed are empty and nothing in the session changed.
	FlushReport struct {
		Committed    []string
		Failed       []Failure
		TransportErr error
	}

	Failure struct {
		ID     string
		Kind   ResultStatus
		Detail string
	}
)

// Empty reports whether the flush had nothing to do.
func (r FlushReport) Empty() bool {
	return len(r.Committed) == 0 && len(r.Failed) == 0 && r.TransportErr == nil
}

// Err folds the per-document failures into one error, nil if there were none.
func (r FlushReport) Err() error {
	var errs *multierror.Error
	if r.TransportErr != nil {
		errs = multierror.Append(errs, r.TransportErr)
	}
	for _, f := range r.Failed {
		errs = multierror.Append(errs, f.err())
	}
	return errs.ErrorOrNil()
}

func (f Failure) err() error {
	kind := ErrRejected
	if f.Kind == StatusConflict {
		kind = ErrConflict
	}
	return &DocError{ID: f.ID, Op: "flush", Err: kind, Detail: f.Detail}
}

type flusher struct {
	store  Store
	cache  *cache
	logger *slog.Logger
}

func (f *flusher) flush(ctx context.Context) (FlushReport, error) {
	var report FlushReport
	if f.cache.flushing {
		return report, ErrSessionBusy
	}

	pending := f.cache.pending()
	if len(pending) == 0 {
		return report, nil
	}

	ops := make([]Operation, len(pending))
	for i, e := range pending {
		ops[i] = e.operation()
	}

	f.logger.Debug("flushing session", "operations", len(ops))

	results, err := f.submit(ctx, ops)

	if err == nil {
		err = matchResults(ops, results)
	}
	if err != nil {
		report.TransportErr = fmt.Errorf("%w: %w", ErrTransportFailure, err)
		f.logger.Warn("bulk write failed", "operations", len(ops), "err", err)
		return report, report.TransportErr
	}

	for i, e := range pending {
		res := results[i]
		if res.Status != StatusOK {
			report.Failed = append(report.Failed, Failure{ID: e.id, Kind: res.Status, Detail: res.Detail})
			f.logger.Warn("document not committed", "id", e.id, "op", ops[i].Kind, "status", res.Status, "detail", res.Detail)
			continue
		}
		if ops[i].Kind == OpDelete {
			f.cache.remove(e)
		} else {
			e.committed(res.Rev)
		}
		report.Committed = append(report.Committed, e.id)
	}

	f.logger.Debug("session flushed", "committed", len(report.Committed), "failed", len(report.Failed))
	return report, nil
}

func (f *flusher) submit(ctx context.Context, ops []Operation) ([]Result, error) {
	f.cache.flushing = true
	defer func() { f.cache.flushing = false }()
	return f.store.BulkWrite(ctx, ops)
}

// matchResults checks the store answered every operation, in order.
func matchResults(ops []Operation, results []Result) error {
	if len(results) != len(ops) {
		return fmt.Errorf("store returned %d results for %d operations", len(results), len(ops))
	}
	for i, res := range results {
		if res.ID != "" && res.ID != ops[i].ID {
			return fmt.Errorf("result %d is for %q, expected %q", i, res.ID, ops[i].ID)
		}
		switch res.Status {
		case StatusOK, StatusConflict, StatusError:
		default:
			return fmt.Errorf("result %d has unknown status %q", i, res.Status)
		}
	}
	return nil
}
