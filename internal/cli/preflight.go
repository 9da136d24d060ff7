package cli

import (
	"context"

	"github.com/bqtools/bucket2bq/internal/logctx"
	"github.com/bqtools/bucket2bq/pkg/inspect"
	"github.com/bqtools/bucket2bq/pkg/objstore"
	"github.com/bqtools/bucket2bq/pkg/reconcile"
	"github.com/bqtools/bucket2bq/pkg/report"
)

// failedTable is a table dropped from the run before any job was
// submitted, with the reason it was dropped.
type failedTable struct {
	action reconcile.LoadTable
	reason string
}

// preflightActions probes the parquet footer of every source behind
// each load action. Tables with an unreadable source are removed from
// the action list so the run never submits a job that is doomed to
// fail; dataset creations pass through untouched.
func preflightActions(ctx context.Context, r objstore.ObjectReader, actions []reconcile.Action) ([]reconcile.Action, []failedTable) {
	log := logctx.FromContext(ctx)

	kept := actions[:0]
	var failed []failedTable
	for _, a := range actions {
		load, ok := a.(reconcile.LoadTable)
		if !ok {
			kept = append(kept, a)
			continue
		}

		bad := ""
		for _, src := range load.Sources {
			info, err := inspect.ProbeURI(ctx, r, src.SourceURI, src.Size)
			if err != nil {
				bad = err.Error()
				break
			}
			log.Debug().
				Str("uri", src.SourceURI).
				Int("columns", len(info.Columns)).
				Int64("rows", info.Rows).
				Msg("preflight probe ok")
		}
		if bad != "" {
			log.Error().
				Str("dataset", load.Dataset).
				Str("table", load.Table).
				Str("reason", bad).
				Msg("preflight failed, table dropped from run")
			failed = append(failed, failedTable{action: load, reason: bad})
			continue
		}
		kept = append(kept, a)
	}
	return kept, failed
}

// recordPreflightFailures folds preflight drops into the run report so
// the exit code and report artifact account for them.
func recordPreflightFailures(rep *report.Report, failures []failedTable) {
	for _, f := range failures {
		rep.Add(report.Entry{
			Dataset: f.action.Dataset,
			Table:   f.action.Table,
			Status:  report.Failed,
			Reason:  "preflight: " + f.reason,
			Sources: len(f.action.Sources),
		})
	}
}
