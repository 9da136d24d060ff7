package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/bqtools/bucket2bq/pkg/fileutil"
	"github.com/bqtools/bucket2bq/pkg/inspect"
	"github.com/bqtools/bucket2bq/pkg/objstore"
	"github.com/bqtools/bucket2bq/pkg/plan"
	"github.com/bqtools/bucket2bq/pkg/report"
)

// logReport emits one line per table outcome plus the run summary.
func logReport(log zerolog.Logger, rep *report.Report) {
	for _, e := range rep.Entries() {
		ev := log.Info()
		switch e.Status {
		case report.Failed:
			ev = log.Error()
		case report.Skipped:
			ev = log.Debug()
		}
		ev = ev.Str("dataset", e.Dataset).
			Str("table", e.Table).
			Str("status", e.Status.String())
		if e.Reason != "" {
			ev = ev.Str("reason", e.Reason)
		}
		if e.JobID != "" {
			ev = ev.Str("job_id", e.JobID)
		}
		ev.Msg("table outcome")
	}
	log.Info().Msg(rep.Summary())
}

// writeReportJSON writes the report to outPath atomically, so a
// crashed run never leaves a truncated artifact behind.
func writeReportJSON(outPath string, rep *report.Report) error {
	return fileutil.WriteAtomic(outPath, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// inspectPlan probes every source in the plan and prints one schema
// block per object.
func inspectPlan(ctx context.Context, r objstore.ObjectReader, p *plan.LoadPlan, w io.Writer) error {
	for _, ds := range p.Datasets() {
		for _, tbl := range p.Tables(ds) {
			for _, src := range p.Sources(ds, tbl) {
				info, err := inspect.ProbeURI(ctx, r, src.SourceURI, src.Size)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s -> %s.%s (%d rows)\n", src.SourceURI, ds, tbl, info.Rows)
				for _, col := range info.Columns {
					fmt.Fprintf(w, "  %-32s %s\n", col.Name, col.Type)
				}
			}
		}
	}
	return nil
}
