// Package orchestrate executes a reconciled action sequence against the
// warehouse: dataset creation first, then table loads on a bounded
// worker pool, with retries for transient failures and a complete
// per-table report regardless of individual outcomes.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bqtools/bucket2bq/internal/logctx"
	"github.com/bqtools/bucket2bq/pkg/logging"
	"github.com/bqtools/bucket2bq/pkg/plan"
	"github.com/bqtools/bucket2bq/pkg/reconcile"
	"github.com/bqtools/bucket2bq/pkg/report"
	"github.com/bqtools/bucket2bq/pkg/retry"
	"github.com/bqtools/bucket2bq/pkg/warehouse"
)

// Defaults for orchestration knobs.
const (
	DefaultConcurrency  = 8
	DefaultMaxAttempts  = 3
	DefaultPollInterval = 2 * time.Second
	DefaultDrainTimeout = 2 * time.Minute
)

// Config tunes the orchestrator. Zero values take the defaults above.
type Config struct {
	// Concurrency bounds the number of simultaneously running load jobs.
	Concurrency int
	// MaxAttempts bounds submit attempts per table, including the first.
	MaxAttempts int
	// Backoff paces retries of transient failures.
	Backoff retry.Backoff
	// PollInterval is the wait between job status polls.
	PollInterval time.Duration
	// DrainTimeout bounds how long a canceled run keeps polling
	// in-flight jobs toward a terminal state.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff.Initial == 0 && c.Backoff.Max == 0 {
		c.Backoff = retry.DefaultBackoff()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// Orchestrator drives provisioning actions against one warehouse
// client. The client is shared by all workers.
type Orchestrator struct {
	wh  warehouse.Warehouse
	cfg Config
}

// New creates an orchestrator for the given warehouse handle.
func New(wh warehouse.Warehouse, cfg Config) *Orchestrator {
	return &Orchestrator{wh: wh, cfg: cfg.withDefaults()}
}

// Run executes the reconciled result and returns the complete report.
//
// Phase 1 creates missing datasets and must finish before any load
// starts, since loads reference datasets by name. Phase 2 runs loads on
// a pool bounded by Concurrency; a failing table never aborts its
// siblings. Cancellation stops submission of new loads; in-flight jobs
// are polled toward a terminal state (bounded by DrainTimeout) because
// the warehouse does not guarantee clean rollback of a killed job.
func (o *Orchestrator) Run(ctx context.Context, res reconcile.Result) *report.Report {
	rep := report.New()

	for _, s := range res.Skipped {
		rep.Add(report.Entry{
			Dataset: s.Dataset,
			Table:   s.Table,
			Status:  report.Skipped,
			Reason:  s.Reason,
		})
	}

	var creates []reconcile.CreateDataset
	var loads []reconcile.LoadTable
	for _, a := range res.Actions {
		switch a := a.(type) {
		case reconcile.CreateDataset:
			creates = append(creates, a)
		case reconcile.LoadTable:
			loads = append(loads, a)
		}
	}

	badDatasets := o.provisionDatasets(ctx, creates)

	tracker := logging.NewProgressTracker("load", int64(len(loads)), logctx.FromContext(ctx))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, a := range loads {
		if err, bad := badDatasets[a.Dataset]; bad {
			rep.Add(report.Entry{
				Dataset: a.Dataset,
				Table:   a.Table,
				Status:  report.Failed,
				Err:     fmt.Errorf("dataset not provisioned: %w", err),
			})
			tracker.RecordFailure()
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				rep.Add(report.Entry{
					Dataset: a.Dataset,
					Table:   a.Table,
					Status:  report.Skipped,
					Reason:  "run canceled",
				})
				tracker.RecordSkip()
				return nil
			}
			o.loadTable(ctx, a, rep, tracker)
			return nil
		})
	}
	g.Wait()

	rep.Finish()
	return rep
}

// provisionDatasets is Phase 1. It returns the datasets whose creation
// ultimately failed; their loads are failed up front instead of being
// submitted against a missing dataset.
func (o *Orchestrator) provisionDatasets(ctx context.Context, creates []reconcile.CreateDataset) map[string]error {
	log := logctx.FromContext(ctx)
	failed := make(map[string]error)

	for _, c := range creates {
		err := o.retryPolicy(log, "create dataset", c.Name).Do(ctx, func(ctx context.Context) error {
			return o.wh.CreateDataset(ctx, c.Name)
		})
		switch {
		case err == nil:
			log.Info().Str("dataset", c.Name).Msg("dataset created")
		case errors.Is(err, warehouse.ErrDatasetExists):
			// Someone else created it since the snapshot; that is fine.
			log.Debug().Str("dataset", c.Name).Msg("dataset already exists")
		default:
			log.Error().Err(err).Str("dataset", c.Name).Msg("dataset creation failed")
			failed[c.Name] = err
		}
	}
	return failed
}

// loadTable runs one table's load to a terminal outcome and records it.
// All of the table's sources go into a single job; the table is never
// written by two jobs at once.
func (o *Orchestrator) loadTable(ctx context.Context, a reconcile.LoadTable, rep *report.Report, tracker *logging.ProgressTracker) {
	log := logctx.FromContext(ctx).With().
		Str("dataset", a.Dataset).
		Str("table", a.Table).
		Logger()

	spec := warehouse.LoadSpec{
		Dataset:    a.Dataset,
		Table:      a.Table,
		SourceURIs: sourceURIs(a.Sources),
		Truncate:   a.Mode == reconcile.TruncateAndReload,
	}

	start := time.Now()
	var jobID string
	err := o.retryPolicy(log, "load table", a.Dataset+"."+a.Table).Do(ctx, func(ctx context.Context) error {
		job, err := o.wh.SubmitLoad(ctx, spec)
		if err != nil {
			return err
		}
		jobID = job.ID()
		log.Info().Str("job_id", jobID).Int("sources", len(spec.SourceURIs)).Msg("load job submitted")
		return o.awaitJob(ctx, job)
	})

	bytes := sourceBytes(a.Sources)
	if err != nil {
		log.Error().Err(err).Str("class", warehouse.Classify(err).String()).Msg("table load failed")
		rep.Add(report.Entry{
			Dataset: a.Dataset,
			Table:   a.Table,
			Status:  report.Failed,
			Sources: len(a.Sources),
			JobID:   jobID,
			Err:     err,
		})
		tracker.RecordFailure()
		tracker.LogProgress()
		return
	}

	log.Info().Str("job_id", jobID).Str("elapsed", time.Since(start).String()).Msg("table loaded")
	rep.Add(report.Entry{
		Dataset: a.Dataset,
		Table:   a.Table,
		Status:  report.Created,
		Sources: len(a.Sources),
		Bytes:   bytes,
		JobID:   jobID,
	})
	tracker.RecordCreated(time.Since(start), bytes)
	tracker.LogProgress()
}

// awaitJob polls a submitted job until it reaches a terminal state.
// Transient poll failures are absorbed here so the whole job is not
// resubmitted over a status blip. On run cancellation the poll switches
// to a detached context bounded by the drain timeout: the job keeps
// running in the warehouse either way, so we report what became of it
// if we can.
func (o *Orchestrator) awaitJob(ctx context.Context, job warehouse.Job) error {
	pollCtx := ctx
	var cancelDrain context.CancelFunc
	defer func() {
		if cancelDrain != nil {
			cancelDrain()
		}
	}()

	// drain detaches from the canceled run context, bounded by the
	// drain timeout, so an in-flight job can still be polled to a
	// terminal state.
	drain := func() {
		pollCtx, cancelDrain = context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DrainTimeout)
	}
	draining := func() bool { return cancelDrain != nil }

	transientPolls := 0
	for {
		st, err := job.Status(pollCtx)
		if err != nil {
			canceled := errors.Is(err, context.Canceled)
			if canceled && !draining() {
				drain()
				continue
			}
			if canceled || warehouse.Classify(err) != warehouse.Transient {
				return err
			}
			if transientPolls >= o.cfg.MaxAttempts {
				return &unconfirmedJobError{jobID: job.ID(), polls: transientPolls + 1, err: err}
			}
			transientPolls++
		} else {
			switch st.State {
			case warehouse.Succeeded:
				return nil
			case warehouse.Failed:
				return st.Err
			}
		}

		timer := time.NewTimer(o.cfg.PollInterval)
		select {
		case <-timer.C:
		case <-pollCtx.Done():
			timer.Stop()
			if draining() {
				return &unconfirmedJobError{jobID: job.ID(), err: pollCtx.Err()}
			}
			drain()
		}
	}
}

// unconfirmedJobError reports a submitted job whose terminal state was
// never observed. It deliberately does not unwrap the underlying poll
// failure: the job may still be running or may already have succeeded,
// so no caller is allowed to classify it as retryable and resubmit a
// second job against the same table.
type unconfirmedJobError struct {
	jobID string
	polls int
	err   error
}

func (e *unconfirmedJobError) Error() string {
	if e.polls > 0 {
		return fmt.Sprintf("load job %s not observed terminal after %d failed polls: %v", e.jobID, e.polls, e.err)
	}
	return fmt.Sprintf("load job %s not observed terminal at drain timeout: %v", e.jobID, e.err)
}

// retryPolicy builds the shared policy: transient errors retried with
// backoff up to MaxAttempts, everything else surfaces immediately.
func (o *Orchestrator) retryPolicy(log zerolog.Logger, op, target string) retry.Policy {
	return retry.Policy{
		MaxAttempts: o.cfg.MaxAttempts,
		Backoff:     o.cfg.Backoff,
		Retryable: func(err error) bool {
			return warehouse.Classify(err) == warehouse.Transient
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn().Err(err).
				Str("op", op).
				Str("target", target).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("transient failure, retrying")
		},
	}
}

func sourceURIs(sources []plan.TableSource) []string {
	uris := make([]string, len(sources))
	for i, s := range sources {
		uris[i] = s.SourceURI
	}
	return uris
}

func sourceBytes(sources []plan.TableSource) int64 {
	var total int64
	for _, s := range sources {
		total += s.Size
	}
	return total
}
