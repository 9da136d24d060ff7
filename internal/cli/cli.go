// Package cli implements the command-line interface for bucket2bq.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/option"

	"github.com/bqtools/bucket2bq/internal/logctx"
	"github.com/bqtools/bucket2bq/pkg/logging"
	"github.com/bqtools/bucket2bq/pkg/objstore"
	"github.com/bqtools/bucket2bq/pkg/orchestrate"
	"github.com/bqtools/bucket2bq/pkg/plan"
	"github.com/bqtools/bucket2bq/pkg/reconcile"
	"github.com/bqtools/bucket2bq/pkg/warehouse"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: bucket2bq <command> [options]\ncommands: load, plan, inspect")
	}

	switch args[0] {
	case "load":
		return runLoad(args[1:])
	case "plan":
		return runPlan(args[1:])
	case "inspect":
		return runInspect(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// config collects every run setting. Populated from flags only; there
// is no ambient configuration beyond the SDK credential chain.
type config struct {
	Bucket          string
	BucketPrefix    string
	TableNamePrefix string
	Project         string
	Credentials     string
	Mode            reconcile.Mode
	Concurrency     int
	MaxAttempts     int
	PollInterval    time.Duration
	DrainTimeout    time.Duration
	Preflight       bool
	ReportOut       string
	Debug           bool
	HumanLog        bool

	modeFlag string
}

func (c *config) addCommonFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Bucket, "bucket", "", "bucket to discover parquet files in (required)")
	fs.StringVar(&c.BucketPrefix, "prefix", "", "only consider objects under this key prefix")
	fs.StringVar(&c.TableNamePrefix, "table-prefix", "", "strip this prefix from file stems when naming tables")
	fs.StringVar(&c.Credentials, "credentials", "", "service account key file (default: application default credentials)")
	fs.BoolVar(&c.Debug, "debug", false, "enable debug logging")
	fs.BoolVar(&c.HumanLog, "human-log", false, "human-friendly console logging instead of JSON")
}

func (c *config) addWarehouseFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Project, "project", "", "warehouse project ID (required)")
	fs.StringVar(&c.modeFlag, "mode", "create-if-absent", "load mode: create-if-absent or truncate-and-reload")
}

func (c *config) addLoadFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Concurrency, "concurrency", orchestrate.DefaultConcurrency, "max concurrent load jobs")
	fs.IntVar(&c.MaxAttempts, "max-attempts", orchestrate.DefaultMaxAttempts, "attempts per table before a transient failure becomes terminal")
	fs.DurationVar(&c.PollInterval, "poll-interval", orchestrate.DefaultPollInterval, "wait between job status polls")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", orchestrate.DefaultDrainTimeout, "how long a canceled run keeps polling in-flight jobs")
	fs.BoolVar(&c.Preflight, "preflight", false, "probe each source's parquet footer before loading")
	fs.StringVar(&c.ReportOut, "report-out", "", "write the run report as JSON to this path")
}

func (c *config) validate(needProject bool) error {
	if c.Bucket == "" {
		return errors.New("--bucket is required")
	}
	if needProject && c.Project == "" {
		return errors.New("--project is required")
	}
	mode, err := reconcile.ParseMode(c.modeFlag)
	if err != nil {
		return err
	}
	c.Mode = mode
	return nil
}

func (c *config) clientOptions() []option.ClientOption {
	if c.Credentials == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.Credentials)}
}

// runContext returns a context canceled on SIGINT/SIGTERM, with the
// run logger attached.
func runContext(c *config) (context.Context, context.CancelFunc) {
	logging.Init(c.Debug, c.HumanLog)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	log := logging.L().With().Str("bucket", c.Bucket).Logger()
	return logctx.WithLogger(ctx, log), cancel
}

// buildPlan lists the bucket once and groups objects into a load plan.
// Keys excluded by parse failures are logged and do not stop the run.
func buildPlan(ctx context.Context, lister objstore.Lister, c *config) (*plan.LoadPlan, error) {
	log := logctx.FromContext(ctx)

	p, issues, err := plan.Build(lister.List(ctx, c.Bucket, c.BucketPrefix), plan.Options{
		Bucket:          c.Bucket,
		BucketPrefix:    c.BucketPrefix,
		TableNamePrefix: c.TableNamePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("build load plan: %w", err)
	}

	for _, issue := range issues {
		log.Warn().
			Str("key", issue.Key).
			Str("kind", issue.Kind.String()).
			Str("reason", issue.Reason).
			Msg("object excluded from plan")
	}

	log.Info().
		Int("datasets", len(p.Datasets())).
		Int("tables", p.TableCount()).
		Int("sources", p.SourceCount()).
		Int64("bytes", p.TotalBytes()).
		Msg("load plan built")
	return p, nil
}

func runLoad(args []string) error {
	c := &config{}
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	c.addCommonFlags(fs)
	c.addWarehouseFlags(fs)
	c.addLoadFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.validate(true); err != nil {
		return err
	}

	ctx, cancel := runContext(c)
	defer cancel()
	log := logctx.FromContext(ctx)

	gcs, err := objstore.NewGCS(ctx, c.clientOptions()...)
	if err != nil {
		return err
	}
	defer gcs.Close()

	p, err := buildPlan(ctx, gcs, c)
	if err != nil {
		return err
	}

	wh, err := warehouse.NewBigQuery(ctx, c.Project, c.clientOptions()...)
	if err != nil {
		return err
	}
	defer wh.Close()

	state, err := reconcile.Snapshot(ctx, wh, p.Datasets())
	if err != nil {
		return fmt.Errorf("snapshot warehouse state: %w", err)
	}
	res := reconcile.Reconcile(p, state, c.Mode)

	var preflightFailures []failedTable
	if c.Preflight {
		res.Actions, preflightFailures = preflightActions(ctx, gcs, res.Actions)
	}

	orch := orchestrate.New(wh, orchestrate.Config{
		Concurrency:  c.Concurrency,
		MaxAttempts:  c.MaxAttempts,
		PollInterval: c.PollInterval,
		DrainTimeout: c.DrainTimeout,
	})
	rep := orch.Run(ctx, res)
	recordPreflightFailures(rep, preflightFailures)

	logReport(log, rep)
	if c.ReportOut != "" {
		if err := writeReportJSON(c.ReportOut, rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info().Str("path", c.ReportOut).Msg("report written")
	}

	if rep.HasFailures() {
		_, _, failed := rep.Counts()
		return fmt.Errorf("%d table(s) failed to load", failed)
	}
	return nil
}

func runPlan(args []string) error {
	c := &config{}
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	c.addCommonFlags(fs)
	c.addWarehouseFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.validate(true); err != nil {
		return err
	}

	ctx, cancel := runContext(c)
	defer cancel()

	gcs, err := objstore.NewGCS(ctx, c.clientOptions()...)
	if err != nil {
		return err
	}
	defer gcs.Close()

	p, err := buildPlan(ctx, gcs, c)
	if err != nil {
		return err
	}

	wh, err := warehouse.NewBigQuery(ctx, c.Project, c.clientOptions()...)
	if err != nil {
		return err
	}
	defer wh.Close()

	state, err := reconcile.Snapshot(ctx, wh, p.Datasets())
	if err != nil {
		return fmt.Errorf("snapshot warehouse state: %w", err)
	}
	res := reconcile.Reconcile(p, state, c.Mode)

	for _, a := range res.Actions {
		fmt.Println(a.Describe())
	}
	for _, s := range res.Skipped {
		fmt.Printf("skip table %s.%s (%s)\n", s.Dataset, s.Table, s.Reason)
	}
	return nil
}

func runInspect(args []string) error {
	c := &config{}
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	c.addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.validate(false); err != nil {
		return err
	}

	ctx, cancel := runContext(c)
	defer cancel()

	gcs, err := objstore.NewGCS(ctx, c.clientOptions()...)
	if err != nil {
		return err
	}
	defer gcs.Close()

	p, err := buildPlan(ctx, gcs, c)
	if err != nil {
		return err
	}

	return inspectPlan(ctx, gcs, p, os.Stdout)
}
