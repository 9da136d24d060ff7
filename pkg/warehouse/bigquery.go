package warehouse

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQuery implements Warehouse against the BigQuery API.
type BigQuery struct {
	client *bigquery.Client
}

// NewBigQuery creates a BigQuery-backed warehouse client for a project.
// Credentials come from application default credentials unless client
// options say otherwise.
func NewBigQuery(ctx context.Context, projectID string, opts ...option.ClientOption) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &BigQuery{client: client}, nil
}

// DatasetExists reports whether a dataset is present in the project.
func (w *BigQuery) DatasetExists(ctx context.Context, name string) (bool, error) {
	_, err := w.client.Dataset(name).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if isStatus(err, 404) {
		return false, nil
	}
	return false, fmt.Errorf("get dataset %s: %w", name, err)
}

// CreateDataset creates a dataset, returning ErrDatasetExists if it was
// created concurrently by someone else.
func (w *BigQuery) CreateDataset(ctx context.Context, name string) error {
	err := w.client.Dataset(name).Create(ctx, &bigquery.DatasetMetadata{})
	if err == nil {
		return nil
	}
	if isStatus(err, 409) {
		return ErrDatasetExists
	}
	return fmt.Errorf("create dataset %s: %w", name, err)
}

// ListTables returns the IDs of all tables in a dataset. One listing
// per dataset keeps the per-table existence checks off the network.
func (w *BigQuery) ListTables(ctx context.Context, dataset string) (map[string]struct{}, error) {
	tables := make(map[string]struct{})
	it := w.client.Dataset(dataset).Tables(ctx)
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tables in %s: %w", dataset, err)
		}
		tables[t.TableID] = struct{}{}
	}
	return tables, nil
}

// SubmitLoad starts one load job covering all of a table's sources.
// Schema is inferred by BigQuery from the parquet files themselves.
func (w *BigQuery) SubmitLoad(ctx context.Context, spec LoadSpec) (Job, error) {
	ref := bigquery.NewGCSReference(spec.SourceURIs...)
	ref.SourceFormat = bigquery.Parquet

	loader := w.client.Dataset(spec.Dataset).Table(spec.Table).LoaderFrom(ref)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	if spec.Truncate {
		loader.WriteDisposition = bigquery.WriteTruncate
	} else {
		loader.WriteDisposition = bigquery.WriteEmpty
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit load for %s.%s: %w", spec.Dataset, spec.Table, err)
	}
	return &bigqueryJob{job: job}, nil
}

// Close releases the underlying client.
func (w *BigQuery) Close() error {
	return w.client.Close()
}

type bigqueryJob struct {
	job *bigquery.Job
}

func (j *bigqueryJob) ID() string { return j.job.ID() }

// Status fetches the job's current state. A Failed status carries the
// job's error result; an error return means the poll itself failed.
func (j *bigqueryJob) Status(ctx context.Context) (JobStatus, error) {
	st, err := j.job.Status(ctx)
	if err != nil {
		return JobStatus{}, fmt.Errorf("poll job %s: %w", j.job.ID(), err)
	}
	if !st.Done() {
		return JobStatus{State: Running}, nil
	}
	if err := st.Err(); err != nil {
		return JobStatus{State: Failed, Err: err}, nil
	}
	return JobStatus{State: Succeeded}, nil
}

// isStatus reports whether err is a googleapi error with the given
// HTTP status code.
func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
