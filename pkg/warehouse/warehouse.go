// Package warehouse defines the narrow control-plane surface the loader
// needs from a data warehouse, and implements it for BigQuery.
package warehouse

import (
	"context"
	"errors"
)

// ErrDatasetExists is returned by CreateDataset when the dataset is
// already present. Callers treat it as a benign outcome: dataset
// creation is idempotent from the loader's perspective.
var ErrDatasetExists = errors.New("dataset already exists")

// LoadSpec describes one table-load job. All sources are submitted in a
// single job; the warehouse infers the schema from the parquet files.
type LoadSpec struct {
	Dataset    string
	Table      string
	SourceURIs []string
	// Truncate replaces any existing table contents instead of
	// requiring the destination to be empty.
	Truncate bool
}

// JobState is the coarse lifecycle of a submitted load job.
type JobState int

const (
	Running JobState = iota
	Succeeded
	Failed
)

func (s JobState) String() string {
	switch s {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus is a point-in-time view of a load job. Err carries the
// job's failure detail when State is Failed.
type JobStatus struct {
	State JobState
	Err   error
}

// Job is a handle to an asynchronous load job.
type Job interface {
	ID() string
	Status(ctx context.Context) (JobStatus, error)
}

// Warehouse is the control-plane contract the orchestrator drives.
// Implementations must be safe for concurrent use; one client is shared
// across all load workers.
type Warehouse interface {
	DatasetExists(ctx context.Context, name string) (bool, error)
	CreateDataset(ctx context.Context, name string) error
	ListTables(ctx context.Context, dataset string) (map[string]struct{}, error)
	SubmitLoad(ctx context.Context, spec LoadSpec) (Job, error)
}
