// Package report accumulates per-table outcomes of a load run. The
// report is the run's only externally visible result: callers derive
// exit codes and output from it.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bqtools/bucket2bq/pkg/humanfmt"
)

// Status is the terminal outcome of one table.
type Status int

const (
	Created Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Entry is the outcome for one (dataset, table) pair.
type Entry struct {
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
	Status  Status `json:"status"`
	// Reason explains a skip or a failure; empty for created tables.
	Reason  string `json:"reason,omitempty"`
	Sources int    `json:"sources,omitempty"`
	Bytes   int64  `json:"bytes,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Err     error  `json:"-"`
}

// Report is a concurrency-safe outcome sink. Workers Add entries as
// they finish; the report is read-only once the run returns it.
type Report struct {
	mu      sync.Mutex
	entries []Entry
	started time.Time
	elapsed time.Duration
}

// New returns an empty report with the run clock started.
func New() *Report {
	return &Report{started: time.Now()}
}

// Add records one table outcome. Safe for concurrent use.
func (r *Report) Add(e Entry) {
	if e.Err != nil && e.Reason == "" {
		e.Reason = e.Err.Error()
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Finish stops the run clock.
func (r *Report) Finish() {
	r.mu.Lock()
	r.elapsed = time.Since(r.started)
	r.mu.Unlock()
}

// Entries returns all outcomes ordered by dataset then table, the same
// order the reconciler emits actions in, regardless of which worker
// finished first.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Dataset != out[j].Dataset {
			return out[i].Dataset < out[j].Dataset
		}
		return out[i].Table < out[j].Table
	})
	return out
}

// HasFailures reports whether any table failed.
func (r *Report) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Status == Failed {
			return true
		}
	}
	return false
}

// Counts returns the number of created, skipped, and failed tables.
func (r *Report) Counts() (created, skipped, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		switch e.Status {
		case Created:
			created++
		case Skipped:
			skipped++
		case Failed:
			failed++
		}
	}
	return
}

// LoadedBytes returns the summed source bytes of created tables.
func (r *Report) LoadedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, e := range r.entries {
		if e.Status == Created {
			total += e.Bytes
		}
	}
	return total
}

// Elapsed returns the run duration recorded by Finish.
func (r *Report) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Summary renders a one-line human summary of the run.
func (r *Report) Summary() string {
	created, skipped, failed := r.Counts()
	bytes := r.LoadedBytes()
	elapsed := r.Elapsed()
	return fmt.Sprintf("%d created, %d skipped, %d failed; %s loaded in %s (%s)",
		created, skipped, failed,
		humanfmt.Bytes(bytes), humanfmt.Duration(elapsed), humanfmt.Throughput(bytes, elapsed))
}

// MarshalJSON serializes the report with ordered entries and totals.
func (r *Report) MarshalJSON() ([]byte, error) {
	created, skipped, failed := r.Counts()
	return json.Marshal(struct {
		Entries     []Entry `json:"tables"`
		Created     int     `json:"created"`
		Skipped     int     `json:"skipped"`
		Failed      int     `json:"failed"`
		LoadedBytes int64   `json:"loaded_bytes"`
		ElapsedMS   int64   `json:"elapsed_ms"`
	}{
		Entries:     r.Entries(),
		Created:     created,
		Skipped:     skipped,
		Failed:      failed,
		LoadedBytes: r.LoadedBytes(),
		ElapsedMS:   r.Elapsed().Milliseconds(),
	})
}
