// Package objstore abstracts bucket listing and ranged object reads.
//
// Listings are consumed as a lazy iterator so a run over a bucket with
// millions of objects never materializes the full key list in memory.
package objstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Entry is one listed object: its key within the bucket and its size.
type Entry struct {
	Key  string
	Size int64
}

// Iterator yields listing entries one at a time. Next returns io.EOF
// when the listing is exhausted and a *ListError on any other failure.
type Iterator interface {
	Next() (Entry, error)
}

// Lister lists objects under a bucket prefix.
type Lister interface {
	List(ctx context.Context, bucket, prefix string) Iterator
}

// ObjectReader opens a ranged reader over a single object. Used by the
// parquet probe, which only needs the file footer.
type ObjectReader interface {
	ReaderAt(ctx context.Context, bucket, key string, size int64) io.ReaderAt
}

// ListError wraps a listing failure. Listing failures are fatal to the
// whole run: without a complete listing no plan can be trusted.
type ListError struct {
	Bucket string
	Prefix string
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list gs://%s/%s: %v", e.Bucket, e.Prefix, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// URI renders the canonical gs:// location for an object. Load jobs
// reference sources by these URIs.
func URI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, key)
}

// ParseURI splits a "gs://bucket/path/to/file" URI back into bucket
// and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("expected gs:// scheme in %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object URI %q", uri)
	}
	return bucket, key, nil
}

// SliceIterator adapts an in-memory entry slice to the Iterator
// interface. Intended for tests and small fixed listings.
type SliceIterator struct {
	entries []Entry
	pos     int
	err     error
}

// NewSliceIterator returns an iterator over entries. If err is non-nil
// it is returned after the entries are exhausted, mimicking a listing
// that fails partway.
func NewSliceIterator(entries []Entry, err error) *SliceIterator {
	return &SliceIterator{entries: entries, err: err}
}

func (s *SliceIterator) Next() (Entry, error) {
	if s.pos >= len(s.entries) {
		if s.err != nil {
			return Entry{}, s.err
		}
		return Entry{}, io.EOF
	}
	e := s.entries[s.pos]
	s.pos++
	return e, nil
}
