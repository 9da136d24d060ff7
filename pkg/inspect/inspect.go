// Package inspect reads the footer of parquet objects in place to
// recover their schema, without downloading the data pages. Used by the
// inspect subcommand and by preflight validation before loads.
package inspect

import (
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/bqtools/bucket2bq/pkg/objstore"
)

// Column is one top-level field of a parquet schema.
type Column struct {
	Name string
	Type string
}

// Info summarizes one parquet object.
type Info struct {
	Columns []Column
	Rows    int64
}

// Probe opens the parquet footer of one object via ranged reads and
// returns its schema. A probe failure means the object is not a
// readable parquet file; callers decide whether that fails the table or
// just gets logged.
func Probe(ctx context.Context, r objstore.ObjectReader, bucket, key string, size int64) (Info, error) {
	f, err := parquet.OpenFile(r.ReaderAt(ctx, bucket, key, size), size)
	if err != nil {
		return Info{}, fmt.Errorf("open parquet footer of %s: %w", objstore.URI(bucket, key), err)
	}

	fields := f.Schema().Fields()
	info := Info{
		Columns: make([]Column, len(fields)),
		Rows:    f.NumRows(),
	}
	for i, field := range fields {
		typ := "group"
		if field.Leaf() {
			typ = field.Type().String()
		}
		info.Columns[i] = Column{Name: field.Name(), Type: typ}
	}
	return info, nil
}

// ProbeURI is Probe for a gs:// source URI.
func ProbeURI(ctx context.Context, r objstore.ObjectReader, uri string, size int64) (Info, error) {
	bucket, key, err := objstore.ParseURI(uri)
	if err != nil {
		return Info{}, err
	}
	return Probe(ctx, r, bucket, key, size)
}
