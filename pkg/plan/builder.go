package plan

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/bqtools/bucket2bq/pkg/keyparse"
	"github.com/bqtools/bucket2bq/pkg/logging"
	"github.com/bqtools/bucket2bq/pkg/objstore"
)

// Options configures plan construction.
type Options struct {
	// Bucket is the bucket name, used to render gs:// source URIs.
	Bucket string
	// BucketPrefix scopes the listing; keys outside it are parse errors.
	BucketPrefix string
	// TableNamePrefix is stripped from file stems before naming tables.
	TableNamePrefix string
}

// Build consumes a listing exactly once and groups every parquet object
// under its (dataset, table) destination.
//
// Non-parquet keys are dropped silently. Other parse failures are
// collected and returned alongside the plan; a malformed key never
// aborts the run. Listing failures and table-name collisions are fatal.
func Build(it objstore.Iterator, opts Options) (*LoadPlan, []*keyparse.Error, error) {
	log := logging.L()
	p := newLoadPlan()
	var issues []*keyparse.Error

	for {
		entry, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("consume listing: %w", err)
		}

		ref, err := keyparse.Parse(entry.Key, opts.BucketPrefix, opts.TableNamePrefix)
		if err != nil {
			var pe *keyparse.Error
			if !errors.As(err, &pe) {
				return nil, nil, err
			}
			if pe.Kind == keyparse.UnsupportedFileType {
				log.Debug().Str("key", entry.Key).Msg("skipping non-parquet object")
				continue
			}
			issues = append(issues, pe)
			continue
		}

		if err := p.add(ref, entry, opts.Bucket); err != nil {
			return nil, nil, err
		}
	}

	p.sortSources()
	return p, issues, nil
}

// add inserts one source under its destination. A given key always
// parses to the same (dataset, table), so a key can never end up under
// two destinations; the only ambiguity left is two directory nestings
// normalizing to one table name, which is rejected here.
func (p *LoadPlan) add(ref keyparse.TableRef, entry objstore.Entry, bucket string) error {
	dir := path.Dir(entry.Key)
	id := ref.Dataset + "." + ref.Table
	if existing, ok := p.sourceDirs[id]; ok {
		if existing != dir {
			return &CollisionError{
				Dataset:     ref.Dataset,
				Table:       ref.Table,
				ExistingDir: existing,
				Key:         entry.Key,
			}
		}
	} else {
		p.sourceDirs[id] = dir
	}

	tables, ok := p.tables[ref.Dataset]
	if !ok {
		tables = make(map[string][]TableSource)
		p.tables[ref.Dataset] = tables
	}
	tables[ref.Table] = append(tables[ref.Table], TableSource{
		Dataset:   ref.Dataset,
		Table:     ref.Table,
		SourceURI: objstore.URI(bucket, entry.Key),
		Size:      entry.Size,
	})
	p.sources++
	p.totalBytes += entry.Size
	return nil
}

// sortSources fixes a deterministic source order per table. Load order
// does not matter for correctness, but reproducible plans do.
func (p *LoadPlan) sortSources() {
	for _, tables := range p.tables {
		for _, sources := range tables {
			sort.Slice(sources, func(i, j int) bool {
				return sources[i].SourceURI < sources[j].SourceURI
			})
		}
	}
}
