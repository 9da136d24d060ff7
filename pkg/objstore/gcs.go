package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS lists and reads objects in Google Cloud Storage.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a GCS client using application default credentials
// unless overridden via client options (e.g. a credentials file).
func NewGCS(ctx context.Context, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client}, nil
}

// List returns a lazy iterator over all objects under prefix. Pages are
// fetched on demand by the underlying client.
func (g *GCS) List(ctx context.Context, bucket, prefix string) Iterator {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	return &gcsIterator{bucket: bucket, prefix: prefix, it: it}
}

// ReaderAt returns a ranged reader over one object. Each ReadAt issues
// a range request, so callers should read coarsely (the parquet probe
// reads the footer in a handful of calls).
func (g *GCS) ReaderAt(ctx context.Context, bucket, key string, size int64) io.ReaderAt {
	return &objectReaderAt{
		ctx:  ctx,
		obj:  g.client.Bucket(bucket).Object(key),
		size: size,
	}
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

type gcsIterator struct {
	bucket string
	prefix string
	it     *storage.ObjectIterator
}

func (g *gcsIterator) Next() (Entry, error) {
	attrs, err := g.it.Next()
	if errors.Is(err, iterator.Done) {
		return Entry{}, io.EOF
	}
	if err != nil {
		return Entry{}, &ListError{Bucket: g.bucket, Prefix: g.prefix, Err: err}
	}
	return Entry{Key: attrs.Name, Size: attrs.Size}, nil
}

type objectReaderAt struct {
	ctx  context.Context
	obj  *storage.ObjectHandle
	size int64
}

func (r *objectReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > r.size {
		length = r.size - off
	}

	rr, err := r.obj.NewRangeReader(r.ctx, off, length)
	if err != nil {
		return 0, fmt.Errorf("range read at %d: %w", off, err)
	}
	defer rr.Close()

	n, err := io.ReadFull(rr, p[:length])
	if err != nil {
		return n, err
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}
