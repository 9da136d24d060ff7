package plan

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bqtools/bucket2bq/pkg/keyparse"
	"github.com/bqtools/bucket2bq/pkg/objstore"
)

func buildFromEntries(t *testing.T, entries []objstore.Entry, opts Options) (*LoadPlan, []*keyparse.Error) {
	t.Helper()
	p, issues, err := Build(objstore.NewSliceIterator(entries, nil), opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return p, issues
}

func TestBuildGroupsObjectsByDestination(t *testing.T) {
	entries := []objstore.Entry{
		{Key: "sales/orders.parquet", Size: 100},
		{Key: "sales/customers.parquet", Size: 200},
		{Key: "hr/people.parquet", Size: 50},
	}
	p, issues := buildFromEntries(t, entries, Options{Bucket: "lake"})

	if len(issues) != 0 {
		t.Fatalf("issues = %v, want none", issues)
	}
	if got, want := p.Datasets(), []string{"hr", "sales"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Datasets() = %v, want %v", got, want)
	}
	if got, want := p.Tables("sales"), []string{"customers", "orders"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tables(sales) = %v, want %v", got, want)
	}
	if got := p.TableCount(); got != 3 {
		t.Errorf("TableCount() = %d, want 3", got)
	}
	if got := p.SourceCount(); got != 3 {
		t.Errorf("SourceCount() = %d, want 3", got)
	}
	if got := p.TotalBytes(); got != 350 {
		t.Errorf("TotalBytes() = %d, want 350", got)
	}

	sources := p.Sources("sales", "orders")
	if len(sources) != 1 {
		t.Fatalf("Sources(sales, orders) = %v, want one source", sources)
	}
	if got, want := sources[0].SourceURI, "gs://lake/sales/orders.parquet"; got != want {
		t.Errorf("SourceURI = %q, want %q", got, want)
	}
}

func TestBuildMultiSourceTableSortedByURI(t *testing.T) {
	// All three stems sanitize to x_1 and share a directory, so they
	// become one table with three sources in URI order.
	entries := []objstore.Entry{
		{Key: "sales/x_1.parquet", Size: 10},
		{Key: "sales/x.1.parquet", Size: 10},
		{Key: "sales/x-1.parquet", Size: 10},
	}
	p, _ := buildFromEntries(t, entries, Options{Bucket: "lake"})

	sources := p.Sources("sales", "x_1")
	if len(sources) != 3 {
		t.Fatalf("Sources(sales, x_1) has %d entries, want 3", len(sources))
	}
	want := []string{
		"gs://lake/sales/x-1.parquet",
		"gs://lake/sales/x.1.parquet",
		"gs://lake/sales/x_1.parquet",
	}
	for i, src := range sources {
		if src.SourceURI != want[i] {
			t.Errorf("sources[%d] = %q, want %q", i, src.SourceURI, want[i])
		}
	}
	if got := p.TableCount(); got != 1 {
		t.Errorf("TableCount() = %d, want 1", got)
	}
}

func TestBuildSkipsNonParquetSilently(t *testing.T) {
	entries := []objstore.Entry{
		{Key: "sales/orders.parquet", Size: 10},
		{Key: "sales/_SUCCESS", Size: 0},
		{Key: "sales/readme.txt", Size: 5},
	}
	p, issues := buildFromEntries(t, entries, Options{Bucket: "lake"})

	if len(issues) != 0 {
		t.Errorf("issues = %v, want none for non-parquet keys", issues)
	}
	if got := p.SourceCount(); got != 1 {
		t.Errorf("SourceCount() = %d, want 1", got)
	}
	if got := p.TotalBytes(); got != 10 {
		t.Errorf("TotalBytes() = %d, want 10 (skipped keys excluded)", got)
	}
}

func TestBuildCollectsParseIssuesWithoutAborting(t *testing.T) {
	entries := []objstore.Entry{
		{Key: "rootfile.parquet", Size: 10}, // no dataset segment
		{Key: "sales/orders.parquet", Size: 10},
	}
	p, issues := buildFromEntries(t, entries, Options{Bucket: "lake"})

	if len(issues) != 1 {
		t.Fatalf("issues = %v, want exactly one", issues)
	}
	if got := issues[0].Kind; got != keyparse.MissingDatasetSegment {
		t.Errorf("issue kind = %v, want MissingDatasetSegment", got)
	}
	if got := p.SourceCount(); got != 1 {
		t.Errorf("SourceCount() = %d, want 1", got)
	}
}

func TestBuildCollisionIsFatal(t *testing.T) {
	// Both keys normalize to sales.a_b but live in different
	// directories.
	entries := []objstore.Entry{
		{Key: "sales/a/b.parquet", Size: 10},
		{Key: "sales/a_b.parquet", Size: 10},
	}
	_, _, err := Build(objstore.NewSliceIterator(entries, nil), Options{Bucket: "lake"})

	var collision *CollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("Build() error = %v, want *CollisionError", err)
	}
	if collision.Dataset != "sales" || collision.Table != "a_b" {
		t.Errorf("collision = %s.%s, want sales.a_b", collision.Dataset, collision.Table)
	}
}

func TestBuildSameDirectoryIsNotACollision(t *testing.T) {
	// Identical destination from the same directory means the same
	// logical table; nothing to reject.
	entries := []objstore.Entry{
		{Key: "sales/order-1.parquet", Size: 10},
		{Key: "sales/order_1.parquet", Size: 10},
	}
	p, _ := buildFromEntries(t, entries, Options{Bucket: "lake"})
	if got := len(p.Sources("sales", "order_1")); got != 2 {
		t.Errorf("Sources(sales, order_1) has %d entries, want 2", got)
	}
}

func TestBuildListingFailureIsFatal(t *testing.T) {
	listErr := &objstore.ListError{Bucket: "lake", Prefix: "", Err: errors.New("boom")}
	entries := []objstore.Entry{{Key: "sales/orders.parquet", Size: 10}}
	_, _, err := Build(objstore.NewSliceIterator(entries, listErr), Options{Bucket: "lake"})

	if !errors.Is(err, listErr) {
		t.Fatalf("Build() error = %v, want wrapped ListError", err)
	}
}

func TestBuildAppliesPrefixes(t *testing.T) {
	entries := []objstore.Entry{
		{Key: "exports/v2/sales/stg_orders.parquet", Size: 10},
	}
	p, issues := buildFromEntries(t, entries, Options{
		Bucket:          "lake",
		BucketPrefix:    "exports/v2",
		TableNamePrefix: "stg_",
	})
	if len(issues) != 0 {
		t.Fatalf("issues = %v, want none", issues)
	}
	if got, want := p.Tables("sales"), []string{"orders"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tables(sales) = %v, want %v", got, want)
	}
}

func TestBuildEmptyListing(t *testing.T) {
	p, issues := buildFromEntries(t, nil, Options{Bucket: "lake"})
	if len(issues) != 0 || p.SourceCount() != 0 || len(p.Datasets()) != 0 {
		t.Errorf("empty listing: sources=%d datasets=%v issues=%v, want all empty",
			p.SourceCount(), p.Datasets(), issues)
	}
}
