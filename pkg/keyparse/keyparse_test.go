package keyparse

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		prefix      string
		tablePrefix string
		wantDataset string
		wantTable   string
	}{
		{
			name:        "two level convention",
			key:         "data/sales/orders.parquet",
			prefix:      "data/",
			wantDataset: "sales",
			wantTable:   "orders",
		},
		{
			name:        "no bucket prefix",
			key:         "hr/employees.parquet",
			wantDataset: "hr",
			wantTable:   "employees",
		},
		{
			name:        "prefix without trailing slash",
			key:         "data/sales/refunds.parquet",
			prefix:      "data",
			wantDataset: "sales",
			wantTable:   "refunds",
		},
		{
			name:        "table name prefix stripped",
			key:         "data/sales/stg_orders.parquet",
			prefix:      "data/",
			tablePrefix: "stg_",
			wantDataset: "sales",
			wantTable:   "orders",
		},
		{
			name:        "table name prefix absent from stem",
			key:         "data/sales/orders.parquet",
			prefix:      "data/",
			tablePrefix: "stg_",
			wantDataset: "sales",
			wantTable:   "orders",
		},
		{
			name:        "dataset lowercased and sanitized",
			key:         "Sales-2023/orders.parquet",
			wantDataset: "sales_2023",
			wantTable:   "orders",
		},
		{
			name:        "table sanitized keeps case",
			key:         "sales/Orders-Q1.parquet",
			wantDataset: "sales",
			wantTable:   "Orders_Q1",
		},
		{
			name:        "nested directories join the table name",
			key:         "sales/emea/north/orders.parquet",
			wantDataset: "sales",
			wantTable:   "emea_north_orders",
		},
		{
			name:        "uppercase extension accepted",
			key:         "sales/orders.PARQUET",
			wantDataset: "sales",
			wantTable:   "orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.key, tt.prefix, tt.tablePrefix)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.key, err)
			}
			if ref.Dataset != tt.wantDataset {
				t.Errorf("Dataset = %q, want %q", ref.Dataset, tt.wantDataset)
			}
			if ref.Table != tt.wantTable {
				t.Errorf("Table = %q, want %q", ref.Table, tt.wantTable)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		prefix      string
		tablePrefix string
		wantKind    ErrorKind
	}{
		{
			name:     "prefix mismatch",
			key:      "other/sales/orders.parquet",
			prefix:   "data/",
			wantKind: PrefixMismatch,
		},
		{
			name:     "file at bucket root",
			key:      "orders.parquet",
			wantKind: MissingDatasetSegment,
		},
		{
			name:     "file directly under prefix",
			key:      "data/orders.parquet",
			prefix:   "data/",
			wantKind: MissingDatasetSegment,
		},
		{
			name:     "csv is not supported",
			key:      "sales/orders.csv",
			wantKind: UnsupportedFileType,
		},
		{
			name:     "no extension",
			key:      "sales/orders",
			wantKind: UnsupportedFileType,
		},
		{
			name:     "directory placeholder object",
			key:      "sales/",
			wantKind: UnsupportedFileType,
		},
		{
			name:        "empty table after prefix strip",
			key:         "sales/stg_.parquet",
			tablePrefix: "stg_",
			wantKind:    InvalidIdentifier,
		},
		{
			name:     "table starting with digit",
			key:      "sales/2023.parquet",
			wantKind: InvalidIdentifier,
		},
		{
			name:     "table name too long",
			key:      "sales/x" + strings.Repeat("y", 1200) + ".parquet",
			wantKind: InvalidIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.key, tt.prefix, tt.tablePrefix)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want %s", tt.key, tt.wantKind)
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(err) = %s, want %s (err: %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"orders", "orders"},
		{"orders-2023", "orders_2023"},
		{"a.b c", "a_b_c"},
		{"naïve", "na_ve"},
		{"__ok__", "__ok__"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
