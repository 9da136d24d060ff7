// Package keyparse maps object keys to warehouse (dataset, table) names.
//
// The bucket convention is one directory per dataset with parquet files
// below it: "sales/orders.parquet" loads into table "orders" of dataset
// "sales". Subdirectories below the dataset become part of the table
// name, joined by underscores, so nothing nested deeper than the
// two-level convention is silently lost.
package keyparse

import (
	"fmt"
	"path"
	"strings"
)

// Extension is the only file extension accepted into a load plan.
const Extension = ".parquet"

// maxIdentifierLen is the warehouse limit on dataset and table IDs.
const maxIdentifierLen = 1024

// TableRef names a load destination derived from one object key.
type TableRef struct {
	Dataset string
	Table   string
}

// Parse derives the (dataset, table) destination for an object key.
//
// bucketPrefix is stripped from the front of the key; a key outside the
// prefix is a PrefixMismatch. tableNamePrefix, when non-empty, is
// stripped from the file stem before it is used as the table name, so
// staging conventions like "stg_orders.parquet" land in table "orders".
func Parse(key, bucketPrefix, tableNamePrefix string) (TableRef, error) {
	rest, ok := strings.CutPrefix(key, bucketPrefix)
	if !ok {
		return TableRef{}, &Error{Kind: PrefixMismatch, Key: key,
			Reason: fmt.Sprintf("key does not start with bucket prefix %q", bucketPrefix)}
	}
	rest = strings.TrimPrefix(rest, "/")

	segments := strings.Split(rest, "/")
	if len(segments) < 2 {
		return TableRef{}, &Error{Kind: MissingDatasetSegment, Key: key,
			Reason: "need at least a dataset directory and a file name"}
	}

	fileName := segments[len(segments)-1]
	ext := path.Ext(fileName)
	if !strings.EqualFold(ext, Extension) {
		return TableRef{}, &Error{Kind: UnsupportedFileType, Key: key,
			Reason: fmt.Sprintf("extension %q is not %s", ext, Extension)}
	}

	dataset := sanitize(strings.ToLower(segments[0]))
	if err := validateIdentifier(dataset, key, "dataset"); err != nil {
		return TableRef{}, err
	}

	stem := strings.TrimSuffix(fileName, ext)
	if tableNamePrefix != "" {
		stem = strings.TrimPrefix(stem, tableNamePrefix)
	}

	// Intermediate directories become leading table-name components.
	parts := append(append([]string{}, segments[1:len(segments)-1]...), stem)
	table := sanitize(strings.Join(parts, "_"))
	if err := validateIdentifier(table, key, "table"); err != nil {
		return TableRef{}, err
	}

	return TableRef{Dataset: dataset, Table: table}, nil
}

// sanitize replaces every character outside [A-Za-z0-9_] with an
// underscore, matching the warehouse identifier alphabet.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// validateIdentifier enforces the warehouse naming rules on a derived
// name. Names must be non-empty, start with a letter or underscore, and
// fit the warehouse length bound. Violations are reported, never
// coerced.
func validateIdentifier(name, key, role string) error {
	if name == "" {
		return &Error{Kind: InvalidIdentifier, Key: key,
			Reason: fmt.Sprintf("derived %s name is empty", role)}
	}
	if len(name) > maxIdentifierLen {
		return &Error{Kind: InvalidIdentifier, Key: key,
			Reason: fmt.Sprintf("derived %s name exceeds %d bytes", role, maxIdentifierLen)}
	}
	c := name[0]
	if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return &Error{Kind: InvalidIdentifier, Key: key,
			Reason: fmt.Sprintf("derived %s name %q must start with a letter or underscore", role, name)}
	}
	return nil
}
