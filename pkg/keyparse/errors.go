package keyparse

import "fmt"

// ErrorKind identifies why a key could not be mapped to a table.
type ErrorKind int

const (
	// PrefixMismatch means the key does not start with the configured
	// bucket prefix.
	PrefixMismatch ErrorKind = iota + 1
	// MissingDatasetSegment means the key has no dataset directory
	// above the file name.
	MissingDatasetSegment
	// UnsupportedFileType means the key is not a parquet file. Callers
	// drop these silently rather than reporting them.
	UnsupportedFileType
	// InvalidIdentifier means the derived dataset or table name does
	// not satisfy the warehouse identifier rules.
	InvalidIdentifier
)

// String returns the kind as a short lowercase token for logs.
func (k ErrorKind) String() string {
	switch k {
	case PrefixMismatch:
		return "prefix_mismatch"
	case MissingDatasetSegment:
		return "missing_dataset_segment"
	case UnsupportedFileType:
		return "unsupported_file_type"
	case InvalidIdentifier:
		return "invalid_identifier"
	default:
		return "unknown"
	}
}

// Error describes a key that could not be parsed. Parse errors are
// per-file: they exclude the key from the plan but never abort a run.
type Error struct {
	Kind   ErrorKind
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse key %q: %s: %s", e.Key, e.Kind, e.Reason)
}

// KindOf returns the ErrorKind of err, or 0 if err is not a parse Error.
func KindOf(err error) ErrorKind {
	if pe, ok := err.(*Error); ok {
		return pe.Kind
	}
	return 0
}
