package plan

import "fmt"

// CollisionError reports two different directory layouts normalizing to
// the same (dataset, table) name. Merging them would silently mix
// unrelated files into one table, so plan construction fails instead.
type CollisionError struct {
	Dataset     string
	Table       string
	ExistingDir string
	Key         string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("table %s.%s already mapped from directory %q, key %q maps to it from a different nesting",
		e.Dataset, e.Table, e.ExistingDir, e.Key)
}
