package reconcile

import (
	"fmt"

	"github.com/bqtools/bucket2bq/pkg/plan"
)

// Mode selects what happens to tables that already exist.
type Mode int

const (
	// CreateIfAbsent skips tables that are already present.
	CreateIfAbsent Mode = iota
	// TruncateAndReload replaces existing table contents.
	TruncateAndReload
)

func (m Mode) String() string {
	switch m {
	case TruncateAndReload:
		return "truncate-and-reload"
	default:
		return "create-if-absent"
	}
}

// ParseMode parses a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "create-if-absent":
		return CreateIfAbsent, nil
	case "truncate-and-reload":
		return TruncateAndReload, nil
	default:
		return 0, fmt.Errorf("unknown load mode %q (want create-if-absent or truncate-and-reload)", s)
	}
}

// Action is one provisioning step. The concrete types are
// CreateDataset and LoadTable.
type Action interface {
	action()
	Describe() string
}

// CreateDataset provisions a missing dataset.
type CreateDataset struct {
	Name string
}

func (CreateDataset) action() {}

func (a CreateDataset) Describe() string {
	return fmt.Sprintf("create dataset %s", a.Name)
}

// LoadTable loads all of one table's sources in a single job.
type LoadTable struct {
	Dataset string
	Table   string
	Sources []plan.TableSource
	Mode    Mode
}

func (LoadTable) action() {}

func (a LoadTable) Describe() string {
	return fmt.Sprintf("load table %s.%s from %d source(s)", a.Dataset, a.Table, len(a.Sources))
}
