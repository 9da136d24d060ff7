// Package reconcile compares a load plan against the warehouse's
// current datasets and tables and emits the provisioning actions that
// close the gap.
package reconcile

import (
	"context"
	"fmt"

	"github.com/bqtools/bucket2bq/pkg/plan"
	"github.com/bqtools/bucket2bq/pkg/warehouse"
)

// State is a point-in-time snapshot of the warehouse objects a plan
// touches.
type State struct {
	// Datasets maps dataset name → whether it exists.
	Datasets map[string]bool
	// Tables maps dataset name → set of existing table IDs. Only
	// populated for datasets that exist.
	Tables map[string]map[string]struct{}
}

// SkippedTable is a table the reconciler decided not to load.
type SkippedTable struct {
	Dataset string
	Table   string
	Reason  string
}

// Result is the reconciler's output: the ordered action sequence plus
// the tables skipped up front, which the report still has to mention.
type Result struct {
	Actions []Action
	Skipped []SkippedTable
}

// Snapshot queries existence of every plan dataset and lists the tables
// of those that exist. Tables are listed once per dataset so the
// per-table existence checks stay off the network.
func Snapshot(ctx context.Context, wh warehouse.Warehouse, datasets []string) (State, error) {
	state := State{
		Datasets: make(map[string]bool, len(datasets)),
		Tables:   make(map[string]map[string]struct{}, len(datasets)),
	}
	for _, name := range datasets {
		exists, err := wh.DatasetExists(ctx, name)
		if err != nil {
			return State{}, fmt.Errorf("snapshot dataset %s: %w", name, err)
		}
		state.Datasets[name] = exists
		if !exists {
			continue
		}
		tables, err := wh.ListTables(ctx, name)
		if err != nil {
			return State{}, fmt.Errorf("snapshot tables of %s: %w", name, err)
		}
		state.Tables[name] = tables
	}
	return state, nil
}

// Reconcile computes the actions required to realize the plan given the
// snapshot. The sequence is deterministic: dataset creations first,
// sorted by name, then table loads sorted by dataset and table.
// Identical inputs always yield identical sequences.
func Reconcile(p *plan.LoadPlan, state State, mode Mode) Result {
	var res Result

	for _, dataset := range p.Datasets() {
		if !state.Datasets[dataset] {
			res.Actions = append(res.Actions, CreateDataset{Name: dataset})
		}
	}

	for _, dataset := range p.Datasets() {
		existing := state.Tables[dataset]
		for _, table := range p.Tables(dataset) {
			if mode == CreateIfAbsent {
				if _, ok := existing[table]; ok {
					res.Skipped = append(res.Skipped, SkippedTable{
						Dataset: dataset,
						Table:   table,
						Reason:  "already exists",
					})
					continue
				}
			}
			res.Actions = append(res.Actions, LoadTable{
				Dataset: dataset,
				Table:   table,
				Sources: p.Sources(dataset, table),
				Mode:    mode,
			})
		}
	}

	return res
}
