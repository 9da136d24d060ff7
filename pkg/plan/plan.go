// Package plan groups listed bucket objects into a load plan: a mapping
// of dataset name to table name to source files. The plan is built once
// per run and is immutable afterwards.
package plan

import "sort"

// TableSource is one parquet file feeding one warehouse table.
type TableSource struct {
	Dataset   string
	Table     string
	SourceURI string
	Size      int64
}

// LoadPlan maps dataset → table → source files. Source lists are kept
// sorted lexicographically by object URI so identical bucket states
// always produce identical plans.
type LoadPlan struct {
	tables     map[string]map[string][]TableSource
	sourceDirs map[string]string // dataset.table → originating directory
	sources    int
	totalBytes int64
}

func newLoadPlan() *LoadPlan {
	return &LoadPlan{
		tables:     make(map[string]map[string][]TableSource),
		sourceDirs: make(map[string]string),
	}
}

// Datasets returns the dataset names in the plan, sorted.
func (p *LoadPlan) Datasets() []string {
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns the table names within a dataset, sorted.
func (p *LoadPlan) Tables(dataset string) []string {
	names := make([]string, 0, len(p.tables[dataset]))
	for name := range p.tables[dataset] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sources returns the ordered source files for one table.
func (p *LoadPlan) Sources(dataset, table string) []TableSource {
	return p.tables[dataset][table]
}

// TableCount returns the number of (dataset, table) pairs in the plan.
func (p *LoadPlan) TableCount() int {
	n := 0
	for _, tables := range p.tables {
		n += len(tables)
	}
	return n
}

// SourceCount returns the number of source files across all tables.
func (p *LoadPlan) SourceCount() int { return p.sources }

// TotalBytes returns the summed size of all source files.
func (p *LoadPlan) TotalBytes() int64 { return p.totalBytes }
