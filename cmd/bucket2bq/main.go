// Command bucket2bq discovers parquet files in a bucket and loads them
// into the warehouse, one table per file stem, one dataset per
// top-level directory.
package main

import (
	"fmt"
	"os"

	"github.com/bqtools/bucket2bq/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
