// Inspect command: summarize an archive without importing it.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boxport/internal/archive"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive>",
	Short: "Show an archive's manifest without importing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	sum, err := archive.Preview(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(exitCodeFor(err))
	}

	if flagJSON {
		out, merr := json.MarshalIndent(sum, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("format version: %d\n", sum.FormatVersion)
	if !sum.CreatedAt.IsZero() {
		fmt.Printf("created: %s\n", sum.CreatedAt.Format(time.RFC3339))
	}
	for table, n := range sum.TableCounts {
		fmt.Printf("  %s: %d\n", table, n)
	}
	fmt.Printf("assets: %d\n", sum.AssetCount)
	return nil
}
