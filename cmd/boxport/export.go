// Export command: stream a store into a portable archive.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boxport/internal/engine"
)

var (
	exportItems     bool
	exportLocations bool
	exportLabels    bool
	exportPageSize  int
)

var exportCmd = &cobra.Command{
	Use:   "export <store> <archive>",
	Short: "Export a store to a single-file portable archive",
	Long: `Export streams the store at <store> into an archive file: entity tables
as CSV, referenced asset files, preview thumbnails, and a manifest. Selection
flags restrict which entity kinds travel; homes and policies always do. With
no selection flags everything is exported.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportItems, "items", false, "include items")
	exportCmd.Flags().BoolVar(&exportLocations, "locations", false, "include locations")
	exportCmd.Flags().BoolVar(&exportLabels, "labels", false, "include labels")
	exportCmd.Flags().IntVar(&exportPageSize, "page-size", 0, "rows per page (default 200, clamped to 25-1000)")
}

func runExport(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(exportPageSize, false)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	run, err := engine.New().ExportArchive(ctx, engine.ExportRequest{
		StorePath:   args[0],
		ArchivePath: args[1],
		Selection:   parseSelection(exportItems, exportLocations, exportLabels),
		Options:     opts,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(exitCodeFor(err))
	}

	printReport("export", watchRun(run))
	return nil
}
