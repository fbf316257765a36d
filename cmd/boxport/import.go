// Import command: materialize an archive into a fresh store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boxport/internal/engine"
)

var (
	importItems     bool
	importLocations bool
	importLabels    bool
	importPageSize  int
	importStrict    bool
)

var importCmd = &cobra.Command{
	Use:   "import <archive> <dest>",
	Short: "Import a portable archive into a new store",
	Long: `Import decodes the archive at <archive> and writes a fresh store at
<dest>, minting new identities for every record. The destination is staged;
a failed or interrupted import leaves nothing behind. Bundled asset files
are extracted into the assets directory next to the destination.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importItems, "items", false, "include items")
	importCmd.Flags().BoolVar(&importLocations, "locations", false, "include locations")
	importCmd.Flags().BoolVar(&importLabels, "labels", false, "include labels")
	importCmd.Flags().IntVar(&importPageSize, "page-size", 0, "rows per page (default 200, clamped to 25-1000)")
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "fail on dangling references instead of dropping them")
}

func runImport(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(importPageSize, importStrict)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	run, err := engine.New().ImportArchive(ctx, engine.ImportRequest{
		ArchivePath: args[0],
		DestPath:    args[1],
		Selection:   parseSelection(importItems, importLocations, importLabels),
		Options:     opts,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(exitCodeFor(err))
	}

	printReport("import", watchRun(run))
	return nil
}
