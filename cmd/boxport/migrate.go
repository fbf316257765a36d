// Migrate command: move a legacy store into the current destination format.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boxport/internal/dest"
	"github.com/mesh-intelligence/boxport/internal/engine"
	"github.com/mesh-intelligence/boxport/internal/paths"
)

var (
	migrateForce    bool
	migratePageSize int
	migrateStrict   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <source> <dest>",
	Short: "Migrate a legacy store into a new destination store",
	Long: `Migrate reads the legacy store at <source> and writes a fresh store at
<dest>. The destination is staged; nothing user-visible changes unless the
whole run completes and validates. On success the source is moved to the
backup directory and a completion marker is written next to the destination.

A destination that already carries the completion marker is skipped unless
--force is given. Interrupting the run (Ctrl-C) stops it at the next page
boundary and discards the staging file.`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "re-run even when the completion marker exists")
	migrateCmd.Flags().IntVar(&migratePageSize, "page-size", 0, "rows per page (default 200, clamped to 25-1000)")
	migrateCmd.Flags().BoolVar(&migrateStrict, "strict", false, "fail on dangling references instead of dropping them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	srcPath, destPath := args[0], args[1]

	if paths.HasMarker(destPath, dest.SchemaVersion) {
		if !migrateForce {
			fmt.Printf("%s: already migrated (marker %s present); use --force to re-run\n",
				destPath, paths.MarkerName(dest.SchemaVersion))
			return nil
		}
		if err := paths.ClearMarker(destPath, dest.SchemaVersion); err != nil {
			return fmt.Errorf("clear completion marker: %w", err)
		}
	}

	opts, err := buildOptions(migratePageSize, migrateStrict)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	run, err := engine.New().Migrate(ctx, engine.MigrateRequest{
		SourcePath: srcPath,
		DestPath:   destPath,
		Options:    opts,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(exitCodeFor(err))
	}

	printReport("migration", watchRun(run))
	return nil
}
