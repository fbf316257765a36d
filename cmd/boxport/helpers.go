// Shared helpers for boxport CLI commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mesh-intelligence/boxport/internal/engine"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// signalContext returns a context cancelled by SIGINT or SIGTERM, so a run
// stops cleanly at the next page boundary and the staging file is discarded.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildOptions merges command flags with config.yaml values.
func buildOptions(pageSize int, strict bool) (types.Options, error) {
	if pageSize == 0 {
		pageSize = configPageSize
	}
	backupDir, err := resolveBackupDir()
	if err != nil {
		return types.Options{}, err
	}
	return types.Options{
		PageSize:         pageSize,
		StrictReferences: strict || configStrictRefs,
		BackupDir:        backupDir,
	}, nil
}

// watchRun drains the progress stream to stderr (suppressed with --json) and
// returns the final report.
func watchRun(run *engine.Run) *types.Report {
	for p := range run.Events() {
		if flagJSON {
			continue
		}
		if p.Kind != "" {
			fmt.Fprintf(os.Stderr, "%s %s: %d/%d\n", p.Phase, p.Kind, p.Processed, p.Total)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %d\n", p.Phase, p.Total)
		}
	}
	return run.Wait()
}

// printReport renders the final report and exits non-zero for runs that did
// not complete.
func printReport(verb string, report *types.Report) {
	if flagJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal report:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
	} else {
		switch report.State {
		case types.StateCompleted:
			fmt.Printf("%s completed: %d items, %d locations, %d labels, %d homes, %d policies, %d assets\n",
				verb,
				report.Counts[types.KindItem], report.Counts[types.KindLocation],
				report.Counts[types.KindLabel], report.Counts[types.KindHome],
				report.Counts[types.KindPolicy], report.Assets)
			for _, w := range report.Warnings {
				fmt.Fprintf(os.Stderr, "warning (%s): %s\n", w.Kind, w.Detail)
			}
		case types.StateCancelled:
			fmt.Fprintf(os.Stderr, "%s cancelled; nothing was changed\n", verb)
		default:
			fmt.Fprintf(os.Stderr, "%s failed: %s\n", verb, report.Error)
		}
	}

	switch report.State {
	case types.StateCompleted:
		return
	case types.StateCancelled:
		os.Exit(exitUserError)
	default:
		os.Exit(exitCodeFor(report.Err))
	}
}

// exitCodeFor maps a run error to an exit code: unusable inputs are user
// errors, everything else is a system error.
func exitCodeFor(err error) int {
	if errors.Is(err, types.ErrSourceUnavailable) ||
		errors.Is(err, types.ErrMalformedArchive) ||
		errors.Is(err, types.ErrPageSizeInvalid) {
		return exitUserError
	}
	return exitSysError
}

// parseSelection builds the entity selection from the shared flags; all
// false selects everything.
func parseSelection(items, locations, labels bool) types.Selection {
	return types.Selection{Items: items, Locations: locations, Labels: labels}
}
