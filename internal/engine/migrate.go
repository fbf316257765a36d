package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/boxport/internal/dest"
	"github.com/mesh-intelligence/boxport/internal/paths"
	"github.com/mesh-intelligence/boxport/internal/resolve"
	"github.com/mesh-intelligence/boxport/internal/source"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// MigrateRequest names the endpoints of a migration run.
type MigrateRequest struct {
	SourcePath string
	DestPath   string
	Options    types.Options
}

// Migrate starts an asynchronous migration run. The returned Run exposes the
// progress stream and Wait; the engine's Cancel stops it between pages. A
// second run on the same source/destination pair fails with ErrRunInProgress.
func (e *Engine) Migrate(ctx context.Context, req MigrateRequest) (*Run, error) {
	r, runCtx, err := e.begin(ctx, req.SourcePath, req.DestPath, req.Options)
	if err != nil {
		return nil, err
	}
	pair := req.SourcePath + "\x00" + req.DestPath
	go func() {
		report := e.migrate(runCtx, r, req)
		e.finish(r, pair, report)
	}()
	return r, nil
}

// fail resolves a run error into the terminal state: cancellation becomes
// Cancelled, everything else Failed with the error recorded.
func (r *Run) fail(report *types.Report, err error) *types.Report {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.setState(types.StateCancelled)
		return report
	}
	r.setState(types.StateFailed)
	report.Err = err
	report.Error = err.Error()
	return report
}

func (e *Engine) migrate(ctx context.Context, r *Run, req MigrateRequest) *types.Report {
	report := &types.Report{
		Counts: make(map[types.EntityKind]int64),
		Pairs:  make(map[types.Relationship]int64),
	}

	r.advance(types.StateDetecting)

	// Fresh install: no file at the source path means there is nothing to
	// migrate. A file that exists but is not a legacy store still fails.
	if _, err := os.Stat(req.SourcePath); err != nil {
		if os.IsNotExist(err) {
			r.setState(types.StateCompleted)
			return report
		}
		return r.fail(report, fmt.Errorf("%w: %s: %v", types.ErrSourceUnavailable, req.SourcePath, err))
	}

	src, err := source.Open(req.SourcePath)
	if err != nil {
		return r.fail(report, err)
	}
	defer src.Close()

	totals := make(map[types.EntityKind]int64)
	var total int64
	for _, kind := range types.KindsInDependencyOrder {
		n, err := src.Count(ctx, kind)
		if err != nil {
			return r.fail(report, err)
		}
		totals[kind] = n
		total += n
	}
	r.emit(types.Progress{Phase: types.PhaseDetecting, Total: total})

	// Relationship layout is probed per relationship; join rows are small
	// compared to entities and are extracted up front, raw.
	rawPairs := make(map[types.Relationship][]types.Pair)
	for _, rel := range types.Relationships {
		layout, err := resolve.DetectLayout(ctx, src, rel)
		if err != nil {
			return r.fail(report, err)
		}
		pairs, err := resolve.ExtractPairs(ctx, src, rel, layout)
		if err != nil {
			return r.fail(report, err)
		}
		rawPairs[rel] = pairs
	}

	dst, err := dest.Create(req.DestPath)
	if err != nil {
		return r.fail(report, err)
	}
	discard := true
	defer func() {
		if discard {
			dst.Discard()
		}
	}()

	res := resolve.NewResolver()
	pageSize := int64(req.Options.EffectivePageSize())
	assetRefs := make(map[string]bool)
	var assetOrder []string

	for _, kind := range types.KindsInDependencyOrder {
		var offset int64
		for {
			if e.pageHook != nil {
				e.pageHook()
			}
			// Cancellation is cooperative; the page boundary is the
			// checkpoint.
			if err := ctx.Err(); err != nil {
				return r.fail(report, err)
			}

			r.advance(types.StateReading)
			page, more, err := src.ReadPage(ctx, kind, offset, pageSize)
			if err != nil {
				return r.fail(report, err)
			}
			if len(page) == 0 {
				break
			}
			offset += int64(len(page))
			r.emit(types.Progress{Phase: types.PhaseReading, Kind: kind, Processed: offset, Total: totals[kind]})

			r.advance(types.StateTransform)
			records := convertPage(res, kind, page)
			if kind == types.KindItem {
				for _, item := range records.([]types.Item) {
					for _, ref := range item.AssetRefs() {
						if !assetRefs[ref] {
							assetRefs[ref] = true
							assetOrder = append(assetOrder, ref)
						}
					}
				}
			}
			r.emit(types.Progress{Phase: types.PhaseTransforming, Kind: kind, Processed: offset, Total: totals[kind]})

			r.advance(types.StateWriting)
			n, err := dst.WritePage(ctx, kind, records)
			if err != nil {
				return r.fail(report, err)
			}
			report.Counts[kind] += int64(n)
			r.emit(types.Progress{Phase: types.PhaseWriting, Kind: kind, Processed: offset, Total: totals[kind]})

			if !more {
				break
			}
		}
	}

	// Both endpoint kinds of every relationship are committed by now.
	for _, rel := range types.Relationships {
		mapped := res.RemapPairs(rel, rawPairs[rel])
		if err := dst.WritePairs(ctx, rel, mapped); err != nil {
			return r.fail(report, err)
		}
		report.Pairs[rel] = int64(len(mapped))
	}
	if err := dst.BackfillLocationHomes(ctx, res.LocationHomeRefs()); err != nil {
		return r.fail(report, err)
	}

	report.Warnings = res.Warnings()
	if req.Options.StrictReferences {
		if n := countDangling(report.Warnings); n > 0 {
			return r.fail(report, fmt.Errorf("%w: %d dangling references", types.ErrValidationMismatch, n))
		}
	}

	r.advance(types.StateValidating)
	want := make(map[types.EntityKind]int64, len(report.Counts))
	for kind, n := range report.Counts {
		want[kind] = n
	}
	want[types.KindItem] += e.validateSkew
	if err := dst.Validate(ctx, want, report.Pairs); err != nil {
		return r.fail(report, err)
	}
	r.emit(types.Progress{Phase: types.PhaseValidating, Processed: total, Total: total})

	// Last checkpoint before anything becomes user-visible.
	if err := ctx.Err(); err != nil {
		return r.fail(report, err)
	}
	if err := dst.Promote(); err != nil {
		return r.fail(report, err)
	}
	discard = false

	// The destination is live once promoted. Trouble with the remaining
	// housekeeping degrades to warnings; the run's data is already
	// committed and must not be reported as discarded.
	copied, err := copyAssets(assetOrder, paths.AssetDir(req.SourcePath), paths.AssetDir(req.DestPath))
	report.Assets = copied
	if err != nil {
		report.Warnings = append(report.Warnings, types.Warning{
			Kind: types.WarnFinalize, Detail: fmt.Sprintf("asset copy: %v", err),
		})
	}
	if err := backupSource(req.SourcePath, req.Options.BackupDir, r.ID); err != nil {
		report.Warnings = append(report.Warnings, types.Warning{
			Kind: types.WarnFinalize, Detail: fmt.Sprintf("source backup: %v", err),
		})
	}
	if err := paths.WriteMarker(req.DestPath, dest.SchemaVersion); err != nil {
		report.Warnings = append(report.Warnings, types.Warning{
			Kind: types.WarnFinalize, Detail: fmt.Sprintf("completion marker: %v", err),
		})
	}

	r.setState(types.StateCompleted)
	return report
}

// convertPage runs one raw page through the resolver, keeping the slice
// typed for the destination writer.
func convertPage(res *resolve.Resolver, kind types.EntityKind, page []source.RawRow) any {
	switch kind {
	case types.KindLabel:
		out := make([]types.Label, 0, len(page))
		for _, row := range page {
			out = append(out, res.Label(row))
		}
		return out
	case types.KindLocation:
		out := make([]types.Location, 0, len(page))
		for _, row := range page {
			out = append(out, res.Location(row))
		}
		return out
	case types.KindPolicy:
		out := make([]types.InsurancePolicy, 0, len(page))
		for _, row := range page {
			out = append(out, res.Policy(row))
		}
		return out
	case types.KindHome:
		out := make([]types.Home, 0, len(page))
		for _, row := range page {
			out = append(out, res.Home(row))
		}
		return out
	default:
		out := make([]types.Item, 0, len(page))
		for _, row := range page {
			out = append(out, res.Item(row))
		}
		return out
	}
}

func countDangling(warnings []types.Warning) int {
	n := 0
	for _, w := range warnings {
		if w.Kind == types.WarnDanglingReference {
			n++
		}
	}
	return n
}

// copyAssets carries referenced asset files from the source asset directory
// to the destination's. References without a backing file are skipped; they
// may be URLs or already-lost files, and rows keep them either way.
func copyAssets(refs []string, srcDir, dstDir string) (int64, error) {
	var copied int64
	for _, ref := range refs {
		srcPath := filepath.Join(srcDir, filepath.FromSlash(ref))
		if _, err := os.Stat(srcPath); err != nil {
			continue
		}
		if srcDir == dstDir {
			copied++
			continue
		}
		dstPath := filepath.Join(dstDir, filepath.FromSlash(ref))
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return copied, fmt.Errorf("creating asset directory: %w", err)
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening asset: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating asset copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying asset: %w", err)
	}
	return out.Close()
}

// backupSource moves the migrated source store into the backup directory.
// The source is never deleted; a name collision gets the run ID appended.
func backupSource(srcPath, backupDir, runID string) error {
	if backupDir == "" {
		dir, err := paths.ResolveBackupDir("", "")
		if err != nil {
			return err
		}
		backupDir = dir
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	target := filepath.Join(backupDir, filepath.Base(srcPath))
	if _, err := os.Stat(target); err == nil {
		target = target + "." + runID
	}
	if err := os.Rename(srcPath, target); err != nil {
		return fmt.Errorf("moving source to backup: %w", err)
	}
	return nil
}
