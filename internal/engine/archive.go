package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/boxport/internal/archive"
	"github.com/mesh-intelligence/boxport/internal/dest"
	"github.com/mesh-intelligence/boxport/internal/paths"
	"github.com/mesh-intelligence/boxport/internal/resolve"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// ExportRequest names an export run: a destination-format store streamed
// into a portable archive.
type ExportRequest struct {
	StorePath   string
	ArchivePath string
	Selection   types.Selection
	Options     types.Options
}

// ImportRequest names an import run: an archive materialized into a fresh
// destination store.
type ImportRequest struct {
	ArchivePath string
	DestPath    string
	Selection   types.Selection
	Options     types.Options
}

// ExportArchive starts an asynchronous export run.
func (e *Engine) ExportArchive(ctx context.Context, req ExportRequest) (*Run, error) {
	r, runCtx, err := e.begin(ctx, req.StorePath, req.ArchivePath, req.Options)
	if err != nil {
		return nil, err
	}
	pair := req.StorePath + "\x00" + req.ArchivePath
	go func() {
		report := e.export(runCtx, r, req)
		e.finish(r, pair, report)
	}()
	return r, nil
}

// ImportArchive starts an asynchronous import run.
func (e *Engine) ImportArchive(ctx context.Context, req ImportRequest) (*Run, error) {
	r, runCtx, err := e.begin(ctx, req.ArchivePath, req.DestPath, req.Options)
	if err != nil {
		return nil, err
	}
	pair := req.ArchivePath + "\x00" + req.DestPath
	go func() {
		report := e.importArchive(runCtx, r, req)
		e.finish(r, pair, report)
	}()
	return r, nil
}

func (e *Engine) export(ctx context.Context, r *Run, req ExportRequest) *types.Report {
	report := &types.Report{
		Counts: make(map[types.EntityKind]int64),
		Pairs:  make(map[types.Relationship]int64),
	}
	sel := req.Selection.Normalize()

	r.advance(types.StateDetecting)
	st, err := dest.Open(req.StorePath)
	if err != nil {
		return r.fail(report, err)
	}
	defer st.Close()

	enc, err := archive.NewEncoder(req.ArchivePath)
	if err != nil {
		return r.fail(report, err)
	}
	closed := false
	defer func() {
		if !closed {
			enc.Abort()
		}
	}()

	pageSize := int64(req.Options.EffectivePageSize())
	assetRefs := make(map[string]bool)
	var assetOrder []string

	type kindPlan struct {
		kind     types.EntityKind
		selected bool
	}
	plan := []kindPlan{
		{types.KindLabel, sel.Labels},
		{types.KindLocation, sel.Locations},
		{types.KindPolicy, true},
		{types.KindHome, true},
		{types.KindItem, sel.Items},
	}

	for _, p := range plan {
		if !p.selected {
			continue
		}
		total, err := st.Count(ctx, p.kind)
		if err != nil {
			return r.fail(report, err)
		}
		var offset int64
		for {
			if err := ctx.Err(); err != nil {
				return r.fail(report, err)
			}
			r.advance(types.StateReading)

			var n int
			switch p.kind {
			case types.KindLabel:
				page, err := st.ReadLabels(ctx, offset, pageSize)
				if err != nil {
					return r.fail(report, err)
				}
				if err := enc.WriteLabels(page); err != nil {
					return r.fail(report, err)
				}
				n = len(page)
			case types.KindLocation:
				page, err := st.ReadLocations(ctx, offset, pageSize)
				if err != nil {
					return r.fail(report, err)
				}
				if err := enc.WriteLocations(page); err != nil {
					return r.fail(report, err)
				}
				n = len(page)
			case types.KindPolicy:
				page, err := st.ReadPolicies(ctx, offset, pageSize)
				if err != nil {
					return r.fail(report, err)
				}
				if err := enc.WritePolicies(page); err != nil {
					return r.fail(report, err)
				}
				n = len(page)
			case types.KindHome:
				page, err := st.ReadHomes(ctx, offset, pageSize)
				if err != nil {
					return r.fail(report, err)
				}
				if err := enc.WriteHomes(page); err != nil {
					return r.fail(report, err)
				}
				n = len(page)
			case types.KindItem:
				page, err := st.ReadItems(ctx, offset, pageSize)
				if err != nil {
					return r.fail(report, err)
				}
				if !sel.Locations {
					for i := range page {
						page[i].LocationID = nil
					}
				}
				for _, item := range page {
					for _, ref := range item.AssetRefs() {
						if !assetRefs[ref] {
							assetRefs[ref] = true
							assetOrder = append(assetOrder, ref)
						}
					}
				}
				if err := enc.WriteItems(page); err != nil {
					return r.fail(report, err)
				}
				n = len(page)
			}
			if n == 0 {
				break
			}
			offset += int64(n)
			report.Counts[p.kind] += int64(n)
			r.advance(types.StateWriting)
			r.emit(types.Progress{Phase: types.PhaseWriting, Kind: p.kind, Processed: offset, Total: total})
			if int64(n) < pageSize {
				break
			}
		}
	}

	if sel.Items && sel.Labels {
		pairs, err := st.ReadPairs(ctx, types.RelItemLabels)
		if err != nil {
			return r.fail(report, err)
		}
		if err := enc.WritePairs(types.RelItemLabels, pairs); err != nil {
			return r.fail(report, err)
		}
		report.Pairs[types.RelItemLabels] = int64(len(pairs))
	}
	pairs, err := st.ReadPairs(ctx, types.RelHomePolicies)
	if err != nil {
		return r.fail(report, err)
	}
	if err := enc.WritePairs(types.RelHomePolicies, pairs); err != nil {
		return r.fail(report, err)
	}
	report.Pairs[types.RelHomePolicies] = int64(len(pairs))

	// Assets go in after the tables. References without a backing file are
	// skipped; the rows keep the reference strings regardless.
	assetDir := paths.AssetDir(req.StorePath)
	for _, ref := range assetOrder {
		if err := ctx.Err(); err != nil {
			return r.fail(report, err)
		}
		srcPath := filepath.Join(assetDir, filepath.FromSlash(ref))
		if _, err := os.Stat(srcPath); err != nil {
			continue
		}
		if err := enc.WriteAssetFile(ref, srcPath); err != nil {
			return r.fail(report, err)
		}
		report.Assets++
	}

	if err := enc.Close(); err != nil {
		return r.fail(report, err)
	}
	closed = true

	r.setState(types.StateCompleted)
	return report
}

func (e *Engine) importArchive(ctx context.Context, r *Run, req ImportRequest) *types.Report {
	report := &types.Report{
		Counts: make(map[types.EntityKind]int64),
		Pairs:  make(map[types.Relationship]int64),
	}

	// The whole graph is materialized: archives are bounded by what a
	// single household exports, and import needs every table before any
	// reference can be remapped.
	r.advance(types.StateReading)
	graph, err := archive.Decode(ctx, req.ArchivePath, "")
	if err != nil {
		return r.fail(report, err)
	}
	graph = req.Selection.Apply(graph)

	r.advance(types.StateTransform)
	remapped, warnings := resolve.RemapGraph(graph)
	report.Warnings = warnings
	if req.Options.StrictReferences {
		if n := countDangling(warnings); n > 0 {
			return r.fail(report, fmt.Errorf("%w: %d dangling references", types.ErrValidationMismatch, n))
		}
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

	r.advance(types.StateWriting)
	pageSize := req.Options.EffectivePageSize()
	for _, kind := range types.KindsInDependencyOrder {
		written, err := writeGraphKind(ctx, r, dst, remapped, kind, pageSize)
		if err != nil {
			return r.fail(report, err)
		}
		report.Counts[kind] = written
	}
	for _, rel := range types.Relationships {
		pairs := remapped.Pairs(rel)
		if err := dst.WritePairs(ctx, rel, pairs); err != nil {
			return r.fail(report, err)
		}
		report.Pairs[rel] = int64(len(pairs))
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

	if err := ctx.Err(); err != nil {
		return r.fail(report, err)
	}
	if err := dst.Promote(); err != nil {
		return r.fail(report, err)
	}
	discard = false

	// The store is live once promoted; a failed asset extraction degrades
	// to a warning rather than failing the committed run.
	extracted, err := archive.ExtractAssets(ctx, req.ArchivePath, paths.AssetDir(req.DestPath))
	report.Assets = extracted
	if err != nil {
		report.Warnings = append(report.Warnings, types.Warning{
			Kind: types.WarnFinalize, Detail: fmt.Sprintf("asset extraction: %v", err),
		})
	}

	r.setState(types.StateCompleted)
	return report
}

// writeGraphKind writes one kind of a materialized graph in page-sized
// transactional chunks, checking cancellation between pages.
func writeGraphKind(ctx context.Context, r *Run, dst *dest.Store, g *types.Graph, kind types.EntityKind, pageSize int) (int64, error) {
	write := func(records any, n int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := dst.WritePage(ctx, kind, records); err != nil {
			return err
		}
		r.emit(types.Progress{Phase: types.PhaseWriting, Kind: kind, Processed: int64(n), Total: g.Count(kind)})
		return nil
	}

	switch kind {
	case types.KindLabel:
		for lo := 0; lo < len(g.Labels); lo += pageSize {
			hi := min(lo+pageSize, len(g.Labels))
			if err := write(g.Labels[lo:hi], hi); err != nil {
				return int64(lo), err
			}
		}
		return int64(len(g.Labels)), nil
	case types.KindLocation:
		for lo := 0; lo < len(g.Locations); lo += pageSize {
			hi := min(lo+pageSize, len(g.Locations))
			if err := write(g.Locations[lo:hi], hi); err != nil {
				return int64(lo), err
			}
		}
		return int64(len(g.Locations)), nil
	case types.KindPolicy:
		for lo := 0; lo < len(g.Policies); lo += pageSize {
			hi := min(lo+pageSize, len(g.Policies))
			if err := write(g.Policies[lo:hi], hi); err != nil {
				return int64(lo), err
			}
		}
		return int64(len(g.Policies)), nil
	case types.KindHome:
		for lo := 0; lo < len(g.Homes); lo += pageSize {
			hi := min(lo+pageSize, len(g.Homes))
			if err := write(g.Homes[lo:hi], hi); err != nil {
				return int64(lo), err
			}
		}
		return int64(len(g.Homes)), nil
	default:
		for lo := 0; lo < len(g.Items); lo += pageSize {
			hi := min(lo+pageSize, len(g.Items))
			if err := write(g.Items[lo:hi], hi); err != nil {
				return int64(lo), err
			}
		}
		return int64(len(g.Items)), nil
	}
}
