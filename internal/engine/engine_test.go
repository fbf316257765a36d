package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boxport/internal/dest"
	"github.com/mesh-intelligence/boxport/internal/paths"
	"github.com/mesh-intelligence/boxport/internal/source/sourcetest"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

// goldenFixture builds the reference dataset: two labels, one location, one
// home, one policy, three items. Item A carries Fragile, item B carries both
// labels, item C carries none.
func goldenFixture(t *testing.T) *sourcetest.DB {
	t.Helper()
	f := sourcetest.New(t, sourcetest.Options{
		ItemLabelJoinTable:  true,
		HomePolicyJoinTable: true,
	})
	f.AddHome(1, "Main", true)
	f.AddLocation(10, "Garage", 1)
	f.AddLabel(1, "Fragile", "🔖", sourcetest.LegacyColorBlob(1, 0, 0, 1))
	f.AddLabel(2, "Electronics", "", nil)
	f.AddPolicy(1, "Acme Mutual", nil)
	f.LinkHomePolicy(1, 1)
	f.AddItem(100, "A", map[string]any{"location_id": 10, "home_id": 1})
	f.AddItem(101, "B", map[string]any{"location_id": 10, "quantity": 2})
	f.AddItem(102, "C", nil)
	f.LinkItemLabel(100, 1)
	f.LinkItemLabel(101, 1)
	f.LinkItemLabel(101, 2)
	return f
}

func runMigration(t *testing.T, e *Engine, f *sourcetest.DB, opts types.Options) (*types.Report, string) {
	t.Helper()
	destPath := filepath.Join(t.TempDir(), "inventory.db")
	if opts.BackupDir == "" {
		opts.BackupDir = t.TempDir()
	}
	run, err := e.Migrate(context.Background(), MigrateRequest{
		SourcePath: f.Path,
		DestPath:   destPath,
		Options:    opts,
	})
	require.NoError(t, err)
	return run.Wait(), destPath
}

func TestMigrateGoldenScenario(t *testing.T) {
	f := goldenFixture(t)
	backupDir := t.TempDir()
	e := New()
	report, destPath := runMigration(t, e, f, types.Options{BackupDir: backupDir})

	require.Equal(t, types.StateCompleted, report.State, "error: %s", report.Error)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, int64(2), report.Counts[types.KindLabel])
	assert.Equal(t, int64(1), report.Counts[types.KindLocation])
	assert.Equal(t, int64(1), report.Counts[types.KindPolicy])
	assert.Equal(t, int64(1), report.Counts[types.KindHome])
	assert.Equal(t, int64(3), report.Counts[types.KindItem])
	assert.Equal(t, int64(3), report.Pairs[types.RelItemLabels])
	assert.Equal(t, int64(1), report.Pairs[types.RelHomePolicies])
	assert.NotEmpty(t, report.RunID)
	assert.Positive(t, report.Duration)

	// The staging file is gone, the destination is live, and the completion
	// marker sits next to it.
	_, err := os.Stat(destPath + ".staging")
	assert.True(t, os.IsNotExist(err))
	assert.True(t, paths.HasMarker(destPath, dest.SchemaVersion))

	// The source moved to the backup directory.
	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err), "source must move to backup")
	_, err = os.Stat(filepath.Join(backupDir, filepath.Base(f.Path)))
	require.NoError(t, err)

	ctx := context.Background()
	st, err := dest.Open(destPath)
	require.NoError(t, err)
	defer st.Close()

	labels, err := st.ReadLabels(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	byName := map[string]types.Label{}
	for _, l := range labels {
		byName[l.Name] = l
		assert.NotEqual(t, "1", l.ID, "identities must be regenerated")
		assert.NotEqual(t, "2", l.ID)
	}
	require.NotNil(t, byName["Fragile"].Color)
	assert.Equal(t, "#FF0000FF", *byName["Fragile"].Color)
	assert.Nil(t, byName["Electronics"].Color)

	locations, err := st.ReadLocations(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	require.NotNil(t, locations[0].HomeID, "location home must be back-filled")

	homes, err := st.ReadHomes(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, homes, 1)
	assert.Equal(t, *locations[0].HomeID, homes[0].ID)

	items, err := st.ReadItems(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	itemByTitle := map[string]types.Item{}
	for _, it := range items {
		itemByTitle[it.Title] = it
	}
	assert.EqualValues(t, 1, itemByTitle["A"].Quantity, "missing quantity defaults to one")
	assert.EqualValues(t, 2, itemByTitle["B"].Quantity)
	require.NotNil(t, itemByTitle["A"].LocationID)
	assert.Equal(t, locations[0].ID, *itemByTitle["A"].LocationID)
	assert.Nil(t, itemByTitle["C"].LocationID)

	pairs, err := st.ReadPairs(ctx, types.RelItemLabels)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Pair{
		{OwnerID: itemByTitle["A"].ID, MemberID: byName["Fragile"].ID},
		{OwnerID: itemByTitle["B"].ID, MemberID: byName["Fragile"].ID},
		{OwnerID: itemByTitle["B"].ID, MemberID: byName["Electronics"].ID},
	}, pairs)
}

// pairNames resolves a destination store's item-label pairs to (title, name)
// tuples so runs with different generated IDs can be compared.
func pairNames(t *testing.T, destPath string) map[[2]string]bool {
	t.Helper()
	ctx := context.Background()
	st, err := dest.Open(destPath)
	require.NoError(t, err)
	defer st.Close()

	items, err := st.ReadItems(ctx, 0, 100)
	require.NoError(t, err)
	labels, err := st.ReadLabels(ctx, 0, 100)
	require.NoError(t, err)
	itemTitle := map[string]string{}
	for _, it := range items {
		itemTitle[it.ID] = it.Title
	}
	labelName := map[string]string{}
	for _, l := range labels {
		labelName[l.ID] = l.Name
	}

	pairs, err := st.ReadPairs(ctx, types.RelItemLabels)
	require.NoError(t, err)
	out := make(map[[2]string]bool, len(pairs))
	for _, p := range pairs {
		out[[2]string{itemTitle[p.OwnerID], labelName[p.MemberID]}] = true
	}
	return out
}

func TestMigrateLayoutEquivalence(t *testing.T) {
	build := func(t *testing.T, opts sourcetest.Options) *sourcetest.DB {
		f := sourcetest.New(t, opts)
		f.AddHome(1, "Main", true)
		f.AddLabel(1, "Fragile", "", nil)
		f.AddLabel(2, "Electronics", "", nil)
		f.AddPolicy(1, "Acme Mutual", 1)
		if opts.ItemLabelJoinTable {
			f.AddItem(100, "A", nil)
			f.AddItem(101, "B", nil)
			f.LinkItemLabel(100, 1)
			f.LinkItemLabel(101, 2)
		} else {
			f.AddItem(100, "A", map[string]any{"label_id": 1})
			f.AddItem(101, "B", map[string]any{"label_id": 2})
		}
		if opts.HomePolicyJoinTable {
			f.LinkHomePolicy(1, 1)
		}
		return f
	}

	layoutA := build(t, sourcetest.Options{})
	layoutB := build(t, sourcetest.Options{ItemLabelJoinTable: true, HomePolicyJoinTable: true})

	e := New()
	reportA, destA := runMigration(t, e, layoutA, types.Options{})
	reportB, destB := runMigration(t, e, layoutB, types.Options{})
	require.Equal(t, types.StateCompleted, reportA.State, "error: %s", reportA.Error)
	require.Equal(t, types.StateCompleted, reportB.State, "error: %s", reportB.Error)

	assert.Equal(t, reportA.Pairs, reportB.Pairs)
	assert.Equal(t, pairNames(t, destA), pairNames(t, destB))
}

func TestMigrateDanglingReferenceDowngrades(t *testing.T) {
	f := sourcetest.New(t, sourcetest.Options{ItemLabelJoinTable: true, HomePolicyJoinTable: true})
	f.AddHome(1, "Main", true)
	f.AddLocation(10, "Garage", 1)
	f.AddItem(100, "Orphan", map[string]any{"location_id": 99})

	e := New()
	report, destPath := runMigration(t, e, f, types.Options{})
	require.Equal(t, types.StateCompleted, report.State, "error: %s", report.Error)
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, types.WarnDanglingReference, report.Warnings[0].Kind)

	st, err := dest.Open(destPath)
	require.NoError(t, err)
	defer st.Close()
	items, err := st.ReadItems(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].LocationID, "dangling reference becomes absent")
}

func TestMigrateStrictReferencesFails(t *testing.T) {
	f := sourcetest.New(t, sourcetest.Options{ItemLabelJoinTable: true, HomePolicyJoinTable: true})
	f.AddHome(1, "Main", true)
	f.AddItem(100, "Orphan", map[string]any{"location_id": 99})

	e := New()
	report, destPath := runMigration(t, e, f, types.Options{StrictReferences: true})
	require.Equal(t, types.StateFailed, report.State)
	assert.ErrorIs(t, report.Err, types.ErrValidationMismatch)

	// Failure leaves no destination and no staging file; the source stays.
	_, err := os.Stat(destPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(destPath + ".staging")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.Path)
	require.NoError(t, err, "failed run must leave the source untouched")
}

func TestMigrateValidationMismatchDiscardsStaging(t *testing.T) {
	f := goldenFixture(t)
	e := New()
	e.validateSkew = 1

	report, destPath := runMigration(t, e, f, types.Options{})
	require.Equal(t, types.StateFailed, report.State)
	assert.ErrorIs(t, report.Err, types.ErrValidationMismatch)

	_, err := os.Stat(destPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(destPath + ".staging")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.Path)
	require.NoError(t, err)
}

func TestMigrateCancelledBeforeStart(t *testing.T) {
	f := goldenFixture(t)
	destPath := filepath.Join(t.TempDir(), "inventory.db")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New()
	run, err := e.Migrate(ctx, MigrateRequest{
		SourcePath: f.Path,
		DestPath:   destPath,
		Options:    types.Options{BackupDir: t.TempDir()},
	})
	require.NoError(t, err)
	report := run.Wait()

	assert.Equal(t, types.StateCancelled, report.State)
	assert.Empty(t, report.Error)

	_, err = os.Stat(destPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(destPath + ".staging")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.Path)
	require.NoError(t, err, "cancelled run must leave the source untouched")
}

func TestCancelMidRunDiscardsStaging(t *testing.T) {
	f := goldenFixture(t)
	destPath := filepath.Join(t.TempDir(), "inventory.db")

	// The hook parks the run at its third page boundary (labels and
	// locations already staged) until Cancel has landed.
	reached := make(chan struct{})
	proceed := make(chan struct{})
	e := New()
	var calls int
	e.pageHook = func() {
		calls++
		if calls == 3 {
			close(reached)
			<-proceed
		}
	}

	run, err := e.Migrate(context.Background(), MigrateRequest{
		SourcePath: f.Path,
		DestPath:   destPath,
		Options:    types.Options{BackupDir: t.TempDir()},
	})
	require.NoError(t, err)

	<-reached
	require.NoError(t, e.Cancel(run.ID))
	close(proceed)
	report := run.Wait()

	assert.Equal(t, types.StateCancelled, report.State)
	assert.Empty(t, report.Error)

	// Partially staged work is discarded; nothing user-visible changed.
	_, err = os.Stat(destPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(destPath + ".staging")
	assert.True(t, os.IsNotExist(err))
	assert.False(t, paths.HasMarker(destPath, dest.SchemaVersion))
	_, err = os.Stat(f.Path)
	require.NoError(t, err, "cancelled run must leave the source untouched")
}

func TestMigrateRerunAfterRestoreMatches(t *testing.T) {
	f := goldenFixture(t)
	backupDir := t.TempDir()
	opts := types.Options{BackupDir: backupDir}

	e := New()
	first, destA := runMigration(t, e, f, opts)
	require.Equal(t, types.StateCompleted, first.State, "error: %s", first.Error)

	// Put the backed-up source store back and migrate again.
	require.NoError(t, os.Rename(filepath.Join(backupDir, filepath.Base(f.Path)), f.Path))
	second, destB := runMigration(t, e, f, opts)
	require.Equal(t, types.StateCompleted, second.State, "error: %s", second.Error)

	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, first.Pairs, second.Pairs)
	assert.Equal(t, pairNames(t, destA), pairNames(t, destB))
}

func TestMigrateBackupFailureCompletesWithWarning(t *testing.T) {
	f := goldenFixture(t)

	// A regular file where the backup directory should go makes the
	// post-promote backup step fail.
	blocked := filepath.Join(t.TempDir(), "backups")
	require.NoError(t, os.WriteFile(blocked, []byte("in the way"), 0o644))

	e := New()
	report, destPath := runMigration(t, e, f, types.Options{BackupDir: blocked})

	// The destination was already promoted, so the run completes and the
	// backup failure surfaces as a warning instead.
	require.Equal(t, types.StateCompleted, report.State, "error: %s", report.Error)
	_, err := os.Stat(destPath)
	require.NoError(t, err)

	var finalize bool
	for _, w := range report.Warnings {
		if w.Kind == types.WarnFinalize {
			finalize = true
		}
	}
	assert.True(t, finalize, "expected a finalize warning for the failed backup")

	_, err = os.Stat(f.Path)
	require.NoError(t, err, "source stays in place when the backup move fails")
}

func TestCancelUnknownRun(t *testing.T) {
	e := New()
	assert.ErrorIs(t, e.Cancel("no-such-run"), types.ErrRunNotFound)
}

func TestMigratePairLock(t *testing.T) {
	f := goldenFixture(t)
	destPath := filepath.Join(t.TempDir(), "inventory.db")
	pair := f.Path + "\x00" + destPath

	e := New()
	e.mu.Lock()
	e.locks[pair] = "holder"
	e.mu.Unlock()

	_, err := e.Migrate(context.Background(), MigrateRequest{
		SourcePath: f.Path,
		DestPath:   destPath,
		Options:    types.Options{BackupDir: t.TempDir()},
	})
	assert.ErrorIs(t, err, types.ErrRunInProgress)
}

func TestMigrateMissingSourceCompletesEmpty(t *testing.T) {
	destPath := filepath.Join(t.TempDir(), "inventory.db")

	e := New()
	run, err := e.Migrate(context.Background(), MigrateRequest{
		SourcePath: filepath.Join(t.TempDir(), "nope.sqlite"),
		DestPath:   destPath,
		Options:    types.Options{BackupDir: t.TempDir()},
	})
	require.NoError(t, err)
	report := run.Wait()

	// Fresh install: no legacy store means nothing to do, not a failure.
	assert.Equal(t, types.StateCompleted, report.State)
	assert.Empty(t, report.Error)
	assert.Empty(t, report.Counts)
	assert.Empty(t, report.Warnings)

	_, err = os.Stat(destPath)
	assert.True(t, os.IsNotExist(err), "no destination is produced")
	assert.False(t, paths.HasMarker(destPath, dest.SchemaVersion))
}

func TestMigrateUnrecognizedSourceFails(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "random.db")
	require.NoError(t, os.WriteFile(srcPath, []byte("not a database"), 0o644))

	e := New()
	run, err := e.Migrate(context.Background(), MigrateRequest{
		SourcePath: srcPath,
		DestPath:   filepath.Join(t.TempDir(), "inventory.db"),
		Options:    types.Options{BackupDir: t.TempDir()},
	})
	require.NoError(t, err)
	report := run.Wait()

	assert.Equal(t, types.StateFailed, report.State)
	assert.ErrorIs(t, report.Err, types.ErrSourceUnavailable)
}

func TestMigrateEmitsProgress(t *testing.T) {
	f := goldenFixture(t)
	destPath := filepath.Join(t.TempDir(), "inventory.db")

	e := New()
	run, err := e.Migrate(context.Background(), MigrateRequest{
		SourcePath: f.Path,
		DestPath:   destPath,
		Options:    types.Options{BackupDir: t.TempDir()},
	})
	require.NoError(t, err)

	var events []types.Progress
	for p := range run.Events() {
		events = append(events, p)
	}
	report := run.Wait()
	require.Equal(t, types.StateCompleted, report.State, "error: %s", report.Error)

	require.NotEmpty(t, events)
	assert.Equal(t, types.PhaseDetecting, events[0].Phase)
	var wrote bool
	for _, p := range events {
		if p.Phase == types.PhaseWriting && p.Kind == types.KindItem {
			wrote = true
			assert.EqualValues(t, 3, p.Total)
		}
	}
	assert.True(t, wrote, "expected a writing event for items")
	assert.Zero(t, report.DroppedEvents, "consumer kept up; nothing dropped")
}

func TestReportLookup(t *testing.T) {
	f := goldenFixture(t)
	e := New()
	report, _ := runMigration(t, e, f, types.Options{})
	require.Equal(t, types.StateCompleted, report.State)

	got, err := e.Report(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report, got)

	_, err = e.Report("unknown")
	assert.ErrorIs(t, err, types.ErrRunNotFound)
}
