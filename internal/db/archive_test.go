package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liminal/internal/types"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func record(i int, mode, result string, at time.Time) types.SpinRecord {
	return types.SpinRecord{
		ID:         fmt.Sprintf("spin-%02d", i),
		Timestamp:  at,
		Mode:       mode,
		Options:    []string{"a", "b", "c"},
		Result:     result,
		DurationMs: int64(1000 + i),
	}
}

func TestSaveAndRecent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Save(ctx, record(i, "work", "a", base.Add(time.Duration(i)*time.Second))))
	}

	got, err := a.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "spin-04", got[0].ID)
	assert.Equal(t, "spin-02", got[2].ID)
	assert.Equal(t, []string{"a", "b", "c"}, got[0].Options)
	assert.Equal(t, int64(1004), got[0].DurationMs)
	assert.True(t, base.Add(4*time.Second).Equal(got[0].Timestamp))

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSaveDuplicateID(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	rec := record(1, "", "a", time.Now())

	require.NoError(t, a.Save(ctx, rec))
	assert.Error(t, a.Save(ctx, rec))
}

func TestResultCounts(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, a.Save(ctx, record(1, "work", "a", now)))
	require.NoError(t, a.Save(ctx, record(2, "work", "a", now)))
	require.NoError(t, a.Save(ctx, record(3, "mood", "b", now)))

	all, err := a.ResultCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, all)

	work, err := a.ResultCounts(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2}, work)
}

func TestClosedArchive(t *testing.T) {
	a := openTestArchive(t)
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Save(context.Background(), record(1, "", "a", time.Now())), ErrArchiveClosed)
	_, err := a.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrArchiveClosed)
	assert.NoError(t, a.Close())

	var nilArchive *Archive
	assert.ErrorIs(t, nilArchive.Save(context.Background(), types.SpinRecord{}), ErrArchiveClosed)
}

func TestCloseWaitsForInFlightSaves(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- a.Save(ctx, record(i, "work", "a", now))
		}(i)
	}
	require.NoError(t, a.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrArchiveClosed)
		}
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	a, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx, record(1, "", "a", time.Now())))
	require.NoError(t, a.Close())

	b, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ============================================================================
// Migrations
// ============================================================================

func currentVersion(t *testing.T, conn *sql.DB) int {
	t.Helper()
	v, err := getCurrentVersion(context.Background(), conn)
	require.NoError(t, err)
	return v
}

func TestMigrationsAreIdempotentAndReversible(t *testing.T) {
	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	ctx := context.Background()
	log := slog.Default()

	require.NoError(t, RunMigrations(ctx, conn, log))
	require.NoError(t, RunMigrations(ctx, conn, log))
	assert.Equal(t, migrations[len(migrations)-1].Version, currentVersion(t, conn))

	require.NoError(t, RollbackMigration(ctx, conn, 0, log))
	assert.Equal(t, 0, currentVersion(t, conn))

	var name string
	err = conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name='spin_records'`).Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.Error(t, RollbackMigration(ctx, conn, 0, log))
}

func TestRollbackArchiveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	a, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	v, err := SchemaVersion(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	from, err := Rollback(ctx, path, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, from)

	v, err = SchemaVersion(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = Rollback(ctx, path, 1, nil)
	assert.Error(t, err)

	// Reopening migrates forward again.
	b, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	v, err = SchemaVersion(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
