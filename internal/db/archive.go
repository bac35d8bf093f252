// Package db is the optional SQLite archive of completed spins. It is an
// append-only audit trail; the in-memory history is never reloaded from it.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"liminal/internal/types"
)

var ErrArchiveClosed = errors.New("archive is closed")

// ============================================================================
// SPIN ARCHIVE
// ============================================================================

// Archive is safe for concurrent use. Close waits for in-flight queries.
type Archive struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *slog.Logger
}

// conn returns the open handle with the read lock held, or ErrArchiveClosed.
// Callers must call release when done.
func (a *Archive) conn() (*sql.DB, error) {
	if a == nil {
		return nil, ErrArchiveClosed
	}
	a.mu.RLock()
	if a.db == nil {
		a.mu.RUnlock()
		return nil, ErrArchiveClosed
	}
	return a.db, nil
}

func (a *Archive) release() { a.mu.RUnlock() }

// Open creates or upgrades the archive at path and returns it ready for use.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := openConn(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	logger.Info("archive ready", "path", path)
	return &Archive{db: conn, log: logger}, nil
}

func openConn(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	return conn, nil
}

// SchemaVersion reports the migration version of the archive at path.
func SchemaVersion(ctx context.Context, path string) (int, error) {
	conn, err := openConn(ctx, path)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := ensureSchemaMigrationsTable(ctx, conn); err != nil {
		return 0, err
	}
	return getCurrentVersion(ctx, conn)
}

// Rollback downgrades the archive at path to targetVersion and returns the
// version it started from. The hub must not be running against the file.
func Rollback(ctx context.Context, path string, targetVersion int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := openConn(ctx, path)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := ensureSchemaMigrationsTable(ctx, conn); err != nil {
		return 0, err
	}
	from, err := getCurrentVersion(ctx, conn)
	if err != nil {
		return 0, err
	}
	if err := RollbackMigration(ctx, conn, targetVersion, logger); err != nil {
		return from, err
	}
	return from, nil
}

// ============================================================================
// CRUD OPERATIONS
// ============================================================================

func (a *Archive) Save(ctx context.Context, rec types.SpinRecord) error {
	conn, err := a.conn()
	if err != nil {
		return err
	}
	defer a.release()

	options, err := msgpack.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `
		INSERT INTO spin_records (id, mode, options, result, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = conn.ExecContext(ctx, query,
		rec.ID,
		rec.Mode,
		options,
		rec.Result,
		rec.DurationMs,
		rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert spin %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]types.SpinRecord, error) {
	conn, err := a.conn()
	if err != nil {
		return nil, err
	}
	defer a.release()

	query := `
		SELECT id, mode, options, result, duration_ms, completed_at
		FROM spin_records
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.SpinRecord, 0, limit)
	for rows.Next() {
		var rec types.SpinRecord
		var options []byte
		var completedAt int64

		if err := rows.Scan(&rec.ID, &rec.Mode, &options, &rec.Result, &rec.DurationMs, &completedAt); err != nil {
			return nil, err
		}
		if err := msgpack.Unmarshal(options, &rec.Options); err != nil {
			a.log.Warn("undecodable options in archive", "spin", rec.ID, "error", err)
		}
		rec.Timestamp = time.UnixMilli(completedAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (a *Archive) Count(ctx context.Context) (int, error) {
	conn, err := a.conn()
	if err != nil {
		return 0, err
	}
	defer a.release()

	var n int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM spin_records`).Scan(&n)
	return n, err
}

// ResultCounts tallies archived results, optionally restricted to one mode.
func (a *Archive) ResultCounts(ctx context.Context, mode string) (map[string]int, error) {
	conn, err := a.conn()
	if err != nil {
		return nil, err
	}
	defer a.release()

	query := `SELECT result, COUNT(*) FROM spin_records GROUP BY result`
	args := []interface{}{}
	if mode != "" {
		query = `SELECT result, COUNT(*) FROM spin_records WHERE mode = ? GROUP BY result`
		args = append(args, mode)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var result string
		var n int
		if err := rows.Scan(&result, &n); err != nil {
			return nil, err
		}
		counts[result] = n
	}
	return counts, rows.Err()
}

func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
