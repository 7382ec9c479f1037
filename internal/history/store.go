// Package history is the append-only store of past closings. Each
// run's workbook is written to the reports directory and indexed by a
// row in the closings table, keyed by period label and version.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fechamento/internal/core"

	_ "modernc.org/sqlite"
)

// Sync states of a history row. Rows are otherwise immutable.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

var ErrNotFound = errors.New("closing not found")

// Entry is a full history row, superset of core.HistoryEntry.
type Entry struct {
	core.HistoryEntry
	GeneratedAt   time.Time
	Opening       core.Money
	Inflow        core.Money
	Outflow       core.Money
	Net           core.Money
	Closing       core.Money
	MovementCount int
	SkippedRows   int
	SyncStatus    string
}

type Store struct {
	db         *sql.DB
	reportsDir string
}

func NewStore(dbPath, reportsDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, reportsDir: reportsDir}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveClosing writes the artifact to the reports directory and
// appends the index row. Re-running a period label does not overwrite
// anything: the new row gets version = max(version)+1 and its own
// artifact file.
func (s *Store) SaveClosing(ctx context.Context, r *core.ClosingReport, artifact []byte) (core.HistoryEntry, error) {
	var entry core.HistoryEntry
	if err := r.Validate(); err != nil {
		return entry, err
	}

	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM closings WHERE period_label = ?`,
		r.PeriodLabel,
	).Scan(&version)
	if err != nil {
		return entry, fmt.Errorf("next version for %s: %w", r.PeriodLabel, err)
	}

	path := filepath.Join(s.reportsDir, artifactName(r.PeriodLabel, version))
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		return entry, fmt.Errorf("write artifact %s: %w", path, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO closings (
			period_label, version, artifact_path, generated_at,
			opening_cents, inflow_cents, outflow_cents, net_cents, closing_cents,
			movement_count, skipped_rows, sync_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PeriodLabel, version, path, r.GeneratedAt.UTC(),
		r.Summary.Opening.Cents, r.Summary.Inflow.Cents, r.Summary.Outflow.Cents,
		r.Summary.Net.Cents, r.Summary.Closing.Cents,
		len(r.Movements), r.SkippedRows, SyncPending,
	)
	if err != nil {
		// The index row is the source of truth; drop the orphan file.
		_ = os.Remove(path)
		return entry, fmt.Errorf("insert closing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("closing id: %w", err)
	}

	entry = core.HistoryEntry{
		ID:          id,
		PeriodLabel: r.PeriodLabel,
		Version:     version,
		Path:        path,
		CreatedAt:   time.Now().UTC(),
	}

	slog.InfoContext(ctx, "Closing persisted to history",
		"id", id, "period", r.PeriodLabel, "version", version, "path", path)

	return entry, nil
}

// List returns every history row, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM closings ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list closings: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Get returns one history row by id.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM closings WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get closing %d: %w", id, err)
	}
	return e, nil
}

// ReadArtifact loads the workbook bytes for one history row and
// returns them with a download filename.
func (s *Store) ReadArtifact(ctx context.Context, id int64) ([]byte, string, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact %s: %w", e.Path, err)
	}
	return data, filepath.Base(e.Path), nil
}

// PendingSync returns rows not yet uploaded to the archive, oldest
// first, capped at limit.
func (s *Store) PendingSync(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM closings WHERE sync_status = ? ORDER BY id ASC LIMIT ?`,
		SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync closings: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	if err := s.setSyncStatus(ctx, id, SyncDone, true); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Closing marked as synced", "id", id)
	return nil
}

func (s *Store) MarkSyncError(ctx context.Context, id int64) error {
	if err := s.setSyncStatus(ctx, id, SyncError, false); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Closing marked with sync error", "id", id)
	return nil
}

func (s *Store) setSyncStatus(ctx context.Context, id int64, status string, stamp bool) error {
	var err error
	if stamp {
		_, err = s.db.ExecContext(ctx,
			`UPDATE closings SET sync_status = ?, synced_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE closings SET sync_status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("set sync status %s on %d: %w", status, id, err)
	}
	return nil
}

const selectColumns = `SELECT id, period_label, version, artifact_path, generated_at,
	opening_cents, inflow_cents, outflow_cents, net_cents, closing_cents,
	movement_count, skipped_rows, sync_status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var e Entry
	err := r.Scan(
		&e.ID, &e.PeriodLabel, &e.Version, &e.Path, &e.GeneratedAt,
		&e.Opening.Cents, &e.Inflow.Cents, &e.Outflow.Cents, &e.Net.Cents, &e.Closing.Cents,
		&e.MovementCount, &e.SkippedRows, &e.SyncStatus, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan closing: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closings: %w", err)
	}
	return out, nil
}

// artifactName builds a filesystem-safe workbook name like
// "fechamento-2024-05-v2.xlsx".
func artifactName(periodLabel string, version int64) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, periodLabel)
	return fmt.Sprintf("fechamento-%s-v%d.xlsx", slug, version)
}
