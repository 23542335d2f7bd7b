/*
Package sqlite provides a SQLite-backed implementation of reserving.RunStore.

PURPOSE:
  Keeps every calculation run with its LIC summary and validation findings,
  so the next valuation year can read its prior-period summary without a
  workbook. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  reserving.RunStore: Run headers, summaries, findings

WRITE-ONCE ENFORCEMENT:
  - A run, its summary rows and its findings are inserted in one transaction
  - No UPDATE statements on lic_summary or findings
  - A re-run is a new run with a new ID

KEY TABLES:
  runs:        One row per calculation (valuation year, status, source)
  lic_summary: Summary rows per (run, LOB, AY); decimals stored as TEXT
  findings:    Validation findings per run, in report order

INDEXES:
  - idx_runs_year_created: Prior-period lookup (hot path)
  - idx_findings_run: Findings per run

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/lic.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - reserving/store.go: Interface definition
  - reserving/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/reserving"
)

// Fixed-width so created_at orders lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements reserving.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		valuation_year INTEGER NOT NULL,
		horizon INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		source TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_year_created
		ON runs(valuation_year, created_at DESC);

	-- Summary rows are written once with their run
	CREATE TABLE IF NOT EXISTS lic_summary (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		lob TEXT NOT NULL,
		ay INTEGER NOT NULL,
		case_reserve TEXT NOT NULL,
		ibnr TEXT NOT NULL,
		ra TEXT NOT NULL,
		bel TEXT NOT NULL,
		lic_discounted TEXT NOT NULL,
		PRIMARY KEY (run_id, lob, ay)
	);

	CREATE TABLE IF NOT EXISTS findings (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		check_name TEXT NOT NULL,
		lob TEXT,
		ay INTEGER,
		observed TEXT,
		observed_max TEXT,
		lower_bound TEXT,
		upper_bound TEXT,
		passed BOOLEAN NOT NULL,
		severity TEXT NOT NULL,
		message TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run
		ON findings(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun inserts the run header, its summary rows and its findings in one
// transaction. Nothing is kept when any insert fails.
func (s *Store) SaveRun(ctx context.Context, run reserving.Run, summary []reserving.SummaryRow, findings []reserving.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO runs (id, valuation_year, horizon, status, error, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.ValuationYear, run.Horizon, string(run.Status),
		nullString(run.Error), nullString(run.Source),
		run.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("run %s already saved", run.ID)
		}
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, r := range summary {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO lic_summary (run_id, lob, ay, case_reserve, ibnr, ra, bel, lic_discounted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, string(r.LOB), r.AY,
			r.CaseReserve.String(), r.IBNR.String(), r.RA.String(),
			r.BEL.String(), r.LICDiscounted.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to save summary row %s/%d: %w", r.LOB, r.AY, err)
		}
	}

	if err := insertFindings(ctx, sqlTx, run.ID, 0, findings); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// GetRun retrieves a run header by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*reserving.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, valuation_year, horizon, status, error, source, created_at FROM runs WHERE id = ?",
		id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", reserving.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]reserving.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, valuation_year, horizon, status, error, source, created_at FROM runs ORDER BY created_at DESC, rowid DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []reserving.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest completed or flagged run for a valuation year.
func (s *Store) LatestRun(ctx context.Context, valuationYear int) (*reserving.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, valuation_year, horizon, status, error, source, created_at
		FROM runs
		WHERE valuation_year = ? AND status != ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, valuationYear, string(reserving.RunFailed))

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no run for valuation year %d", reserving.ErrRunNotFound, valuationYear)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (reserving.Run, error) {
	var run reserving.Run
	var status, createdAt string
	var runErr, source sql.NullString

	if err := sc.Scan(&run.ID, &run.ValuationYear, &run.Horizon, &status, &runErr, &source, &createdAt); err != nil {
		return run, err
	}
	run.Status = reserving.RunStatus(status)
	run.Error = runErr.String
	run.Source = source.String
	run.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return run, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// LoadSummary returns a run's summary rows ordered by LOB, AY.
func (s *Store) LoadSummary(ctx context.Context, runID string) ([]reserving.SummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lob, ay, case_reserve, ibnr, ra, bel, lic_discounted
		FROM lic_summary WHERE run_id = ?
		ORDER BY lob, ay
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []reserving.SummaryRow
	for rows.Next() {
		var r reserving.SummaryRow
		var lob, caseReserve, ibnr, ra, bel, lic string
		if err := rows.Scan(&lob, &r.AY, &caseReserve, &ibnr, &ra, &bel, &lic); err != nil {
			return nil, err
		}
		r.LOB = reserving.LOB(lob)
		if r.CaseReserve, err = decimal.NewFromString(caseReserve); err != nil {
			return nil, fmt.Errorf("corrupt case_reserve for %s/%d: %w", lob, r.AY, err)
		}
		if r.IBNR, err = decimal.NewFromString(ibnr); err != nil {
			return nil, fmt.Errorf("corrupt ibnr for %s/%d: %w", lob, r.AY, err)
		}
		if r.RA, err = decimal.NewFromString(ra); err != nil {
			return nil, fmt.Errorf("corrupt ra for %s/%d: %w", lob, r.AY, err)
		}
		if r.BEL, err = decimal.NewFromString(bel); err != nil {
			return nil, fmt.Errorf("corrupt bel for %s/%d: %w", lob, r.AY, err)
		}
		if r.LICDiscounted, err = decimal.NewFromString(lic); err != nil {
			return nil, fmt.Errorf("corrupt lic_discounted for %s/%d: %w", lob, r.AY, err)
		}
		summary = append(summary, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// SQLite orders TEXT by byte value; keep the engine's ordering.
	reserving.SortSummary(summary)
	return summary, nil
}

// =============================================================================
// FINDINGS
// =============================================================================

// SaveFindings appends findings to an existing run, keeping their order.
func (s *Store) SaveFindings(ctx context.Context, runID string, findings []reserving.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var next int
	if err := sqlTx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM findings WHERE run_id = ?", runID,
	).Scan(&next); err != nil {
		return err
	}

	if err := insertFindings(ctx, sqlTx, runID, next, findings); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// insertFindings writes findings with seq numbers starting at first.
func insertFindings(ctx context.Context, tx *sql.Tx, runID string, first int, findings []reserving.Finding) error {
	for i, f := range findings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO findings
			(run_id, seq, check_name, lob, ay, observed, observed_max, lower_bound, upper_bound, passed, severity, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, first+i, f.Check, nullString(string(f.LOB)), nullInt(f.AY),
			nullDecimal(f.Observed), nullDecimal(f.ObservedMax),
			nullDecimal(f.Lower), nullDecimal(f.Upper),
			f.Passed, string(f.Severity), f.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to save finding %s: %w", f.Check, err)
		}
	}
	return nil
}

// LoadFindings returns a run's findings in saved order.
func (s *Store) LoadFindings(ctx context.Context, runID string) ([]reserving.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT check_name, lob, ay, observed, observed_max, lower_bound, upper_bound, passed, severity, message
		FROM findings WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	findings := []reserving.Finding{}
	for rows.Next() {
		var f reserving.Finding
		var lob, observed, observedMax, lower, upper, message sql.NullString
		var ay sql.NullInt64
		var severity string
		if err := rows.Scan(&f.Check, &lob, &ay, &observed, &observedMax, &lower, &upper, &f.Passed, &severity, &message); err != nil {
			return nil, err
		}
		f.LOB = reserving.LOB(lob.String)
		f.AY = int(ay.Int64)
		f.Severity = reserving.Severity(severity)
		f.Message = message.String
		for _, p := range []struct {
			src sql.NullString
			dst *decimal.NullDecimal
		}{{observed, &f.Observed}, {observedMax, &f.ObservedMax}, {lower, &f.Lower}, {upper, &f.Upper}} {
			if *p.dst, err = parseNullDecimal(p.src); err != nil {
				return nil, fmt.Errorf("corrupt finding %s: %w", f.Check, err)
			}
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"findings", "lic_summary", "runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// requireRun must be called with s.mu held.
func (s *Store) requireRun(ctx context.Context, runID string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs WHERE id = ?", runID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", reserving.ErrRunNotFound, runID)
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return reserving.Null(d), nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
