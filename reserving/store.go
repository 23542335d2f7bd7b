/*
store.go - Persistence interface for calculation runs

PURPOSE:
  Defines the boundary between the engine and whatever keeps past runs.
  A run is written once with its summary and findings. Later runs read the
  latest summary of the previous valuation year as their prior period.

KEY INTERFACES:
  RunStore: Save and load runs, summaries and findings

WRITE-ONCE CONTRACT:
  - SaveRun writes the run header, its summary rows and its findings
    together; a run is never visible without them
  - SaveFindings appends further findings to an existing run
  - Summary rows are never updated; a re-run is a new run

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - reserving/store/memory.go: In-memory for testing

SEE ALSO:
  - api/handlers.go: Uses RunStore for prior-period lookup
*/
package reserving

import (
	"context"
	"time"
)

// RunStatus records how a run ended.
type RunStatus string

const (
	RunCompleted RunStatus = "completed" // summary produced, all checks passed
	RunFlagged   RunStatus = "flagged"   // summary produced, at least one check failed
	RunFailed    RunStatus = "failed"    // pipeline aborted, no summary
)

// Run is the header of one calculation.
type Run struct {
	ID            string
	ValuationYear int
	Horizon       int
	Status        RunStatus
	Error         string
	Source        string // "workbook", "api", "scenario:<id>"
	CreatedAt     time.Time
}

// RunStore persists runs.
type RunStore interface {
	// SaveRun persists the run header, its summary and its findings
	// atomically.
	SaveRun(ctx context.Context, run Run, summary []SummaryRow, findings []Finding) error

	// SaveFindings appends findings to a saved run.
	SaveFindings(ctx context.Context, runID string, findings []Finding) error

	// GetRun returns ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// LoadSummary returns the summary of a run ordered by LOB, AY.
	LoadSummary(ctx context.Context, runID string) ([]SummaryRow, error)

	// LoadFindings returns the findings of a run in saved order.
	LoadFindings(ctx context.Context, runID string) ([]Finding, error)

	// LatestRun returns the newest non-failed run for a valuation year,
	// or ErrRunNotFound.
	LatestRun(ctx context.Context, valuationYear int) (*Run, error)
}
