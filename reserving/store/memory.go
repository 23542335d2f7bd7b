// Package store provides RunStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/reserving-engine/reserving"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	runs     map[string]reserving.Run
	order    []string
	summary  map[string][]reserving.SummaryRow
	findings map[string][]reserving.Finding
}

func NewMemory() *Memory {
	return &Memory{
		runs:     make(map[string]reserving.Run),
		summary:  make(map[string][]reserving.SummaryRow),
		findings: make(map[string][]reserving.Finding),
	}
}

// SaveRun stores the run with copies of its summary and findings. Run IDs
// are write-once.
func (m *Memory) SaveRun(_ context.Context, run reserving.Run, summary []reserving.SummaryRow, findings []reserving.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already saved", run.ID)
	}
	rows := make([]reserving.SummaryRow, len(summary))
	copy(rows, summary)
	reserving.SortSummary(rows)

	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	m.summary[run.ID] = rows
	m.findings[run.ID] = append([]reserving.Finding(nil), findings...)
	return nil
}

func (m *Memory) SaveFindings(_ context.Context, runID string, findings []reserving.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", reserving.ErrRunNotFound, runID)
	}
	m.findings[runID] = append(m.findings[runID], findings...)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*reserving.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", reserving.ErrRunNotFound, id)
	}
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]reserving.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]reserving.Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		result = append(result, m.runs[m.order[i]])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) LoadSummary(_ context.Context, runID string) ([]reserving.SummaryRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: %s", reserving.ErrRunNotFound, runID)
	}
	result := make([]reserving.SummaryRow, len(m.summary[runID]))
	copy(result, m.summary[runID])
	return result, nil
}

func (m *Memory) LoadFindings(_ context.Context, runID string) ([]reserving.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: %s", reserving.ErrRunNotFound, runID)
	}
	result := make([]reserving.Finding, len(m.findings[runID]))
	copy(result, m.findings[runID])
	return result, nil
}

func (m *Memory) LatestRun(ctx context.Context, valuationYear int) (*reserving.Run, error) {
	runs, err := m.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.ValuationYear == valuationYear && r.Status != reserving.RunFailed {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: no run for valuation year %d", reserving.ErrRunNotFound, valuationYear)
}

// Reset drops every run.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = make(map[string]reserving.Run)
	m.order = nil
	m.summary = make(map[string][]reserving.SummaryRow)
	m.findings = make(map[string][]reserving.Finding)
	return nil
}
