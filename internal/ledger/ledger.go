// Package ledger keeps the append-only record of trade executions.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

// Config holds the ledger's collaborators. All fields are optional.
type Config struct {
	Repo   ports.ExecutionRepository // Write-through persistence
	Logger ports.Logger
	Now    func() time.Time
}

// Ledger stores executions keyed by ID. Executions are never deleted.
// It is safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	executions map[string]*entry
	seq        uint64

	repo   ports.ExecutionRepository
	logger ports.Logger
	now    func() time.Time
}

type entry struct {
	exec domain.Execution
	seq  uint64 // Insertion order, breaks timestamp ties
}

// New creates an empty ledger.
func New(cfg Config) *Ledger {
	l := &Ledger{
		executions: make(map[string]*entry),
		repo:       cfg.Repo,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if l.logger == nil {
		l.logger = ports.NopLogger{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Load restores executions from the repository.
func (l *Ledger) Load(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	stored, err := l.repo.FindAllExecutions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load executions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.executions = make(map[string]*entry, len(stored))
	// Repository order is newest first; assign sequence oldest first.
	for i := len(stored) - 1; i >= 0; i-- {
		l.seq++
		l.executions[stored[i].ID] = &entry{exec: *stored[i], seq: l.seq}
	}
	l.logger.Info(ctx, "Executions loaded from repository", map[string]interface{}{"count": len(stored)})
	return nil
}

// Record appends a new execution. IDs must be unique.
func (l *Ledger) Record(ctx context.Context, e domain.Execution) error {
	if e.ID == "" {
		return fmt.Errorf("execution without ID: %w", ports.ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.executions[e.ID]; exists {
		return fmt.Errorf("execution %s already recorded: %w", e.ID, ports.ErrInvalidRequest)
	}
	if l.repo != nil {
		if err := l.repo.SaveExecution(ctx, &e); err != nil {
			return fmt.Errorf("failed to persist execution %s: %w", e.ID, err)
		}
	}
	l.seq++
	l.executions[e.ID] = &entry{exec: e, seq: l.seq}
	l.logger.Debug(ctx, "Execution recorded", map[string]interface{}{"executionID": e.ID, "targetID": e.TargetID, "status": e.Status})
	return nil
}

// Finalize moves a pending execution to a terminal status, preserving its ID.
// detail is kept only for FAILED executions.
func (l *Ledger) Finalize(ctx context.Context, id string, status domain.ExecutionStatus, reference, detail string) (domain.Execution, error) {
	if !status.IsTerminal() {
		return domain.Execution{}, fmt.Errorf("cannot finalize with status %s: %w", status, ports.ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.executions[id]
	if !ok {
		return domain.Execution{}, fmt.Errorf("execution %s: %w", id, ports.ErrNotFound)
	}
	if ent.exec.IsFinal() {
		return ent.exec, fmt.Errorf("execution %s is %s: %w", id, ent.exec.Status, ports.ErrAlreadyFinal)
	}

	next := ent.exec
	next.Status = status
	next.VenueReference = reference
	next.ErrorDetail = ""
	if status == domain.StatusFailed {
		next.ErrorDetail = detail
	}
	next.FinalizedAt = l.now()

	if l.repo != nil {
		if err := l.repo.SaveExecution(ctx, &next); err != nil {
			// Keep the terminal state in memory; the ledger must not report
			// a finished swap as pending.
			ent.exec = next
			return next, fmt.Errorf("failed to persist finalized execution %s: %w", id, err)
		}
	}
	ent.exec = next
	return next, nil
}

// Get returns a copy of an execution.
func (l *Ledger) Get(id string) (domain.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ent, ok := l.executions[id]
	if !ok {
		return domain.Execution{}, fmt.Errorf("execution %s: %w", id, ports.ErrNotFound)
	}
	return ent.exec, nil
}

// ListAll returns all executions, newest first.
func (l *Ledger) ListAll() []domain.Execution {
	l.mu.RLock()
	entries := make([]entry, 0, len(l.executions))
	for _, ent := range l.executions {
		entries = append(entries, *ent)
	}
	l.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].exec.Timestamp, entries[j].exec.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]domain.Execution, len(entries))
	for i, ent := range entries {
		out[i] = ent.exec
	}
	return out
}

// ListPending returns executions still awaiting a terminal status.
func (l *Ledger) ListPending() []domain.Execution {
	var out []domain.Execution
	for _, e := range l.ListAll() {
		if e.Status == domain.StatusPending {
			out = append(out, e)
		}
	}
	return out
}

// Stats aggregates the ledger. Pending executions count toward the total and the
// volume but not toward the success rate.
func (l *Ledger) Stats() domain.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s domain.Stats
	volume := decimal.Zero
	for _, ent := range l.executions {
		s.TotalTrades++
		volume = volume.Add(decimal.NewFromFloat(ent.exec.Amount))
		switch ent.exec.Status {
		case domain.StatusSuccess:
			s.SuccessfulTrades++
		case domain.StatusFailed:
			s.FailedTrades++
		default:
			s.PendingTrades++
		}
	}
	s.TotalVolume = volume.InexactFloat64()
	if settled := s.SuccessfulTrades + s.FailedTrades; settled > 0 {
		s.SuccessRatePct = float64(s.SuccessfulTrades) / float64(settled) * 100
	}
	return s
}
