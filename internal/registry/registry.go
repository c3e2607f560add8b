// Package registry holds the in-memory set of trade targets.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

// NewTargetParams are the caller-supplied fields of a new target.
type NewTargetParams struct {
	AssetAddress         string             `json:"assetAddress" validate:"required"`
	Symbol               string             `json:"symbol"`
	TargetPrice          float64            `json:"targetPrice" validate:"gt=0"`
	Amount               float64            `json:"amount" validate:"gt=0"`
	SlippageTolerancePct float64            `json:"slippageTolerancePct" validate:"gte=0,lte=100"`
	Strategy             domain.Strategy    `json:"strategy" validate:"required,oneof=BUY SELL BOTH"`
	Conditions           []domain.Condition `json:"conditions" validate:"dive"`
	Active               bool               `json:"active"`
}

// TargetPatch carries the fields to change on update. Nil fields are left alone.
type TargetPatch struct {
	AssetAddress         *string
	Symbol               *string
	TargetPrice          *float64
	Amount               *float64
	SlippageTolerancePct *float64
	Strategy             *domain.Strategy
	Conditions           *[]domain.Condition
	Active               *bool
}

// Config holds the registry's collaborators. All fields are optional.
type Config struct {
	Repo   ports.TargetRepository // Write-through persistence; nil keeps targets in memory only
	Logger ports.Logger
	Now    func() time.Time
}

// Registry stores trade targets keyed by ID. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*domain.Target
	order   []string // IDs in creation order

	repo     ports.TargetRepository
	logger   ports.Logger
	validate *validator.Validate
	now      func() time.Time
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	r := &Registry{
		targets:  make(map[string]*domain.Target),
		repo:     cfg.Repo,
		logger:   cfg.Logger,
		validate: validator.New(),
		now:      cfg.Now,
	}
	if r.logger == nil {
		r.logger = ports.NopLogger{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Load restores targets from the repository, replacing the in-memory set.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	stored, err := r.repo.FindAllTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = make(map[string]*domain.Target, len(stored))
	r.order = r.order[:0]
	for _, t := range stored {
		cp := t.Clone()
		r.targets[cp.ID] = &cp
		r.order = append(r.order, cp.ID)
	}
	r.logger.Info(ctx, "Targets loaded from repository", map[string]interface{}{"count": len(stored)})
	return nil
}

// Add validates params and stores a new target, returning its ID.
func (r *Registry) Add(ctx context.Context, params NewTargetParams) (string, error) {
	if err := r.check(params); err != nil {
		return "", err
	}

	now := r.now()
	state := domain.TargetInactive
	if params.Active {
		state = domain.TargetActive
	}
	t := domain.Target{
		ID:                   uuid.NewString(),
		AssetAddress:         params.AssetAddress,
		Symbol:               params.Symbol,
		TargetPrice:          params.TargetPrice,
		Amount:               params.Amount,
		SlippageTolerancePct: params.SlippageTolerancePct,
		Strategy:             params.Strategy,
		Conditions:           params.Conditions,
		State:                state,
		CreatedAt:            now,
		UpdatedAt:            now,
	}.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.persist(ctx, &t); err != nil {
		return "", err
	}
	r.targets[t.ID] = &t
	r.order = append(r.order, t.ID)
	r.logger.Info(ctx, "Target added", map[string]interface{}{"targetID": t.ID, "symbol": t.Symbol, "strategy": t.Strategy, "targetPrice": t.TargetPrice})
	return t.ID, nil
}

// Update merges patch into the target and revalidates. ID and CreatedAt are preserved.
func (r *Registry) Update(ctx context.Context, id string, patch TargetPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, ports.ErrNotFound)
	}

	merged := cur.Clone()
	applyPatch(&merged, patch)
	if err := r.check(paramsOf(&merged)); err != nil {
		return err
	}
	merged.ID = cur.ID
	merged.CreatedAt = cur.CreatedAt
	merged.UpdatedAt = r.now()

	if err := r.persist(ctx, &merged); err != nil {
		return err
	}
	r.targets[id] = &merged
	r.logger.Info(ctx, "Target updated", map[string]interface{}{"targetID": id})
	return nil
}

// Remove deletes a target. Removing an unknown ID is not an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.DeleteTarget(ctx, id); err != nil {
			return fmt.Errorf("failed to delete target %s: %w", id, err)
		}
	}
	if _, ok := r.targets[id]; !ok {
		return nil
	}
	delete(r.targets, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info(ctx, "Target removed", map[string]interface{}{"targetID": id})
	return nil
}

// Toggle flips a target between active and not active. A fired target becomes active again.
func (r *Registry) Toggle(ctx context.Context, id string) error {
	return r.setState(ctx, id, func(t *domain.Target) domain.TargetState {
		if t.IsActive() {
			return domain.TargetInactive
		}
		return domain.TargetActive
	})
}

// SetActive enables or disables a target without further validation.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	return r.setState(ctx, id, func(*domain.Target) domain.TargetState {
		if active {
			return domain.TargetActive
		}
		return domain.TargetInactive
	})
}

// MarkFired atomically moves an active target to the fired state.
// It returns false if the target is gone or no longer active, in which case
// the caller must not execute it.
func (r *Registry) MarkFired(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[id]
	if !ok || !t.IsActive() {
		return false, nil
	}
	t.State = domain.TargetFired
	t.UpdatedAt = r.now()
	if r.repo != nil {
		// The in-memory state is authoritative for firing; a failed write is
		// reported but the target stays fired.
		if err := r.repo.SaveTarget(ctx, t); err != nil {
			return true, fmt.Errorf("failed to persist fired target %s: %w", id, err)
		}
	}
	return true, nil
}

// Get returns a copy of the target.
func (r *Registry) Get(id string) (domain.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return domain.Target{}, fmt.Errorf("target %s: %w", id, ports.ErrNotFound)
	}
	return t.Clone(), nil
}

// ListAll returns copies of all targets in creation order.
func (r *Registry) ListAll() []domain.Target {
	return r.list(func(*domain.Target) bool { return true })
}

// ListActive returns copies of the active targets in creation order.
func (r *Registry) ListActive() []domain.Target {
	return r.list(func(t *domain.Target) bool { return t.IsActive() })
}

// Assets returns the distinct asset addresses of all targets.
func (r *Registry) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.targets))
	assets := make([]string, 0, len(r.targets))
	for _, id := range r.order {
		a := r.targets[id].AssetAddress
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		assets = append(assets, a)
	}
	return assets
}

// Len returns the number of stored targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

func (r *Registry) list(keep func(*domain.Target) bool) []domain.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Target, 0, len(r.order))
	for _, id := range r.order {
		t := r.targets[id]
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (r *Registry) setState(ctx context.Context, id string, next func(*domain.Target) domain.TargetState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, ports.ErrNotFound)
	}
	prev := t.State
	t.State = next(t)
	t.UpdatedAt = r.now()
	if err := r.persist(ctx, t); err != nil {
		t.State = prev
		return err
	}
	r.logger.Info(ctx, "Target state changed", map[string]interface{}{"targetID": id, "from": prev, "to": t.State})
	return nil
}

// persist must be called with r.mu held.
func (r *Registry) persist(ctx context.Context, t *domain.Target) error {
	if r.repo == nil {
		return nil
	}
	if err := r.repo.SaveTarget(ctx, t); err != nil {
		return fmt.Errorf("failed to persist target %s: %w", t.ID, err)
	}
	return nil
}

func (r *Registry) check(p NewTargetParams) error {
	var problems []string
	if err := r.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ports.ErrInvalidTarget, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
		}
	}
	for name, v := range map[string]float64{"TargetPrice": p.TargetPrice, "Amount": p.Amount} {
		if math.IsInf(v, 0) {
			problems = append(problems, name+" must be finite")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrInvalidTarget, strings.Join(problems, "; "))
	}
	return nil
}

func applyPatch(t *domain.Target, p TargetPatch) {
	if p.AssetAddress != nil {
		t.AssetAddress = *p.AssetAddress
	}
	if p.Symbol != nil {
		t.Symbol = *p.Symbol
	}
	if p.TargetPrice != nil {
		t.TargetPrice = *p.TargetPrice
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.SlippageTolerancePct != nil {
		t.SlippageTolerancePct = *p.SlippageTolerancePct
	}
	if p.Strategy != nil {
		t.Strategy = *p.Strategy
	}
	if p.Conditions != nil {
		t.Conditions = append([]domain.Condition(nil), (*p.Conditions)...)
	}
	if p.Active != nil {
		if *p.Active {
			t.State = domain.TargetActive
		} else {
			t.State = domain.TargetInactive
		}
	}
}

func paramsOf(t *domain.Target) NewTargetParams {
	return NewTargetParams{
		AssetAddress:         t.AssetAddress,
		Symbol:               t.Symbol,
		TargetPrice:          t.TargetPrice,
		Amount:               t.Amount,
		SlippageTolerancePct: t.SlippageTolerancePct,
		Strategy:             t.Strategy,
		Conditions:           t.Conditions,
		Active:               t.IsActive(),
	}
}
