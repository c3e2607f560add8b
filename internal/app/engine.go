package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"triggerBot/internal/condition"
	"triggerBot/internal/domain"
	"triggerBot/internal/ledger"
	"triggerBot/internal/observability"
	"triggerBot/internal/ports"
	"triggerBot/internal/registry"
)

const (
	defaultTickInterval = time.Second
	defaultTickTimeout  = 30 * time.Second

	interruptedDetail = "interrupted before completion"
)

// Config holds the engine's runtime parameters.
type Config struct {
	TickInterval time.Duration // Time between ticks
	TickTimeout  time.Duration // Upper bound on one tick's feed and venue calls
	FundingAsset string        // Asset targets spend on buys and receive on sells
	Recipient    string        // Passed through to the venue
	Metrics      *observability.Metrics
	Now          func() time.Time
}

// Engine polls active targets, evaluates their conditions and executes trades.
//
// Ticks are serialized: one goroutine runs them back to back and the ticker
// drops ticks that elapse while one is in progress, so ticks never overlap.
// Within a tick targets are processed sequentially in creation order.
type Engine struct {
	cfg       Config
	logger    ports.Logger
	feed      ports.MarketFeed
	venue     ports.Venue
	registry  *registry.Registry
	ledger    *ledger.Ledger
	evaluator *condition.Evaluator
	metrics   *observability.Metrics
	now       func() time.Time

	runMu  sync.Mutex // Guards cancel and done
	cancel context.CancelFunc
	done   chan struct{}

	tickMu sync.Mutex // Serializes Tick
}

// NewEngine creates a stopped engine.
func NewEngine(
	cfg Config,
	logger ports.Logger,
	feed ports.MarketFeed,
	venue ports.Venue,
	reg *registry.Registry,
	led *ledger.Ledger,
	evaluator *condition.Evaluator,
) (*Engine, error) {
	if logger == nil || feed == nil || venue == nil || reg == nil || led == nil || evaluator == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine: %w", ports.ErrConfigurationError)
	}
	if cfg.TickInterval < 0 || cfg.TickTimeout < 0 {
		return nil, fmt.Errorf("tick interval and timeout cannot be negative: %w", ports.ErrConfigurationError)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.TickTimeout == 0 {
		cfg.TickTimeout = defaultTickTimeout
	}
	if cfg.FundingAsset == "" {
		return nil, fmt.Errorf("funding asset must be set: %w", ports.ErrConfigurationError)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		feed:      feed,
		venue:     venue,
		registry:  reg,
		ledger:    led,
		evaluator: evaluator,
		metrics:   cfg.Metrics,
		now:       now,
	}, nil
}

// Start begins the feed and the tick loop. Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return nil
	}

	for _, asset := range e.registry.Assets() {
		e.feed.Track(asset)
	}
	if err := e.feed.Start(ctx); err != nil {
		return fmt.Errorf("failed to start market feed: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(loopCtx, e.done)

	e.logger.Info(ctx, "Engine started", map[string]interface{}{"tickInterval": e.cfg.TickInterval.String(), "targets": e.registry.Len()})
	return nil
}

// Stop halts the tick loop and the feed. It may be called from any goroutine and
// more than once. A tick already in progress completes; no tick starts after Stop returns.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.feed.Stop()
	e.cancel = nil
	e.done = nil
	e.logger.Info(context.Background(), "Engine stopped")
}

// IsRunning reports whether the tick loop is active.
func (e *Engine) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cancel != nil
}

// Run starts the engine and blocks until ctx is cancelled or SIGINT/SIGTERM is received.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	e.logger.Info(context.Background(), "Main context cancelled, initiating shutdown...")
	e.Stop()
	return nil
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			e.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass over the active targets.
// Cancelling ctx stops the pass before the next target; calls to the feed and
// venue already under way finish under the tick timeout instead.
func (e *Engine) Tick(ctx context.Context) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := e.now()
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.TickTimeout)
	defer cancel()

	targets := e.registry.ListActive()
	for i := range targets {
		if ctx.Err() != nil {
			e.logger.Debug(ctx, "Tick interrupted by shutdown", map[string]interface{}{"remaining": len(targets) - i})
			break
		}
		if workCtx.Err() != nil {
			e.logger.Warn(ctx, "Tick timeout reached, deferring remaining targets", map[string]interface{}{"remaining": len(targets) - i})
			break
		}
		e.processTarget(workCtx, &targets[i])
	}
	e.metrics.ObserveTick(e.now().Sub(start), len(targets))
}

// processTarget never returns an error: runtime trading failures are logged or
// recorded in the ledger so the loop keeps serving other targets.
func (e *Engine) processTarget(ctx context.Context, t *domain.Target) {
	snap, err := e.feed.Snapshot(ctx, t.AssetAddress)
	if err != nil {
		e.metrics.RecordFeedError("unavailable")
		e.logger.Warn(ctx, "Snapshot unavailable, skipping target this tick", map[string]interface{}{"targetID": t.ID, "asset": t.AssetAddress, "error": err.Error()})
		return
	}
	if snap == nil {
		e.metrics.RecordFeedError("absent")
		e.logger.Debug(ctx, "No snapshot yet, skipping target", map[string]interface{}{"targetID": t.ID, "asset": t.AssetAddress})
		return
	}

	if !e.evaluator.Evaluate(t, snap) {
		e.logHeld(ctx, t, snap)
		return
	}

	fired, err := e.registry.MarkFired(ctx, t.ID)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to persist fired state", map[string]interface{}{"targetID": t.ID})
	}
	if !fired {
		e.logger.Debug(ctx, "Target deactivated before firing, skipping", map[string]interface{}{"targetID": t.ID})
		return
	}
	e.metrics.RecordFired()

	exec := domain.Execution{
		ID:           uuid.NewString(),
		TargetID:     t.ID,
		AssetAddress: t.AssetAddress,
		Symbol:       t.Symbol,
		Direction:    condition.Direction(t, snap.Price),
		Amount:       t.Amount,
		Price:        snap.Price,
		Status:       domain.StatusPending,
		Timestamp:    e.now(),
	}
	if err := e.ledger.Record(ctx, exec); err != nil {
		// Without a ledger entry there is no audit trail; do not trade.
		e.logger.Error(ctx, err, "Failed to record execution, target left fired without trading", map[string]interface{}{"targetID": t.ID})
		return
	}
	e.logger.Info(ctx, "Target fired", map[string]interface{}{
		"targetID":    t.ID,
		"executionID": exec.ID,
		"symbol":      t.Symbol,
		"direction":   exec.Direction,
		"price":       snap.Price,
		"targetPrice": t.TargetPrice,
	})

	e.execute(ctx, t, exec)
}

// logHeld records at debug level which checks kept a target from firing.
func (e *Engine) logHeld(ctx context.Context, t *domain.Target, snap *domain.Snapshot) {
	results, priceOK := e.evaluator.Explain(t, snap)
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s (is %g)", condition.Format(r.Condition), r.Value))
		}
	}
	e.logger.Debug(ctx, "Target held", map[string]interface{}{
		"targetID":         t.ID,
		"price":            snap.Price,
		"targetPrice":      t.TargetPrice,
		"priceTriggered":   priceOK,
		"failedConditions": failed,
	})
}

func (e *Engine) execute(ctx context.Context, t *domain.Target, exec domain.Execution) {
	status, reference, detail := domain.StatusFailed, "", ""
	defer func() {
		if r := recover(); r != nil {
			status, reference, detail = domain.StatusFailed, "", fmt.Sprintf("venue panic: %v", r)
		}
		e.finalize(ctx, exec, status, reference, detail)
	}()

	risky, err := e.venue.IsHighRisk(ctx, t.AssetAddress)
	switch {
	case err != nil:
		detail = fmt.Sprintf("risk screen failed: %v", err)
		return
	case risky:
		detail = ports.ErrHighRiskAsset.Error()
		return
	}

	req, err := e.swapRequest(t, exec)
	if err != nil {
		detail = err.Error()
		return
	}
	res, err := e.venue.Swap(ctx, req)
	if err != nil {
		detail = err.Error()
		return
	}
	if res == nil {
		detail = "venue returned no result"
		return
	}
	status, reference = domain.StatusSuccess, res.Reference
}

func (e *Engine) finalize(ctx context.Context, exec domain.Execution, status domain.ExecutionStatus, reference, detail string) {
	final, err := e.ledger.Finalize(ctx, exec.ID, status, reference, detail)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to finalize execution", map[string]interface{}{"executionID": exec.ID, "status": status})
	}
	e.metrics.RecordExecution(string(status))

	fields := map[string]interface{}{"executionID": exec.ID, "targetID": exec.TargetID, "status": final.Status}
	if status == domain.StatusSuccess {
		fields["reference"] = reference
		e.logger.Info(ctx, "Execution succeeded", fields)
		return
	}
	fields["detail"] = detail
	e.logger.Warn(ctx, "Execution failed, target stays disabled until re-enabled", fields)
}

// swapRequest converts a fired target into venue terms. Amounts are in the
// funding asset, so sells convert to asset units at the trigger price.
func (e *Engine) swapRequest(t *domain.Target, exec domain.Execution) (ports.SwapRequest, error) {
	req := ports.SwapRequest{
		MaxSlippagePct: t.SlippageTolerancePct,
		Recipient:      e.cfg.Recipient,
		ExpectedPrice:  exec.Price,
	}
	if exec.Direction == domain.Buy {
		req.AssetIn, req.AssetOut, req.AmountIn = e.cfg.FundingAsset, t.AssetAddress, t.Amount
		return req, nil
	}
	if exec.Price <= 0 {
		return req, fmt.Errorf("cannot size sell at non-positive price %v", exec.Price)
	}
	req.AssetIn, req.AssetOut = t.AssetAddress, e.cfg.FundingAsset
	req.AmountIn = decimal.NewFromFloat(t.Amount).Div(decimal.NewFromFloat(exec.Price)).InexactFloat64()
	return req, nil
}

// ResolveInterrupted fails executions left pending by a previous process.
// Their swap outcome is unknown and financial actions are never retried.
func (e *Engine) ResolveInterrupted(ctx context.Context) int {
	resolved := 0
	for _, exec := range e.ledger.ListPending() {
		if _, err := e.ledger.Finalize(ctx, exec.ID, domain.StatusFailed, "", interruptedDetail); err != nil {
			e.logger.Error(ctx, err, "Failed to resolve interrupted execution", map[string]interface{}{"executionID": exec.ID})
			continue
		}
		resolved++
		e.logger.Warn(ctx, "Interrupted execution marked failed", map[string]interface{}{"executionID": exec.ID, "targetID": exec.TargetID})
	}
	return resolved
}

// --- Caller-facing target and ledger operations ---

// AddTarget validates and stores a new target and starts tracking its asset.
func (e *Engine) AddTarget(ctx context.Context, params registry.NewTargetParams) (string, error) {
	id, err := e.registry.Add(ctx, params)
	if err != nil {
		return "", err
	}
	e.feed.Track(params.AssetAddress)
	return id, nil
}

// UpdateTarget merges a patch into a target.
func (e *Engine) UpdateTarget(ctx context.Context, id string, patch registry.TargetPatch) error {
	prev, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	if err := e.registry.Update(ctx, id, patch); err != nil {
		return err
	}
	if patch.AssetAddress != nil && *patch.AssetAddress != prev.AssetAddress {
		e.feed.Track(*patch.AssetAddress)
		e.untrackIfUnused(prev.AssetAddress)
	}
	return nil
}

// RemoveTarget deletes a target. Existing executions are kept.
func (e *Engine) RemoveTarget(ctx context.Context, id string) error {
	prev, getErr := e.registry.Get(id)
	if err := e.registry.Remove(ctx, id); err != nil {
		return err
	}
	if getErr == nil {
		e.untrackIfUnused(prev.AssetAddress)
	}
	return nil
}

// untrackIfUnused drops the asset from the feed when no stored target
// references it any more. Feeds without Untrack keep refreshing it.
func (e *Engine) untrackIfUnused(asset string) {
	u, ok := e.feed.(ports.AssetUntracker)
	if !ok {
		return
	}
	for _, a := range e.registry.Assets() {
		if a == asset {
			return
		}
	}
	u.Untrack(asset)
}

// ToggleTarget flips a target's active state.
func (e *Engine) ToggleTarget(ctx context.Context, id string) error {
	return e.registry.Toggle(ctx, id)
}

// SetTargetActive enables or disables a target.
func (e *Engine) SetTargetActive(ctx context.Context, id string, active bool) error {
	return e.registry.SetActive(ctx, id, active)
}

// ListTargets returns all targets in creation order.
func (e *Engine) ListTargets() []domain.Target {
	return e.registry.ListAll()
}

// ListExecutions returns all executions, newest first.
func (e *Engine) ListExecutions() []domain.Execution {
	return e.ledger.ListAll()
}

// Stats returns aggregate ledger statistics.
func (e *Engine) Stats() domain.Stats {
	return e.ledger.Stats()
}
