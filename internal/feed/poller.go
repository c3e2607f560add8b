// Package feed implements ports.MarketFeed by polling a ports.SnapshotSource
// and caching the latest snapshot per asset.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"triggerBot/internal/domain"
	"triggerBot/internal/observability"
	"triggerBot/internal/ports"
)

// Config holds configuration for the polling feed.
type Config struct {
	Source          ports.SnapshotSource
	Logger          ports.Logger
	Metrics         *observability.Metrics
	RefreshInterval time.Duration // Time between refresh rounds
	Concurrency     int           // Max in-flight fetches per round
	StaleAfter      time.Duration // Cached snapshots older than this are reported unavailable; 0 disables
	MinBackoff      time.Duration // First retry delay for a failing asset
	MaxBackoff      time.Duration // Retry delay cap for a failing asset
	Now             func() time.Time
}

type assetState struct {
	snap    *domain.Snapshot
	lastErr error
	retry   *backoff.Backoff
	retryAt time.Time
}

// Poller refreshes snapshots for tracked assets on a fixed interval.
type Poller struct {
	cfg Config

	mu     sync.RWMutex
	assets map[string]*assetState

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a polling feed.
func New(cfg Config) (*Poller, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("snapshot source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * cfg.MinBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{cfg: cfg, assets: make(map[string]*assetState)}, nil
}

// Track adds an asset to the refreshed set.
func (p *Poller) Track(assetAddress string) {
	if assetAddress == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.assets[assetAddress]; ok {
		return
	}
	p.assets[assetAddress] = &assetState{
		retry: &backoff.Backoff{Min: p.cfg.MinBackoff, Max: p.cfg.MaxBackoff, Factor: 2, Jitter: true},
	}
	p.cfg.Metrics.SetTrackedAssets(len(p.assets))
}

// Untrack removes an asset and its cached snapshot.
func (p *Poller) Untrack(assetAddress string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assets, assetAddress)
	p.cfg.Metrics.SetTrackedAssets(len(p.assets))
}

// Snapshot returns the cached snapshot for the asset.
// Untracked assets and assets not fetched yet return nil, nil.
func (p *Poller) Snapshot(_ context.Context, assetAddress string) (*domain.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.assets[assetAddress]
	if !ok {
		return nil, nil
	}
	if st.snap == nil {
		if st.lastErr != nil {
			return nil, fmt.Errorf("%s: %w: %v", assetAddress, ports.ErrFeedUnavailable, st.lastErr)
		}
		return nil, nil
	}
	if p.cfg.StaleAfter > 0 {
		if age := st.snap.Age(p.cfg.Now()); age > p.cfg.StaleAfter {
			return nil, fmt.Errorf("%s: snapshot is %s old: %w", assetAddress, age.Round(time.Millisecond), ports.ErrFeedUnavailable)
		}
	}
	cp := *st.snap
	return &cp, nil
}

// Start launches the refresh loop. Calling Start while running is a no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)
	p.cfg.Logger.Info(ctx, "Market feed started", map[string]interface{}{"refreshInterval": p.cfg.RefreshInterval.String()})
	return nil
}

// Stop halts the refresh loop and waits for the current round to finish.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	p.cfg.Logger.Info(context.Background(), "Market feed stopped")
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.Refresh(ctx)

	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh fetches every tracked asset that is not backing off.
// One asset failing never affects the others.
func (p *Poller) Refresh(ctx context.Context) {
	now := p.cfg.Now()
	p.mu.RLock()
	due := make([]string, 0, len(p.assets))
	for asset, st := range p.assets {
		if !now.Before(st.retryAt) {
			due = append(due, asset)
		}
	}
	p.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, asset := range due {
		asset := asset
		g.Go(func() error {
			snap, err := p.cfg.Source.FetchSnapshot(ctx, asset)
			p.store(ctx, asset, snap, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) store(ctx context.Context, asset string, snap *domain.Snapshot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.assets[asset]
	if !ok {
		return // Untracked while the fetch was in flight
	}
	if err != nil || snap == nil {
		if err == nil {
			err = fmt.Errorf("source returned no snapshot")
		}
		if ctx.Err() != nil {
			return
		}
		delay := st.retry.Duration()
		st.lastErr = err
		st.retryAt = p.cfg.Now().Add(delay)
		p.cfg.Metrics.RecordRefreshError()
		p.cfg.Logger.Warn(ctx, "Snapshot refresh failed", map[string]interface{}{"asset": asset, "error": err.Error(), "retryIn": delay.String()})
		return
	}

	cp := *snap
	if cp.AssetAddress == "" {
		cp.AssetAddress = asset
	}
	if cp.Timestamp == 0 {
		cp.Timestamp = p.cfg.Now().UnixMilli()
	}
	st.snap = &cp
	st.lastErr = nil
	st.retryAt = time.Time{}
	st.retry.Reset()
}

// Set stores a snapshot directly. Used by push-based sources and tests.
func (p *Poller) Set(snap domain.Snapshot) {
	p.Track(snap.AssetAddress)
	p.store(context.Background(), snap.AssetAddress, &snap, nil)
}
