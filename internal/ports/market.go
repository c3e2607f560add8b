package ports

import (
	"context"

	"triggerBot/internal/domain"
)

// MarketFeed supplies the latest snapshot per tracked asset on demand.
// It hides whether snapshots are polled or pushed from the engine.
type MarketFeed interface {
	// Start begins refreshing snapshots for all tracked assets.
	Start(ctx context.Context) error
	// Stop halts the refresh mechanism. Safe to call more than once.
	Stop()
	// Track adds an asset to the refreshed set. Tracking twice is a no-op.
	Track(assetAddress string)
	// Snapshot returns the latest snapshot for the asset.
	// Returns nil, nil if no snapshot is available yet.
	Snapshot(ctx context.Context, assetAddress string) (*domain.Snapshot, error)
}

// AssetUntracker is implemented by feeds that can stop refreshing an asset
// once no target references it.
type AssetUntracker interface {
	Untrack(assetAddress string)
}

// SnapshotSource fetches a fresh snapshot for one asset from an upstream.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, assetAddress string) (*domain.Snapshot, error)
}
