package ports

import "context"

// SwapRequest describes a swap to be executed by a venue.
type SwapRequest struct {
	AssetIn        string  // Asset being spent
	AssetOut       string  // Asset being received
	AmountIn       float64 // Quantity of AssetIn to spend
	MaxSlippagePct float64 // 0-100
	Recipient      string  // Where AssetOut is delivered, venue specific
	ExpectedPrice  float64 // Snapshot price the trigger fired at, in funding asset per asset unit
}

// SwapResult is returned by a venue on a successful swap.
type SwapResult struct {
	Reference string // Opaque transaction or order identifier
}

// Venue executes swaps against an external liquidity source.
type Venue interface {
	// IsHighRisk screens an asset before trading (honeypots, halted markets, denylists).
	IsHighRisk(ctx context.Context, assetAddress string) (bool, error)
	// Swap executes the swap or returns an error wrapping ErrVenue or a more specific error.
	Swap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}
