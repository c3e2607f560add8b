package domain

import "time"

// Execution records one attempt to act on a target.
type Execution struct {
	ID             string
	TargetID       string // Target that produced this execution (lookup only)
	AssetAddress   string
	Symbol         string
	Direction      OrderSide
	Amount         float64 // Funding asset amount at trigger time
	Price          float64 // Snapshot price at trigger time
	VenueReference string  // Empty until the venue returns one
	Status         ExecutionStatus
	Timestamp      time.Time
	ErrorDetail    string    // Set only when Status is FAILED
	FinalizedAt    time.Time // Zero while pending
}

// IsFinal reports whether the execution reached a terminal state.
func (e *Execution) IsFinal() bool {
	return e.Status.IsTerminal()
}

// Stats aggregates the execution ledger.
type Stats struct {
	TotalTrades      int
	SuccessfulTrades int
	FailedTrades     int
	PendingTrades    int
	TotalVolume      float64
	SuccessRatePct   float64
}
