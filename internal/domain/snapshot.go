package domain

import "time"

// Snapshot is a point-in-time read of market metrics for one asset.
type Snapshot struct {
	AssetAddress string
	Price        float64 // Last traded price in the funding asset
	Volume24h    float64 // Rolling 24h volume in the funding asset
	Liquidity    float64 // Quote value resting near the top of the book
	Holders      uint64  // Holder count, 0 when the source cannot report it
	Timestamp    int64   // Unix milliseconds when the snapshot was taken
}

// Time returns the snapshot timestamp as a time.Time.
func (s *Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Time())
}
