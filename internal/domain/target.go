package domain

import "time"

// Metric names a snapshot field a condition is evaluated against.
type Metric string

const (
	MetricPrice     Metric = "PRICE"
	MetricVolume    Metric = "VOLUME"
	MetricLiquidity Metric = "LIQUIDITY"
	MetricHolders   Metric = "HOLDERS"
)

// Operator is a comparison applied between a metric value and a threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Condition is an auxiliary predicate that must hold for a target to fire.
type Condition struct {
	Metric    Metric   `json:"metric" validate:"required,oneof=PRICE VOLUME LIQUIDITY HOLDERS"`
	Operator  Operator `json:"operator" validate:"required,oneof=> < = >= <="`
	Threshold float64  `json:"threshold"`
}

// TargetState is the firing state of a target.
type TargetState string

const (
	TargetActive   TargetState = "active"   // Evaluated on every tick
	TargetInactive TargetState = "inactive" // Disabled by the caller
	TargetFired    TargetState = "fired"    // Fired once; stays off until re-enabled
)

// Target is a user intent to trade an asset when its conditions hold.
type Target struct {
	ID                   string
	AssetAddress         string
	Symbol               string
	TargetPrice          float64
	Amount               float64 // Denominated in the funding asset
	SlippageTolerancePct float64
	Strategy             Strategy
	Conditions           []Condition // All must hold (AND)
	State                TargetState
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsActive reports whether the engine should evaluate this target.
func (t *Target) IsActive() bool {
	return t.State == TargetActive
}

// Clone returns a deep copy so callers never share the conditions slice.
func (t Target) Clone() Target {
	if t.Conditions != nil {
		conds := make([]Condition, len(t.Conditions))
		copy(conds, t.Conditions)
		t.Conditions = conds
	}
	return t
}
