// Package condition decides whether a trade target fires for a market snapshot.
//
// A target fires when every auxiliary condition holds (logical AND) and its
// strategy's price trigger holds. There is no OR composition and no grouping.
package condition

import (
	"math"

	"triggerBot/internal/domain"
)

const (
	// DefaultBandPct is the width of the BOTH strategy band around the target price.
	DefaultBandPct = 1.0

	equalityEpsilon = 1e-9
)

// Evaluator is a pure, stateless rule engine. It is safe for concurrent use.
type Evaluator struct {
	bandPct float64
}

// New creates an Evaluator. A non-positive bandPct falls back to DefaultBandPct.
func New(bandPct float64) *Evaluator {
	if bandPct <= 0 {
		bandPct = DefaultBandPct
	}
	return &Evaluator{bandPct: bandPct}
}

// BandPct returns the BOTH band width in percent.
func (e *Evaluator) BandPct() float64 {
	return e.bandPct
}

// Evaluate reports whether the target should fire for the snapshot.
func (e *Evaluator) Evaluate(t *domain.Target, snap *domain.Snapshot) bool {
	if t == nil || snap == nil {
		return false
	}
	for _, c := range t.Conditions {
		if !Check(c, snap) {
			return false
		}
	}
	return e.PriceTriggered(t, snap.Price)
}

// PriceTriggered applies the strategy's price trigger.
func (e *Evaluator) PriceTriggered(t *domain.Target, price float64) bool {
	switch t.Strategy {
	case domain.StrategyBuy:
		return price <= t.TargetPrice
	case domain.StrategySell:
		return price >= t.TargetPrice
	case domain.StrategyBoth:
		return math.Abs(price-t.TargetPrice) <= t.TargetPrice*e.bandPct/100
	default:
		return false
	}
}

// Direction resolves the side to trade once a target has fired.
// BOTH buys at or under the target price and sells above it.
func Direction(t *domain.Target, price float64) domain.OrderSide {
	switch t.Strategy {
	case domain.StrategySell:
		return domain.Sell
	case domain.StrategyBoth:
		if price > t.TargetPrice {
			return domain.Sell
		}
		return domain.Buy
	default:
		return domain.Buy
	}
}

// Check evaluates one auxiliary condition. Unknown metrics or operators never hold.
func Check(c domain.Condition, snap *domain.Snapshot) bool {
	v, ok := MetricValue(c.Metric, snap)
	if !ok {
		return false
	}
	return compare(v, c.Operator, c.Threshold)
}

// MetricValue resolves a metric from the snapshot.
func MetricValue(m domain.Metric, snap *domain.Snapshot) (float64, bool) {
	switch m {
	case domain.MetricPrice:
		return snap.Price, true
	case domain.MetricVolume:
		return snap.Volume24h, true
	case domain.MetricLiquidity:
		return snap.Liquidity, true
	case domain.MetricHolders:
		return float64(snap.Holders), true
	default:
		return 0, false
	}
}

func compare(v float64, op domain.Operator, threshold float64) bool {
	switch op {
	case domain.OpGreater:
		return v > threshold
	case domain.OpLess:
		return v < threshold
	case domain.OpEqual:
		return approxEqual(v, threshold)
	case domain.OpGreaterEqual:
		return v >= threshold || approxEqual(v, threshold)
	case domain.OpLessEqual:
		return v <= threshold || approxEqual(v, threshold)
	default:
		return false
	}
}

// approxEqual compares with a relative tolerance so "=" is usable on prices.
func approxEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return diff <= equalityEpsilon*scale
}

// Result is the outcome of a single condition, used for debug logging.
type Result struct {
	Condition domain.Condition
	Value     float64
	Passed    bool
}

// Explain evaluates every condition without short-circuiting.
func (e *Evaluator) Explain(t *domain.Target, snap *domain.Snapshot) ([]Result, bool) {
	results := make([]Result, 0, len(t.Conditions))
	for _, c := range t.Conditions {
		v, _ := MetricValue(c.Metric, snap)
		results = append(results, Result{Condition: c, Value: v, Passed: Check(c, snap)})
	}
	return results, e.PriceTriggered(t, snap.Price)
}
