package domain

// OrderSide represents the direction of a trade (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Strategy selects how a target's price trigger is interpreted.
type Strategy string

const (
	StrategyBuy  Strategy = "BUY"  // Fire when price drops to or below the target price
	StrategySell Strategy = "SELL" // Fire when price rises to or above the target price
	StrategyBoth Strategy = "BOTH" // Fire when price is within a band around the target price
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyBuy, StrategySell, StrategyBoth:
		return true
	}
	return false
}

// ExecutionStatus represents the lifecycle status of a trade execution.
type ExecutionStatus string

const (
	StatusPending ExecutionStatus = "PENDING"
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}
