package condition

import (
	"fmt"
	"strconv"
	"strings"

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

// Two-character operators first so ">=" is not read as ">".
var parseOrder = []domain.Operator{
	domain.OpGreaterEqual, domain.OpLessEqual, domain.OpGreater, domain.OpLess, domain.OpEqual,
}

// Parse reads a condition written as METRIC OP THRESHOLD, e.g. "liquidity>=10000".
func Parse(s string) (domain.Condition, error) {
	for _, op := range parseOrder {
		i := strings.Index(s, string(op))
		if i < 0 {
			continue
		}
		metric := domain.Metric(strings.ToUpper(strings.TrimSpace(s[:i])))
		switch metric {
		case domain.MetricPrice, domain.MetricVolume, domain.MetricLiquidity, domain.MetricHolders:
		default:
			return domain.Condition{}, fmt.Errorf("unknown metric %q in %q: %w", metric, s, ports.ErrInvalidTarget)
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(s[i+len(op):]), 64)
		if err != nil {
			return domain.Condition{}, fmt.Errorf("bad threshold in %q: %v: %w", s, err, ports.ErrInvalidTarget)
		}
		return domain.Condition{Metric: metric, Operator: op, Threshold: threshold}, nil
	}
	return domain.Condition{}, fmt.Errorf("no operator in %q: %w", s, ports.ErrInvalidTarget)
}

// Format renders a condition the way Parse reads it.
func Format(c domain.Condition) string {
	return fmt.Sprintf("%s%s%s", c.Metric, c.Operator, strconv.FormatFloat(c.Threshold, 'f', -1, 64))
}
