package utils

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"triggerBot/internal/domain"
)

// ExecutionCSVHeader is the header row written by WriteExecutionsCSV.
var ExecutionCSVHeader = []string{
	"id", "target_id", "asset", "symbol", "direction", "amount", "price",
	"status", "venue_reference", "error_detail", "timestamp", "finalized_at",
}

// WriteExecutionsCSV writes executions to w, one row each, in the given order.
func WriteExecutionsCSV(w io.Writer, executions []domain.Execution) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(ExecutionCSVHeader); err != nil {
		return err
	}
	for _, e := range executions {
		finalized := ""
		if !e.FinalizedAt.IsZero() {
			finalized = e.FinalizedAt.UTC().Format(time.RFC3339)
		}
		if err := writer.Write([]string{
			e.ID,
			e.TargetID,
			e.AssetAddress,
			e.Symbol,
			string(e.Direction),
			strconv.FormatFloat(e.Amount, 'f', -1, 64),
			strconv.FormatFloat(e.Price, 'f', -1, 64),
			string(e.Status),
			e.VenueReference,
			e.ErrorDetail,
			e.Timestamp.UTC().Format(time.RFC3339),
			finalized,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
