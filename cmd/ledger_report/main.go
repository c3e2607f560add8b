package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"triggerBot/internal/adapters/logger"
	"triggerBot/internal/adapters/sqlite"
	"triggerBot/internal/domain"
	"triggerBot/internal/ledger"
	"triggerBot/internal/utils"
)

func main() {
	dbPath := flag.String("db", "./data/trigger_bot.db", "path to the SQLite database")
	status := flag.String("status", "", "only show executions with this status (PENDING, SUCCESS, FAILED)")
	limit := flag.Int("limit", 50, "maximum executions to print, 0 for all")
	csvPath := flag.String("csv", "", "also write the selected executions to this CSV file")
	flag.Parse()

	ctx := context.Background()
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: logger.NewStdLogger(logger.LevelWarn)})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer repo.Close()

	led := ledger.New(ledger.Config{Repo: repo})
	if err := led.Load(ctx); err != nil {
		log.Fatalf("Error loading executions: %v", err)
	}

	stats := led.Stats()
	fmt.Println("## Execution Statistics")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Total\tSuccess\tFailed\tPending\tVolume\tSuccessRate%\t")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%.8g\t%.2f\t\n",
		stats.TotalTrades,
		stats.SuccessfulTrades,
		stats.FailedTrades,
		stats.PendingTrades,
		stats.TotalVolume,
		stats.SuccessRatePct,
	)
	w.Flush()

	selected := filter(led.ListAll(), domain.ExecutionStatus(strings.ToUpper(*status)), *limit)

	fmt.Println("\n## Executions (newest first)")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Time\tSymbol\tSide\tAmount\tPrice\tStatus\tReference/Error\tTarget")
	for _, e := range selected {
		symbol := e.Symbol
		if symbol == "" {
			symbol = e.AssetAddress
		}
		outcome := e.VenueReference
		if e.Status == domain.StatusFailed {
			outcome = e.ErrorDetail
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			symbol,
			e.Direction,
			e.Amount,
			e.Price,
			e.Status,
			outcome,
			e.TargetID,
		)
	}
	w.Flush()

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatalf("Error creating CSV file: %v", err)
		}
		defer f.Close()
		if err := utils.WriteExecutionsCSV(f, selected); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("\nWrote %d executions to %s\n", len(selected), *csvPath)
	}
}

func filter(all []domain.Execution, status domain.ExecutionStatus, limit int) []domain.Execution {
	out := make([]domain.Execution, 0, len(all))
	for _, e := range all {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
