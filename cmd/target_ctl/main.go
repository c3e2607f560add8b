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
	"triggerBot/internal/condition"
	"triggerBot/internal/domain"
	"triggerBot/internal/registry"
)

const usage = `usage: target_ctl [-db path] <command> [args]

commands:
  list                           print all targets
  add [flags]                    create a target (see target_ctl add -h)
  toggle <id>                    flip a target between active and inactive
  enable <id> | disable <id>     set a target's active state
  remove <id>                    delete a target
`

// conditionFlags collects repeated -when flags.
type conditionFlags []domain.Condition

func (c *conditionFlags) String() string {
	parts := make([]string, len(*c))
	for i, cond := range *c {
		parts[i] = condition.Format(cond)
	}
	return strings.Join(parts, ",")
}

func (c *conditionFlags) Set(s string) error {
	cond, err := condition.Parse(s)
	if err != nil {
		return err
	}
	*c = append(*c, cond)
	return nil
}

func main() {
	dbPath := flag.String("db", "./data/trigger_bot.db", "path to the SQLite database")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	appLogger := logger.NewStdLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer repo.Close()

	reg := registry.New(registry.Config{Repo: repo, Logger: appLogger})
	if err := reg.Load(ctx); err != nil {
		log.Fatalf("Error loading targets: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "list":
		printTargets(reg.ListAll())
	case "add":
		err = addTarget(ctx, reg, args)
	case "toggle":
		err = withID(args, func(id string) error { return reg.Toggle(ctx, id) })
	case "enable", "disable":
		err = withID(args, func(id string) error { return reg.SetActive(ctx, id, cmd == "enable") })
	case "remove":
		err = withID(args, func(id string) error { return reg.Remove(ctx, id) })
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func addTarget(ctx context.Context, reg *registry.Registry, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	asset := fs.String("asset", "", "asset address or ticker (required)")
	symbol := fs.String("symbol", "", "display symbol")
	price := fs.Float64("price", 0, "target price (required)")
	amount := fs.Float64("amount", 0, "amount in the funding asset (required)")
	slippage := fs.Float64("slippage", 1, "slippage tolerance in percent")
	strategy := fs.String("strategy", string(domain.StrategyBuy), "BUY, SELL or BOTH")
	inactive := fs.Bool("inactive", false, "create the target disabled")
	var conds conditionFlags
	fs.Var(&conds, "when", `extra condition such as "liquidity>10000" (repeatable)`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := reg.Add(ctx, registry.NewTargetParams{
		AssetAddress:         *asset,
		Symbol:               *symbol,
		TargetPrice:          *price,
		Amount:               *amount,
		SlippageTolerancePct: *slippage,
		Strategy:             domain.Strategy(strings.ToUpper(*strategy)),
		Conditions:           conds,
		Active:               !*inactive,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func withID(args []string, fn func(id string) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one target ID, got %d arguments", len(args))
	}
	return fn(args[0])
}

func printTargets(targets []domain.Target) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAsset\tStrategy\tTarget\tAmount\tSlippage%\tState\tConditions")
	for _, t := range targets {
		conds := conditionFlags(t.Conditions)
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%g\t%s\t%s\n",
			t.ID, t.AssetAddress, t.Strategy, t.TargetPrice, t.Amount, t.SlippageTolerancePct, t.State, conds.String())
	}
	w.Flush()
}
