package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

// Repository implements the ports.TargetRepository and ports.ExecutionRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository: %w", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trigger_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %v: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %v: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer at a time; the registry and ledger already serialize their own writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS targets (
		id TEXT PRIMARY KEY,
		asset_address TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		target_price REAL NOT NULL,
		amount REAL NOT NULL,
		slippage_tolerance_pct REAL NOT NULL,
		strategy TEXT NOT NULL,
		conditions TEXT NOT NULL DEFAULT '[]',
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		target_id TEXT NOT NULL,
		asset_address TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL,
		venue_reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error_detail TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMP NOT NULL,
		finalized_at TIMESTAMP DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_targets_created_at ON targets (created_at);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
	CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions (timestamp);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TargetRepository Implementation ---

// SaveTarget inserts or replaces a target by ID.
func (r *Repository) SaveTarget(ctx context.Context, t *domain.Target) error {
	const query = `
	INSERT INTO targets (id, asset_address, symbol, target_price, amount, slippage_tolerance_pct,
	                     strategy, conditions, state, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		asset_address = excluded.asset_address,
		symbol = excluded.symbol,
		target_price = excluded.target_price,
		amount = excluded.amount,
		slippage_tolerance_pct = excluded.slippage_tolerance_pct,
		strategy = excluded.strategy,
		conditions = excluded.conditions,
		state = excluded.state,
		updated_at = excluded.updated_at`

	conditions := t.Conditions
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	encoded, err := json.Marshal(conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions for target %s: %w", t.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.AssetAddress, t.Symbol, t.TargetPrice, t.Amount, t.SlippageTolerancePct,
		string(t.Strategy), string(encoded), string(t.State), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save target %s: %v: %w", t.ID, err, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Target saved", map[string]interface{}{"targetID": t.ID, "state": t.State})
	return nil
}

// DeleteTarget removes a target. Deleting an unknown ID is not an error.
func (r *Repository) DeleteTarget(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete target %s: %v: %w", id, err, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Target deleted", map[string]interface{}{"targetID": id})
	return nil
}

// FindAllTargets retrieves all targets in creation order.
func (r *Repository) FindAllTargets(ctx context.Context) ([]*domain.Target, error) {
	const query = `
	SELECT id, asset_address, symbol, target_price, amount, slippage_tolerance_pct,
	       strategy, conditions, state, created_at, updated_at
	FROM targets
	ORDER BY created_at ASC, rowid ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %v: %w", err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	targets := make([]*domain.Target, 0)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target rows: %w", err)
	}
	return targets, nil
}

// --- ExecutionRepository Implementation ---

// SaveExecution inserts or replaces an execution by ID.
func (r *Repository) SaveExecution(ctx context.Context, e *domain.Execution) error {
	const query = `
	INSERT INTO executions (id, target_id, asset_address, symbol, direction, amount, price,
	                        venue_reference, status, error_detail, timestamp, finalized_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		venue_reference = excluded.venue_reference,
		status = excluded.status,
		error_detail = excluded.error_detail,
		finalized_at = excluded.finalized_at`

	var finalizedAt sql.NullTime
	if !e.FinalizedAt.IsZero() {
		finalizedAt = sql.NullTime{Time: e.FinalizedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TargetID, e.AssetAddress, e.Symbol, string(e.Direction), e.Amount, e.Price,
		e.VenueReference, string(e.Status), e.ErrorDetail, e.Timestamp.UTC(), finalizedAt)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %v: %w", e.ID, err, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Execution saved", map[string]interface{}{"executionID": e.ID, "status": e.Status})
	return nil
}

// FindAllExecutions retrieves all executions, newest first.
func (r *Repository) FindAllExecutions(ctx context.Context) ([]*domain.Execution, error) {
	const query = `
	SELECT id, target_id, asset_address, symbol, direction, amount, price,
	       venue_reference, status, error_detail, timestamp, finalized_at
	FROM executions
	ORDER BY timestamp DESC, rowid DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %v: %w", err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	executions := make([]*domain.Execution, 0)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}
	return executions, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(s scanner) (*domain.Target, error) {
	t := &domain.Target{}
	var strategy, state, conditions string
	err := s.Scan(
		&t.ID, &t.AssetAddress, &t.Symbol, &t.TargetPrice, &t.Amount, &t.SlippageTolerancePct,
		&strategy, &conditions, &state, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Strategy = domain.Strategy(strategy)
	t.State = domain.TargetState(state)
	if err := json.Unmarshal([]byte(conditions), &t.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions for target %s: %w", t.ID, err)
	}
	return t, nil
}

func scanExecution(s scanner) (*domain.Execution, error) {
	e := &domain.Execution{}
	var direction, status string
	var finalizedAt sql.NullTime
	err := s.Scan(
		&e.ID, &e.TargetID, &e.AssetAddress, &e.Symbol, &direction, &e.Amount, &e.Price,
		&e.VenueReference, &status, &e.ErrorDetail, &e.Timestamp, &finalizedAt)
	if err != nil {
		return nil, err
	}
	e.Direction = domain.OrderSide(direction)
	e.Status = domain.ExecutionStatus(status)
	if finalizedAt.Valid {
		e.FinalizedAt = finalizedAt.Time
	}
	return e, nil
}
