package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

type mockExecutionRepo struct {
	saved   map[string]domain.Execution
	stored  []*domain.Execution
	saveErr error
}

func (m *mockExecutionRepo) SaveExecution(ctx context.Context, e *domain.Execution) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = make(map[string]domain.Execution)
	}
	m.saved[e.ID] = *e
	return nil
}

func (m *mockExecutionRepo) FindAllExecutions(ctx context.Context) ([]*domain.Execution, error) {
	return m.stored, nil
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func pending(id string, amount float64, at time.Time) domain.Execution {
	return domain.Execution{
		ID:           id,
		TargetID:     "target-" + id,
		AssetAddress: "FOO",
		Symbol:       "FOO",
		Direction:    domain.Buy,
		Amount:       amount,
		Price:        1,
		Status:       domain.StatusPending,
		Timestamp:    at,
	}
}

func TestLedger_StatsSuccessRate(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, l.Record(ctx, pending(fmt.Sprintf("e%d", i), 0.1, base.Add(time.Duration(i)*time.Second))))
	}
	for i := 0; i < 3; i++ {
		_, err := l.Finalize(ctx, fmt.Sprintf("e%d", i), domain.StatusSuccess, "ref", "")
		require.NoError(t, err)
	}
	_, err := l.Finalize(ctx, "e3", domain.StatusFailed, "", "slippage")
	require.NoError(t, err)

	s := l.Stats()
	assert.Equal(t, 6, s.TotalTrades)
	assert.Equal(t, 3, s.SuccessfulTrades)
	assert.Equal(t, 1, s.FailedTrades)
	assert.Equal(t, 2, s.PendingTrades)
	assert.Equal(t, 75.0, s.SuccessRatePct)
	assert.Equal(t, 0.6, s.TotalVolume, "volume includes pending executions without float drift")
}

func TestLedger_StatsEmptyAndAllPending(t *testing.T) {
	l := New(Config{})
	assert.Equal(t, domain.Stats{}, l.Stats())

	require.NoError(t, l.Record(context.Background(), pending("p", 5, base)))
	s := l.Stats()
	assert.Equal(t, 1, s.TotalTrades)
	assert.Equal(t, 0.0, s.SuccessRatePct)
	assert.Equal(t, 5.0, s.TotalVolume)
}

func TestLedger_FinalizeTransitions(t *testing.T) {
	clock := base.Add(time.Minute)
	l := New(Config{Now: func() time.Time { return clock }})
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, pending("e1", 1, base)))

	_, err := l.Finalize(ctx, "e1", domain.StatusPending, "", "")
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))

	got, err := l.Finalize(ctx, "e1", domain.StatusFailed, "", "high risk asset")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "high risk asset", got.ErrorDetail)
	assert.Equal(t, clock, got.FinalizedAt)

	_, err = l.Finalize(ctx, "e1", domain.StatusSuccess, "0xabc", "")
	assert.True(t, errors.Is(err, ports.ErrAlreadyFinal), "terminal executions are immutable")

	stored, _ := l.Get("e1")
	assert.Equal(t, domain.StatusFailed, stored.Status)

	_, err = l.Finalize(ctx, "missing", domain.StatusSuccess, "", "")
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestLedger_SuccessDropsErrorDetail(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, pending("e1", 1, base)))

	got, err := l.Finalize(ctx, "e1", domain.StatusSuccess, "order-42", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "order-42", got.VenueReference)
	assert.Empty(t, got.ErrorDetail)
}

func TestLedger_RecordRejectsDuplicates(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, pending("e1", 1, base)))
	assert.Error(t, l.Record(ctx, pending("e1", 1, base)))
	assert.Error(t, l.Record(ctx, domain.Execution{}))
}

func TestLedger_ListAllNewestFirst(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, pending("old", 1, base)))
	require.NoError(t, l.Record(ctx, pending("new", 1, base.Add(time.Hour))))
	require.NoError(t, l.Record(ctx, pending("tie-a", 1, base.Add(time.Minute))))
	require.NoError(t, l.Record(ctx, pending("tie-b", 1, base.Add(time.Minute))))

	all := l.ListAll()
	require.Len(t, all, 4)
	ids := []string{all[0].ID, all[1].ID, all[2].ID, all[3].ID}
	assert.Equal(t, []string{"new", "tie-b", "tie-a", "old"}, ids)

	_, err := l.Finalize(ctx, "old", domain.StatusSuccess, "r", "")
	require.NoError(t, err)
	assert.Len(t, l.ListPending(), 3)
}

func TestLedger_WriteThroughAndLoad(t *testing.T) {
	repo := &mockExecutionRepo{}
	l := New(Config{Repo: repo})
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, pending("e1", 2, base)))
	_, err := l.Finalize(ctx, "e1", domain.StatusSuccess, "ref-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, repo.saved["e1"].Status)

	newest := pending("b", 1, base.Add(time.Hour))
	oldest := pending("a", 1, base)
	repo.stored = []*domain.Execution{&newest, &oldest}
	restored := New(Config{Repo: repo})
	require.NoError(t, restored.Load(ctx))
	all := restored.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
}

func TestLedger_FinalizeKeepsStateWhenPersistFails(t *testing.T) {
	repo := &mockExecutionRepo{}
	l := New(Config{Repo: repo})
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, pending("e1", 1, base)))

	repo.saveErr = errors.New("locked")
	_, err := l.Finalize(ctx, "e1", domain.StatusSuccess, "ref", "")
	assert.Error(t, err)

	got, _ := l.Get("e1")
	assert.Equal(t, domain.StatusSuccess, got.Status)
}

// Run with -race: listing must not read entries Finalize is rewriting.
func TestLedger_ListAllConcurrentWithFinalize(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	base := time.Now()

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, l.Record(ctx, pending(fmt.Sprintf("e%d", i), 1, base)))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := l.Finalize(ctx, fmt.Sprintf("e%d", i), domain.StatusSuccess, "ref", "")
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			all := l.ListAll()
			assert.Len(t, all, n)
			_ = l.ListPending()
		}
	}()
	wg.Wait()

	assert.Empty(t, l.ListPending())
	assert.Equal(t, "e199", l.ListAll()[0].ID, "ties keep the most recently recorded first")
}
