package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

type mockTargetRepo struct {
	mu      sync.Mutex
	saved   map[string]domain.Target
	deleted []string
	saveErr error
	loaded  []*domain.Target
}

func newMockTargetRepo() *mockTargetRepo {
	return &mockTargetRepo{saved: make(map[string]domain.Target)}
}

func (m *mockTargetRepo) SaveTarget(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[t.ID] = t.Clone()
	return nil
}

func (m *mockTargetRepo) DeleteTarget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.saved, id)
	return nil
}

func (m *mockTargetRepo) FindAllTargets(ctx context.Context) ([]*domain.Target, error) {
	return m.loaded, nil
}

func validParams() NewTargetParams {
	return NewTargetParams{
		AssetAddress:         "FOO",
		Symbol:               "FOO",
		TargetPrice:          0.001,
		Amount:               0.1,
		SlippageTolerancePct: 1,
		Strategy:             domain.StrategyBuy,
		Active:               true,
	}
}

func TestRegistry_AddValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *NewTargetParams)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *NewTargetParams) {}},
		{name: "zero amount", mutate: func(p *NewTargetParams) { p.Amount = 0 }, wantErr: true},
		{name: "negative amount", mutate: func(p *NewTargetParams) { p.Amount = -1 }, wantErr: true},
		{name: "zero target price", mutate: func(p *NewTargetParams) { p.TargetPrice = 0 }, wantErr: true},
		{name: "slippage below range", mutate: func(p *NewTargetParams) { p.SlippageTolerancePct = -0.1 }, wantErr: true},
		{name: "slippage above range", mutate: func(p *NewTargetParams) { p.SlippageTolerancePct = 100.5 }, wantErr: true},
		{name: "slippage at bounds", mutate: func(p *NewTargetParams) { p.SlippageTolerancePct = 100 }},
		{name: "unknown strategy", mutate: func(p *NewTargetParams) { p.Strategy = "HOLD" }, wantErr: true},
		{name: "missing asset", mutate: func(p *NewTargetParams) { p.AssetAddress = "" }, wantErr: true},
		{
			name: "bad condition operator",
			mutate: func(p *NewTargetParams) {
				p.Conditions = []domain.Condition{{Metric: domain.MetricLiquidity, Operator: "!=", Threshold: 1}}
			},
			wantErr: true,
		},
		{
			name: "valid conditions",
			mutate: func(p *NewTargetParams) {
				p.Conditions = []domain.Condition{
					{Metric: domain.MetricLiquidity, Operator: domain.OpGreater, Threshold: 10000},
					{Metric: domain.MetricHolders, Operator: domain.OpGreaterEqual, Threshold: 50},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{})
			p := validParams()
			tt.mutate(&p)

			id, err := r.Add(context.Background(), p)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ports.ErrInvalidTarget))
				assert.Equal(t, 0, r.Len())
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)
		})
	}
}

func TestRegistry_AddInitialState(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	p := validParams()
	activeID, err := r.Add(ctx, p)
	require.NoError(t, err)

	p.Active = false
	inactiveID, err := r.Add(ctx, p)
	require.NoError(t, err)
	assert.NotEqual(t, activeID, inactiveID)

	active, _ := r.Get(activeID)
	inactive, _ := r.Get(inactiveID)
	assert.Equal(t, domain.TargetActive, active.State)
	assert.Equal(t, domain.TargetInactive, inactive.State)
}

func TestRegistry_UpdatePreservesIdentity(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := created
	r := New(Config{Now: func() time.Time { return clock }})
	ctx := context.Background()

	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)

	clock = created.Add(time.Hour)
	price := 0.002
	strategy := domain.StrategyBoth
	require.NoError(t, r.Update(ctx, id, TargetPatch{TargetPrice: &price, Strategy: &strategy}))

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, clock, got.UpdatedAt)
	assert.Equal(t, 0.002, got.TargetPrice)
	assert.Equal(t, domain.StrategyBoth, got.Strategy)
	assert.Equal(t, 0.1, got.Amount, "unpatched fields are kept")
}

func TestRegistry_UpdateErrors(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	bad := -5.0
	err := r.Update(ctx, "missing", TargetPatch{Amount: &bad})
	assert.True(t, errors.Is(err, ports.ErrNotFound))

	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)

	err = r.Update(ctx, id, TargetPatch{Amount: &bad})
	assert.True(t, errors.Is(err, ports.ErrInvalidTarget))

	got, _ := r.Get(id)
	assert.Equal(t, 0.1, got.Amount, "rejected update must not change the target")
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	repo := newMockTargetRepo()
	r := New(Config{Repo: repo})
	ctx := context.Background()

	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, id))
	require.NoError(t, r.Remove(ctx, id))
	require.NoError(t, r.Remove(ctx, "never-existed"))
	require.NoError(t, r.Remove(ctx, "never-existed"))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, repo.saved)
}

func TestRegistry_ToggleAndSetActive(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)

	require.NoError(t, r.Toggle(ctx, id))
	got, _ := r.Get(id)
	assert.False(t, got.IsActive())

	require.NoError(t, r.Toggle(ctx, id))
	got, _ = r.Get(id)
	assert.True(t, got.IsActive())

	require.NoError(t, r.SetActive(ctx, id, false))
	got, _ = r.Get(id)
	assert.Equal(t, domain.TargetInactive, got.State)

	assert.True(t, errors.Is(r.Toggle(ctx, "missing"), ports.ErrNotFound))
	assert.True(t, errors.Is(r.SetActive(ctx, "missing", true), ports.ErrNotFound))
}

func TestRegistry_MarkFired(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)

	fired, err := r.MarkFired(ctx, id)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = r.MarkFired(ctx, id)
	require.NoError(t, err)
	assert.False(t, fired, "a fired target cannot fire again")

	got, _ := r.Get(id)
	assert.Equal(t, domain.TargetFired, got.State)
	assert.Empty(t, r.ListActive())

	// Re-enabling a fired target is an explicit caller action.
	require.NoError(t, r.Toggle(ctx, id))
	assert.Len(t, r.ListActive(), 1)

	fired, err = r.MarkFired(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestRegistry_MarkFiredConcurrent(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()
	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := r.MarkFired(ctx, id); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistry_ListOrderAndCopies(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	var ids []string
	for _, sym := range []string{"A", "B", "C", "D"} {
		p := validParams()
		p.Symbol = sym
		p.AssetAddress = sym
		p.Conditions = []domain.Condition{{Metric: domain.MetricVolume, Operator: domain.OpGreater, Threshold: 1}}
		id, err := r.Add(ctx, p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, r.Remove(ctx, ids[1]))
	require.NoError(t, r.SetActive(ctx, ids[2], false))

	all := r.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"A", "C", "D"}, []string{all[0].Symbol, all[1].Symbol, all[2].Symbol})

	active := r.ListActive()
	require.Len(t, active, 2)
	assert.Equal(t, "A", active[0].Symbol)
	assert.Equal(t, "D", active[1].Symbol)

	all[0].Conditions[0].Threshold = 999
	fresh, _ := r.Get(ids[0])
	assert.Equal(t, 1.0, fresh.Conditions[0].Threshold, "returned targets must not alias registry state")

	assert.Equal(t, []string{"A", "C", "D"}, r.Assets())
}

func TestRegistry_PersistenceFailureRollsBack(t *testing.T) {
	repo := newMockTargetRepo()
	r := New(Config{Repo: repo})
	ctx := context.Background()

	id, err := r.Add(ctx, validParams())
	require.NoError(t, err)
	assert.Contains(t, repo.saved, id)

	repo.saveErr = errors.New("disk full")
	_, err = r.Add(ctx, validParams())
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())

	err = r.Toggle(ctx, id)
	assert.Error(t, err)
	got, _ := r.Get(id)
	assert.True(t, got.IsActive(), "state change must roll back when persistence fails")
}

func TestRegistry_Load(t *testing.T) {
	repo := newMockTargetRepo()
	repo.loaded = []*domain.Target{
		{ID: "t1", AssetAddress: "A", Symbol: "A", TargetPrice: 1, Amount: 1, Strategy: domain.StrategyBuy, State: domain.TargetActive},
		{ID: "t2", AssetAddress: "B", Symbol: "B", TargetPrice: 1, Amount: 1, Strategy: domain.StrategySell, State: domain.TargetFired},
	}
	r := New(Config{Repo: repo})
	require.NoError(t, r.Load(context.Background()))

	all := r.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "t1", all[0].ID)
	assert.Len(t, r.ListActive(), 1)
}
