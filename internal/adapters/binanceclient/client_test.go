package binanceclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeExchange serves canned Binance spot responses keyed by path.
type fakeExchange struct {
	mu        sync.Mutex
	responses map[string]string
	status    map[string]int
	orders    []map[string]string
}

func newFakeExchange(t *testing.T) (*fakeExchange, *Client) {
	t.Helper()
	f := &fakeExchange{responses: map[string]string{}, status: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:       "key",
		SecretKey:    "secret",
		BaseURL:      srv.URL,
		FundingAsset: "usdt",
		DepthLimit:   5,
		Logger:       &mockLogger{},
		Now:          func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, err)
	return f, c
}

func (f *fakeExchange) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/v3/order" {
		_ = r.ParseForm()
		f.orders = append(f.orders, map[string]string{
			"symbol":        r.Form.Get("symbol"),
			"side":          r.Form.Get("side"),
			"type":          r.Form.Get("type"),
			"quantity":      r.Form.Get("quantity"),
			"quoteOrderQty": r.Form.Get("quoteOrderQty"),
		})
	}
	body, ok := f.responses[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":-1,"msg":"unexpected path"}`))
		return
	}
	if code := f.status[r.URL.Path]; code != 0 {
		w.WriteHeader(code)
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeExchange) set(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = body
}

func (f *fakeExchange) fail(path string, code int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = body
	f.status[path] = code
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func TestPair(t *testing.T) {
	_, c := newFakeExchange(t)
	assert.Equal(t, "BTCUSDT", c.Pair("btc"))
	assert.Equal(t, "BTCUSDT", c.Pair("BTCUSDT"))
	assert.Equal(t, "USDTUSDT", c.Pair("USDT"))
}

func TestFetchSnapshot(t *testing.T) {
	f, c := newFakeExchange(t)
	f.set("/api/v3/ticker/24hr", `[{"symbol":"FOOUSDT","lastPrice":"0.00090000","quoteVolume":"15000.50"}]`)
	f.set("/api/v3/depth", `{"lastUpdateId":1,"bids":[["0.00089","1000000"],["0.00088","500000"]],"asks":[["0.00091","10"]]}`)

	snap, err := c.FetchSnapshot(context.Background(), "FOO")
	require.NoError(t, err)
	assert.Equal(t, "FOO", snap.AssetAddress)
	assert.Equal(t, 0.0009, snap.Price)
	assert.Equal(t, 15000.5, snap.Volume24h)
	assert.Equal(t, 1330.0, snap.Liquidity)
	assert.Equal(t, uint64(0), snap.Holders)
	assert.Equal(t, int64(1700000000000), snap.Timestamp)
}

func TestFetchSnapshot_APIErrors(t *testing.T) {
	f, c := newFakeExchange(t)
	f.fail("/api/v3/ticker/24hr", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`)
	f.set("/api/v3/depth", `{"lastUpdateId":1,"bids":[],"asks":[]}`)

	_, err := c.FetchSnapshot(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrNotFound))

	f.fail("/api/v3/ticker/24hr", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests."}`)
	_, err = c.FetchSnapshot(context.Background(), "FOO")
	assert.True(t, errors.Is(err, ports.ErrRateLimited))
}

func TestIsHighRisk(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr error
	}{
		{
			name: "trading",
			body: `{"symbols":[{"symbol":"FOOUSDT","status":"TRADING","isSpotTradingAllowed":true}]}`,
			want: false,
		},
		{
			name: "halted",
			body: `{"symbols":[{"symbol":"FOOUSDT","status":"HALT","isSpotTradingAllowed":true}]}`,
			want: true,
		},
		{
			name: "spot trading disabled",
			body: `{"symbols":[{"symbol":"FOOUSDT","status":"TRADING","isSpotTradingAllowed":false}]}`,
			want: true,
		},
		{
			name: "not in response",
			body: `{"symbols":[]}`,
			want: true,
		},
		{
			name:   "unlisted symbol",
			status: http.StatusBadRequest,
			body:   `{"code":-1121,"msg":"Invalid symbol."}`,
			want:   true,
		},
		{
			name:    "bad keys",
			status:  http.StatusUnauthorized,
			body:    `{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`,
			wantErr: ports.ErrInvalidAPIKeys,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeExchange(t)
			if tt.status != 0 {
				f.fail("/api/v3/exchangeInfo", tt.status, tt.body)
			} else {
				f.set("/api/v3/exchangeInfo", tt.body)
			}

			got, err := c.IsHighRisk(context.Background(), "FOO")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSwap_Buy(t *testing.T) {
	f, c := newFakeExchange(t)
	f.set("/api/v3/ticker/bookTicker", `[{"symbol":"FOOUSDT","bidPrice":"0.00089","bidQty":"1000","askPrice":"0.000905","askQty":"1000"}]`)
	f.set("/api/v3/order", `{"symbol":"FOOUSDT","orderId":4242,"status":"FILLED","executedQty":"111.1"}`)

	res, err := c.Swap(context.Background(), ports.SwapRequest{
		AssetIn: "USDT", AssetOut: "FOO", AmountIn: 0.1, MaxSlippagePct: 1, ExpectedPrice: 0.0009,
	})
	require.NoError(t, err)
	assert.Equal(t, "4242", res.Reference)

	require.Len(t, f.orders, 1)
	assert.Equal(t, "FOOUSDT", f.orders[0]["symbol"])
	assert.Equal(t, "BUY", f.orders[0]["side"])
	assert.Equal(t, "MARKET", f.orders[0]["type"])
	assert.Equal(t, "0.10000000", f.orders[0]["quoteOrderQty"])
	assert.Empty(t, f.orders[0]["quantity"])
}

func TestSwap_Sell(t *testing.T) {
	f, c := newFakeExchange(t)
	f.set("/api/v3/ticker/bookTicker", `[{"symbol":"ETHUSDT","bidPrice":"2499","bidQty":"3","askPrice":"2501","askQty":"3"}]`)
	f.set("/api/v3/order", `{"symbol":"ETHUSDT","orderId":7,"status":"FILLED","executedQty":"0.04"}`)

	res, err := c.Swap(context.Background(), ports.SwapRequest{
		AssetIn: "ETH", AssetOut: "USDT", AmountIn: 0.04, MaxSlippagePct: 0.5, ExpectedPrice: 2500,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", res.Reference)
	require.Len(t, f.orders, 1)
	assert.Equal(t, "SELL", f.orders[0]["side"])
	assert.Equal(t, "0.04", f.orders[0]["quantity"])
}

func TestSwap_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     ports.SwapRequest
		book    string
		order   string
		status  int
		wantErr error
	}{
		{
			name:    "slippage on buy",
			req:     ports.SwapRequest{AssetIn: "USDT", AssetOut: "FOO", AmountIn: 1, MaxSlippagePct: 1, ExpectedPrice: 1},
			book:    `[{"bidPrice":"1.00","bidQty":"5","askPrice":"1.02","askQty":"5"}]`,
			wantErr: ports.ErrSlippageExceeded,
		},
		{
			name:    "slippage on sell",
			req:     ports.SwapRequest{AssetIn: "FOO", AssetOut: "USDT", AmountIn: 1, MaxSlippagePct: 1, ExpectedPrice: 1},
			book:    `[{"bidPrice":"0.95","bidQty":"5","askPrice":"1.00","askQty":"5"}]`,
			wantErr: ports.ErrSlippageExceeded,
		},
		{
			name:    "empty book",
			req:     ports.SwapRequest{AssetIn: "USDT", AssetOut: "FOO", AmountIn: 1, MaxSlippagePct: 1, ExpectedPrice: 1},
			book:    `[{"bidPrice":"0","bidQty":"0","askPrice":"0","askQty":"0"}]`,
			wantErr: ports.ErrInsufficientLiquidity,
		},
		{
			name:    "no funding side",
			req:     ports.SwapRequest{AssetIn: "FOO", AssetOut: "BAR", AmountIn: 1},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "non-positive amount",
			req:     ports.SwapRequest{AssetIn: "USDT", AssetOut: "FOO"},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "insufficient balance",
			req:     ports.SwapRequest{AssetIn: "USDT", AssetOut: "FOO", AmountIn: 1, MaxSlippagePct: 1, ExpectedPrice: 1},
			book:    `[{"bidPrice":"1","bidQty":"5","askPrice":"1","askQty":"5"}]`,
			order:   `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`,
			status:  http.StatusBadRequest,
			wantErr: ports.ErrInsufficientFunds,
		},
		{
			name:    "expired order",
			req:     ports.SwapRequest{AssetIn: "USDT", AssetOut: "FOO", AmountIn: 1, MaxSlippagePct: 1, ExpectedPrice: 1},
			book:    `[{"bidPrice":"1","bidQty":"5","askPrice":"1","askQty":"5"}]`,
			order:   `{"symbol":"FOOUSDT","orderId":9,"status":"EXPIRED"}`,
			wantErr: ports.ErrOrderPlacementFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeExchange(t)
			if tt.book != "" {
				f.set("/api/v3/ticker/bookTicker", tt.book)
			}
			if tt.order != "" {
				if tt.status != 0 {
					f.fail("/api/v3/order", tt.status, tt.order)
				} else {
					f.set("/api/v3/order", tt.order)
				}
			}

			res, err := c.Swap(context.Background(), tt.req)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.order == "" {
				assert.Empty(t, f.orders, "no order is placed when the pre-trade check fails")
			}
		})
	}
}
