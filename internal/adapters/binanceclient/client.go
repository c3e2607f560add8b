package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"triggerBot/internal/domain"
	"triggerBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	defaultFundingAsset = "USDT"
	defaultDepthLimit   = 20

	symbolStatusTrading = "TRADING"
)

// Client implements ports.SnapshotSource and ports.Venue against the Binance spot API.
//
// Assets are base-asset tickers ("BTC"); each is traded against the funding
// asset, so "BTC" maps to the "BTCUSDT" pair.
type Client struct {
	spotClient   *binance.Client
	logger       ports.Logger
	fundingAsset string
	depthLimit   int
	now          func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey       string
	SecretKey    string
	UseTestnet   bool
	BaseURL      string // Overrides the production/testnet URL when set
	FundingAsset string // Quote asset of every traded pair
	DepthLimit   int    // Bid levels summed into liquidity
	Logger       ports.Logger
	Now          func() time.Time
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client: %w", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance spot client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	fundingAsset := strings.ToUpper(cfg.FundingAsset)
	if fundingAsset == "" {
		fundingAsset = defaultFundingAsset
	}
	depthLimit := cfg.DepthLimit
	if depthLimit <= 0 {
		depthLimit = defaultDepthLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		spotClient:   client,
		logger:       cfg.Logger,
		fundingAsset: fundingAsset,
		depthLimit:   depthLimit,
		now:          now,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1001, -1007: // Internal error; backend timeout
			mappedErr = ports.ErrExchangeUnavailable
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -1013: // Filter failure (LOT_SIZE, MIN_NOTIONAL, ...)
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2014, -2015: // API-key format invalid; invalid key, IP, or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Pair returns the trading pair symbol for an asset.
func (c *Client) Pair(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if len(asset) > len(c.fundingAsset) && strings.HasSuffix(asset, c.fundingAsset) {
		return asset
	}
	return asset + c.fundingAsset
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if _, err := c.spotClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// --- SnapshotSource Implementation ---

// FetchSnapshot builds a market snapshot from the 24h ticker and the order book.
// Holder counts do not exist on a centralized exchange and are reported as 0.
func (c *Client) FetchSnapshot(ctx context.Context, asset string) (*domain.Snapshot, error) {
	op := "FetchSnapshot"
	symbol := c.Pair(asset)

	var price, volume, liquidity float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(gctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			return fmt.Errorf("no ticker data returned for symbol %s: %w", symbol, ports.ErrNotFound)
		}
		if price, err = parseFloat(stats[0].LastPrice, "last price"); err != nil {
			return err
		}
		volume, err = parseFloat(stats[0].QuoteVolume, "quote volume")
		return err
	})
	g.Go(func() error {
		depth, err := c.spotClient.NewDepthService().Symbol(symbol).Limit(c.depthLimit).Do(gctx)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, bid := range depth.Bids {
			p, err := decimal.NewFromString(bid.Price)
			if err != nil {
				return fmt.Errorf("could not parse bid price '%s': %w", bid.Price, err)
			}
			q, err := decimal.NewFromString(bid.Quantity)
			if err != nil {
				return fmt.Errorf("could not parse bid quantity '%s': %w", bid.Quantity, err)
			}
			total = total.Add(p.Mul(q))
		}
		liquidity = total.InexactFloat64()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	return &domain.Snapshot{
		AssetAddress: asset,
		Price:        price,
		Volume24h:    volume,
		Liquidity:    liquidity,
		Holders:      0,
		Timestamp:    c.now().UnixMilli(),
	}, nil
}

// --- Venue Implementation ---

// IsHighRisk reports whether an asset's pair is unknown or not open for spot trading.
func (c *Client) IsHighRisk(ctx context.Context, asset string) (bool, error) {
	op := "IsHighRisk"
	symbol := c.Pair(asset)

	info, err := c.spotClient.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -1121 {
			c.logger.Warn(ctx, "Symbol not listed, treating as high risk", map[string]interface{}{"symbol": symbol})
			return true, nil
		}
		return false, c.handleError(ctx, err, op)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		if s.Status != symbolStatusTrading || !s.IsSpotTradingAllowed {
			c.logger.Warn(ctx, "Symbol not tradable, treating as high risk", map[string]interface{}{"symbol": symbol, "status": s.Status})
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

// Swap places a market order after checking the top of book against the
// expected price. Buys spend AmountIn of the funding asset; sells sell AmountIn
// units of the asset.
func (c *Client) Swap(ctx context.Context, req ports.SwapRequest) (*ports.SwapResult, error) {
	op := "Swap"
	if req.AmountIn <= 0 {
		return nil, fmt.Errorf("swap amount must be positive, got %v: %w", req.AmountIn, ports.ErrInvalidRequest)
	}

	var side binance.SideType
	var symbol string
	switch {
	case strings.EqualFold(req.AssetIn, c.fundingAsset):
		side, symbol = binance.SideTypeBuy, c.Pair(req.AssetOut)
	case strings.EqualFold(req.AssetOut, c.fundingAsset):
		side, symbol = binance.SideTypeSell, c.Pair(req.AssetIn)
	default:
		return nil, fmt.Errorf("one side of the swap must be %s, got %s -> %s: %w", c.fundingAsset, req.AssetIn, req.AssetOut, ports.ErrInvalidRequest)
	}
	if req.Recipient != "" {
		c.logger.Debug(ctx, "Recipient ignored, proceeds settle to the exchange account", map[string]interface{}{"recipient": req.Recipient})
	}

	if err := c.checkSlippage(ctx, symbol, side, req); err != nil {
		return nil, err
	}

	amount := decimal.NewFromFloat(req.AmountIn)
	svc := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeMarket)
	if side == binance.SideTypeBuy {
		svc = svc.QuoteOrderQty(amount.StringFixed(8))
	} else {
		svc = svc.Quantity(amount.Truncate(8).String())
	}

	c.logger.Info(ctx, "Placing market order", map[string]interface{}{"symbol": symbol, "side": side, "amount": amount.String()})
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	switch string(order.Status) {
	case "REJECTED", "EXPIRED", "CANCELED":
		return nil, fmt.Errorf("order %d for %s ended %s: %w", order.OrderID, symbol, order.Status, ports.ErrOrderPlacementFailed)
	}

	ref := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, "Market order placed", map[string]interface{}{
		"symbol":      symbol,
		"orderID":     ref,
		"status":      order.Status,
		"executedQty": order.ExecutedQuantity,
	})
	return &ports.SwapResult{Reference: ref}, nil
}

// checkSlippage rejects the swap when the side of the book it would take from
// is empty or has moved past the tolerance from the expected price.
func (c *Client) checkSlippage(ctx context.Context, symbol string, side binance.SideType, req ports.SwapRequest) error {
	op := "CheckSlippage"
	tickers, err := c.spotClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return fmt.Errorf("no book ticker for %s: %w", symbol, ports.ErrInsufficientLiquidity)
	}

	priceStr, qtyStr := tickers[0].AskPrice, tickers[0].AskQuantity
	if side == binance.SideTypeSell {
		priceStr, qtyStr = tickers[0].BidPrice, tickers[0].BidQuantity
	}
	quote, err := decimal.NewFromString(priceStr)
	if err != nil {
		return fmt.Errorf("could not parse book price '%s': %w", priceStr, err)
	}
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return fmt.Errorf("could not parse book quantity '%s': %w", qtyStr, err)
	}
	if !quote.IsPositive() || !qty.IsPositive() {
		return fmt.Errorf("empty %s side of book for %s: %w", side, symbol, ports.ErrInsufficientLiquidity)
	}
	if req.ExpectedPrice <= 0 {
		return nil
	}

	expected := decimal.NewFromFloat(req.ExpectedPrice)
	adverse := quote.Sub(expected) // Paying more on a buy
	if side == binance.SideTypeSell {
		adverse = expected.Sub(quote) // Receiving less on a sell
	}
	movedPct := adverse.Div(expected).Mul(decimal.NewFromInt(100))
	if movedPct.GreaterThan(decimal.NewFromFloat(req.MaxSlippagePct)) {
		return fmt.Errorf("%s %s quoted %s vs expected %s (%s%% > %v%%): %w",
			side, symbol, quote.String(), expected.String(), movedPct.StringFixed(4), req.MaxSlippagePct, ports.ErrSlippageExceeded)
	}
	return nil
}

func parseFloat(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse %s '%s': %w", what, s, err)
	}
	return v, nil
}
