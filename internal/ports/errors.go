package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Target / ledger errors
	ErrInvalidTarget = errors.New("invalid trade target")
	ErrAlreadyFinal  = errors.New("execution already in a terminal state")

	// Trading runtime errors. These never escape the engine loop.
	ErrFeedUnavailable       = errors.New("market feed unavailable for asset")
	ErrHighRiskAsset         = errors.New("high risk asset")
	ErrVenue                 = errors.New("venue rejected swap")
	ErrSlippageExceeded      = errors.New("price moved beyond slippage tolerance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
