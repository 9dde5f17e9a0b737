package match

import "github.com/shopspring/decimal"

const (
	// EngineVersion is the current version of the order book
	EngineVersion = "v1.0.0"

	// DefaultMarketID names the single instrument when none is configured.
	DefaultMarketID = "SIM"
)

// DefaultFallbackMark is the mark used before any reference price or trade exists.
var DefaultFallbackMark = decimal.NewFromInt(100)
