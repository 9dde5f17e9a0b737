package strategy

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the quoting and risk parameters. Zero values of the optional
// overlays disable them.
type Config struct {
	StartingCash decimal.Decimal
	MaxInventory int64
	OrderSize    int64

	// HalfSpread is the fixed distance from mid. When SpreadMultiplier is
	// positive the half spread is derived from the live market spread instead.
	HalfSpread       decimal.Decimal
	SpreadMultiplier decimal.Decimal
	PriceFloor       decimal.Decimal

	// SkewFactor shifts both quotes by -inventory * SkewFactor.
	SkewFactor decimal.Decimal

	VolatilityWindow int
	VolatilityLow    float64
	VolatilityHigh   float64

	MaxLoss        decimal.Decimal // absolute P&L floor, e.g. 500 stops quoting below -500
	MaxDrawdownPct float64         // fraction of peak equity, e.g. 0.05

	// InventoryPenalty is charged per share of inventory beyond 80% of MaxInventory.
	InventoryPenalty decimal.Decimal
	TransactionCost  decimal.Decimal // per share

	SellOnlyWhenFlatOrLong bool
	ShortSkipProbability   float64

	TradeHistory int
}

// DefaultConfig returns the baseline quoting configuration.
func DefaultConfig() Config {
	return Config{
		StartingCash:     decimal.NewFromInt(10000),
		MaxInventory:     10,
		OrderSize:        1,
		HalfSpread:       decimal.NewFromInt(1),
		PriceFloor:       decimal.RequireFromString("0.01"),
		VolatilityWindow: 20,
		TradeHistory:     100,
	}
}

// Option configures a Strategy.
type Option func(*Strategy)

func WithConfig(cfg Config) Option {
	return func(s *Strategy) {
		s.cfg = cfg
	}
}

func WithStartingCash(cash decimal.Decimal) Option {
	return func(s *Strategy) {
		s.cfg.StartingCash = cash
	}
}

func WithMaxInventory(n int64) Option {
	return func(s *Strategy) {
		s.cfg.MaxInventory = n
	}
}

func WithOrderSize(n int64) Option {
	return func(s *Strategy) {
		s.cfg.OrderSize = n
	}
}

func WithHalfSpread(half decimal.Decimal) Option {
	return func(s *Strategy) {
		s.cfg.HalfSpread = half
	}
}

// WithSpreadMultiplier quotes a fraction of the live spread: (ask-bid) * m / 2.
func WithSpreadMultiplier(m decimal.Decimal) Option {
	return func(s *Strategy) {
		s.cfg.SpreadMultiplier = m
	}
}

func WithSkewFactor(f decimal.Decimal) Option {
	return func(s *Strategy) {
		s.cfg.SkewFactor = f
	}
}

// WithVolatility enables spread widening above the low/high thresholds of
// return standard deviation over a rolling window of mids.
func WithVolatility(window int, low, high float64) Option {
	return func(s *Strategy) {
		s.cfg.VolatilityWindow = window
		s.cfg.VolatilityLow = low
		s.cfg.VolatilityHigh = high
	}
}

// WithDrawdownLimits suspends quoting below -maxLoss P&L or beyond maxDrawdownPct from peak.
func WithDrawdownLimits(maxLoss decimal.Decimal, maxDrawdownPct float64) Option {
	return func(s *Strategy) {
		s.cfg.MaxLoss = maxLoss
		s.cfg.MaxDrawdownPct = maxDrawdownPct
	}
}

func WithInventoryPenalty(rate decimal.Decimal) Option {
	return func(s *Strategy) {
		s.cfg.InventoryPenalty = rate
	}
}

func WithTransactionCost(perShare decimal.Decimal) Option {
	return func(s *Strategy) {
		s.cfg.TransactionCost = perShare
	}
}

// WithSellOnlyWhenFlatOrLong suppresses sell quotes while short.
func WithSellOnlyWhenFlatOrLong() Option {
	return func(s *Strategy) {
		s.cfg.SellOnlyWhenFlatOrLong = true
	}
}

// WithShortSkipProbability skips the sell quote with probability p while short.
func WithShortSkipProbability(p float64, rng *rand.Rand) Option {
	return func(s *Strategy) {
		s.cfg.ShortSkipProbability = p
		s.rng = rng
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) {
		s.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Strategy) {
		s.now = now
	}
}
