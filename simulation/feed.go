package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is the external market state for one round.
type MarketSnapshot struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// Feed yields one snapshot per round. ok is false once the feed is exhausted.
type Feed interface {
	Next() (snap MarketSnapshot, ok bool)
}

// SliceFeed replays a fixed series of snapshots.
type SliceFeed struct {
	snaps []MarketSnapshot
	pos   int
}

func NewSliceFeed(snaps []MarketSnapshot) *SliceFeed {
	return &SliceFeed{snaps: snaps}
}

func (f *SliceFeed) Next() (MarketSnapshot, bool) {
	if f.pos >= len(f.snaps) {
		return MarketSnapshot{}, false
	}
	snap := f.snaps[f.pos]
	f.pos++
	return snap, true
}

// GBMFeed generates an endless price path by geometric Brownian motion
// with a fixed bid/ask spread around each price.
type GBMFeed struct {
	Drift      float64 // mu
	Volatility float64 // sigma
	DT         float64 // step in years
	Interval   time.Duration

	price  float64
	spread decimal.Decimal
	now    time.Time
	rand   *rand.Rand
}

// NewGBMFeed starts a path at start. One step corresponds to one trading
// minute unless DT and Interval are changed.
func NewGBMFeed(start, drift, volatility float64, spread decimal.Decimal, seed int64, from time.Time) *GBMFeed {
	return &GBMFeed{
		Drift:      drift,
		Volatility: volatility,
		DT:         1.0 / (252 * 390),
		Interval:   time.Minute,
		price:      start,
		spread:     spread,
		now:        from,
		rand:       rand.New(rand.NewSource(seed)),
	}
}

func (g *GBMFeed) Next() (MarketSnapshot, bool) {
	z := g.rand.NormFloat64()
	g.price *= math.Exp((g.Drift-0.5*g.Volatility*g.Volatility)*g.DT + g.Volatility*math.Sqrt(g.DT)*z)
	g.now = g.now.Add(g.Interval)

	price := decimal.NewFromFloat(g.price).Round(2)
	half := g.spread.Div(decimal.NewFromInt(2))
	bid := price.Sub(half)
	if !bid.IsPositive() {
		bid = decimal.RequireFromString("0.01")
	}

	return MarketSnapshot{
		Bid:       bid,
		Ask:       price.Add(half),
		Price:     price,
		Volume:    100 + g.rand.Int63n(901),
		Timestamp: g.now,
	}, true
}
