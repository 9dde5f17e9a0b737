// Package simulation drives a market-making strategy against an order book
// round by round from a market feed.
package simulation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/Krish-B-Shah/order-book-trading-bot/strategy"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// Clock is a settable time source shared by the book and the strategy so a
// run is reproducible.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// RoundStatus is the per-round record of the run.
type RoundStatus struct {
	RunID        string          `json:"run_id"`
	Round        int             `json:"round"`
	Timestamp    time.Time       `json:"timestamp"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Price        decimal.Decimal `json:"price"`
	Cash         decimal.Decimal `json:"cash"`
	Inventory    int64           `json:"inventory"`
	PnL          decimal.Decimal `json:"pnl"`
	AdjustedPnL  decimal.Decimal `json:"adjusted_pnl"`
	Quotes       int             `json:"quotes"`
	Trades       int             `json:"trades"`
	ActiveOrders int             `json:"active_orders"`
	Suspension   string          `json:"suspension"`
}

// Result is everything a run produced.
type Result struct {
	RunID    xid.ID
	Rounds   []RoundStatus
	Trades   []match.Trade
	Orders   []match.Order
	Outcomes []float64
	Final    strategy.Status
}

// PnLSeries returns the per-round P&L as floats for the performance calculator.
func (r *Result) PnLSeries() []float64 {
	series := make([]float64, len(r.Rounds))
	for i, s := range r.Rounds {
		series[i] = s.PnL.InexactFloat64()
	}
	return series
}

// TradeReturns returns realized P&L per closing fill.
func (r *Result) TradeReturns() []float64 {
	return r.Outcomes
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRounds caps the number of rounds; the feed may end the run earlier.
func WithRounds(n int) RunnerOption {
	return func(r *Runner) {
		r.rounds = n
	}
}

// WithOrderType selects limit or marketable quoting.
func WithOrderType(typ match.OrderType) RunnerOption {
	return func(r *Runner) {
		r.orderType = typ
	}
}

func WithOrderFlow(flow *OrderFlow) RunnerOption {
	return func(r *Runner) {
		r.flow = flow
	}
}

// WithStaleAfter cancels strategy quotes older than d at the start of each round.
func WithStaleAfter(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.staleAfter = d
	}
}

func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithObserver is called synchronously after every round.
func WithObserver(fn func(RoundStatus)) RunnerOption {
	return func(r *Runner) {
		r.observers = append(r.observers, fn)
	}
}

// WithClock makes the runner advance clock to each snapshot's timestamp.
func WithClock(clock *Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = clock
	}
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

type Runner struct {
	runID      xid.ID
	book       *match.OrderBook
	strategy   *strategy.Strategy
	feed       Feed
	flow       *OrderFlow
	rounds     int
	orderType  match.OrderType
	staleAfter time.Duration
	metrics    *Metrics
	observers  []func(RoundStatus)
	clock      *Clock
	logger     *slog.Logger
}

func NewRunner(book *match.OrderBook, strat *strategy.Strategy, feed Feed, opts ...RunnerOption) *Runner {
	r := &Runner{
		runID:     xid.New(),
		book:      book,
		strategy:  strat,
		feed:      feed,
		rounds:    100,
		orderType: match.Limit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) RunID() xid.ID {
	return r.runID
}

// Run executes rounds until the round cap, the end of the feed or ctx
// cancellation. Each round: mark, cancel stale quotes, quote, submit,
// inject order flow, match, record. The partial result is returned with
// ctx.Err() when cancelled.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:  r.runID,
		Rounds: make([]RoundStatus, 0, r.rounds),
	}

	r.logger.Info("simulation started", "run_id", r.runID.String(), "rounds", r.rounds, "order_type", string(r.orderType))

	var err error
	for i := 1; i <= r.rounds; i++ {
		if err = ctx.Err(); err != nil {
			r.logger.Warn("simulation cancelled", "run_id", r.runID.String(), "round", i)
			break
		}

		snap, ok := r.feed.Next()
		if !ok {
			r.logger.Info("market feed exhausted", "run_id", r.runID.String(), "round", i)
			break
		}

		status := r.round(i, snap)
		result.Rounds = append(result.Rounds, status)

		if r.metrics != nil {
			r.metrics.observe(status)
		}
		for _, fn := range r.observers {
			fn(status)
		}
	}

	result.Trades = r.book.Trades()
	result.Orders = r.book.AllOrders()
	result.Outcomes = r.strategy.Outcomes()
	result.Final = r.strategy.Status()

	r.logger.Info("simulation finished", "run_id", r.runID.String(),
		"rounds", len(result.Rounds), "trades", len(result.Trades), "pnl", result.Final.PnL.StringFixed(2))

	return result, err
}

func (r *Runner) round(i int, snap MarketSnapshot) RoundStatus {
	if r.clock != nil && !snap.Timestamp.IsZero() {
		r.clock.Set(snap.Timestamp)
	}
	tradesBefore := r.book.Stats().TradeCount

	r.book.SetReferencePrice(snap.Price)
	r.strategy.MarkToMarket(snap.Price)

	if r.staleAfter > 0 {
		if n := r.strategy.CancelStale(snap.Timestamp, r.staleAfter); n > 0 {
			r.logger.Debug("stale quotes cancelled", "round", i, "count", n)
		}
	}

	quote := r.strategy.GenerateOrders(snap.Bid, snap.Ask, r.orderType)
	r.strategy.Submit(quote.Orders)

	if r.flow != nil {
		for _, o := range r.flow.Orders(snap) {
			if _, err := r.book.AddOrder(o); err != nil {
				r.logger.Warn("order flow rejected", "round", i, "error", err)
			}
		}
	}

	r.book.Match(snap.Price)

	st := r.strategy.Status()
	status := RoundStatus{
		RunID:        r.runID.String(),
		Round:        i,
		Timestamp:    snap.Timestamp,
		Bid:          snap.Bid,
		Ask:          snap.Ask,
		Price:        snap.Price,
		Cash:         st.Cash,
		Inventory:    st.Inventory,
		PnL:          st.PnL,
		AdjustedPnL:  st.AdjustedPnL,
		Quotes:       len(quote.Orders),
		Trades:       int(r.book.Stats().TradeCount - tradesBefore),
		ActiveOrders: st.ActiveOrders,
		Suspension:   quote.Suspension.String(),
	}

	r.logger.Debug("round complete", "round", i, "price", snap.Price.String(),
		"pnl", st.PnL.StringFixed(2), "inventory", st.Inventory, "trades", status.Trades)
	return status
}
