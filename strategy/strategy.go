// Package strategy implements a two-sided market maker that quotes around
// the mid, skews for inventory, widens on volatility and stops quoting when
// losses or drawdown breach their limits.
package strategy

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/montanaflynn/stats"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// Book is the part of the order book the strategy trades against.
type Book interface {
	NextOrderID() uint64
	AddOrder(order *match.Order) (match.Execution, error)
	CancelOrder(id uint64) bool
	RegisterOwner(h match.FillHandler) xid.ID
}

// Suspension explains why a round produced no quotes.
type Suspension uint8

const (
	SuspendNone Suspension = iota
	SuspendMaxLoss
	SuspendDrawdown
)

func (s Suspension) String() string {
	switch s {
	case SuspendMaxLoss:
		return "max_loss"
	case SuspendDrawdown:
		return "drawdown"
	default:
		return "none"
	}
}

// Quote is the output of one quoting round.
type Quote struct {
	Orders     []*match.Order
	Suspension Suspension
}

var inventoryPenaltyThreshold = decimal.RequireFromString("0.8")

// Strategy is a market-making book participant. Cash and inventory change
// only inside OnFill; P&L is always derived from them and the latest mark.
type Strategy struct {
	cfg    Config
	book   Book
	owner  xid.ID
	logger *slog.Logger
	rng    *rand.Rand
	now    func() time.Time

	cash      decimal.Decimal
	inventory int64
	reference decimal.Decimal
	avgCost   decimal.Decimal
	realized  decimal.Decimal
	fees      decimal.Decimal
	peak      decimal.Decimal
	suspended Suspension

	mids     []float64
	active   map[uint64]int64 // order id -> submission timestamp
	wins     int
	losses   int
	outcomes []float64
}

// New creates a strategy and registers it as an owner on book.
func New(book Book, opts ...Option) *Strategy {
	s := &Strategy{
		cfg:    DefaultConfig(),
		book:   book,
		logger: slog.Default(),
		now:    time.Now,
		active: make(map[uint64]int64),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}

	s.cash = s.cfg.StartingCash
	s.peak = s.cfg.StartingCash
	s.owner = book.RegisterOwner(s)
	return s
}

// Owner returns the handle the strategy's orders carry.
func (s *Strategy) Owner() xid.ID {
	return s.owner
}

// GenerateOrders computes this round's quotes from the touch. For market
// type the quotes cross the touch; for limit type they sit around the mid.
func (s *Strategy) GenerateOrders(bid, ask decimal.Decimal, typ match.OrderType) Quote {
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	s.recordMid(mid)
	if s.reference.IsZero() {
		s.reference = mid
	}

	reason := s.checkDrawdown()
	s.suspended = reason
	if reason != SuspendNone {
		s.logger.Info("quoting suspended", "reason", reason.String(), "pnl", s.PnL().StringFixed(2))
		return Quote{Suspension: reason}
	}

	var buyPrice, sellPrice decimal.Decimal
	if typ == match.Market {
		buyPrice, sellPrice = ask, bid
	} else {
		half := s.halfSpread(bid, ask)
		skew := decimal.NewFromInt(-s.inventory).Mul(s.cfg.SkewFactor)
		buyPrice = mid.Sub(half).Add(skew).Round(2)
		sellPrice = mid.Add(half).Add(skew).Round(2)
		if buyPrice.LessThan(s.cfg.PriceFloor) {
			buyPrice = s.cfg.PriceFloor
		}
		if sellPrice.LessThan(s.cfg.PriceFloor) {
			sellPrice = s.cfg.PriceFloor
		}
	}

	var quote Quote
	if s.inventory < s.cfg.MaxInventory {
		quote.Orders = append(quote.Orders, s.newOrder(match.Buy, typ, buyPrice))
	}
	if s.allowSell() {
		quote.Orders = append(quote.Orders, s.newOrder(match.Sell, typ, sellPrice))
	}
	return quote
}

// Submit adds quoted orders to the book. Orders the book refuses are
// forgotten; market orders are never tracked as active.
func (s *Strategy) Submit(orders []*match.Order) []match.Execution {
	execs := make([]match.Execution, 0, len(orders))
	for _, o := range orders {
		exec, err := s.book.AddOrder(o)
		if err != nil {
			s.logger.Warn("quote rejected", "order_id", o.ID, "error", err)
			delete(s.active, o.ID)
			continue
		}
		if exec.Status != match.ExecRested {
			delete(s.active, o.ID)
		}
		execs = append(execs, exec)
	}
	return execs
}

func (s *Strategy) newOrder(side match.Side, typ match.OrderType, price decimal.Decimal) *match.Order {
	o := &match.Order{
		ID:        s.book.NextOrderID(),
		Side:      side,
		Type:      typ,
		Price:     price,
		Quantity:  s.cfg.OrderSize,
		Timestamp: s.now().UnixNano(),
		Owner:     s.owner,
	}
	if typ == match.Limit {
		s.active[o.ID] = o.Timestamp
	}
	return o
}

func (s *Strategy) allowSell() bool {
	if s.inventory <= -s.cfg.MaxInventory {
		return false
	}
	if s.cfg.SellOnlyWhenFlatOrLong && s.inventory < 0 {
		return false
	}
	if s.inventory < 0 && s.cfg.ShortSkipProbability > 0 && s.rng.Float64() < s.cfg.ShortSkipProbability {
		return false
	}
	return true
}

func (s *Strategy) halfSpread(bid, ask decimal.Decimal) decimal.Decimal {
	half := s.cfg.HalfSpread
	if s.cfg.SpreadMultiplier.IsPositive() {
		half = ask.Sub(bid).Mul(s.cfg.SpreadMultiplier).Div(decimal.NewFromInt(2))
	}
	if half.LessThan(s.cfg.PriceFloor) {
		half = s.cfg.PriceFloor
	}
	return half.Mul(decimal.NewFromFloat(s.VolatilityFactor()))
}

func (s *Strategy) recordMid(mid decimal.Decimal) {
	if s.cfg.VolatilityWindow <= 0 {
		return
	}
	s.mids = append(s.mids, mid.InexactFloat64())
	if len(s.mids) > s.cfg.VolatilityWindow {
		s.mids = s.mids[len(s.mids)-s.cfg.VolatilityWindow:]
	}
}

// Volatility is the population standard deviation of successive mid returns
// in the rolling window, zero until two returns exist.
func (s *Strategy) Volatility() float64 {
	if len(s.mids) < 3 {
		return 0
	}

	returns := make(stats.Float64Data, 0, len(s.mids)-1)
	for i := 1; i < len(s.mids); i++ {
		if s.mids[i-1] == 0 {
			continue
		}
		returns = append(returns, s.mids[i]/s.mids[i-1]-1)
	}

	vol, err := stats.StandardDeviationPopulation(returns)
	if err != nil {
		return 0
	}
	return vol
}

// VolatilityFactor is the spread multiplier implied by current volatility:
// at least 2x above the high threshold, 1x-2x between the thresholds.
func (s *Strategy) VolatilityFactor() float64 {
	vol := s.Volatility()
	low, high := s.cfg.VolatilityLow, s.cfg.VolatilityHigh

	switch {
	case high > 0 && vol > high:
		return 2 * vol / high
	case low > 0 && vol > low:
		if high <= low {
			return 1
		}
		return 1 + (vol-low)/(high-low)
	default:
		return 1
	}
}

func (s *Strategy) checkDrawdown() Suspension {
	pnl := s.PnL()
	if s.cfg.MaxLoss.IsPositive() && pnl.LessThan(s.cfg.MaxLoss.Neg()) {
		return SuspendMaxLoss
	}
	if s.cfg.MaxDrawdownPct > 0 && s.Drawdown() > s.cfg.MaxDrawdownPct {
		return SuspendDrawdown
	}
	return SuspendNone
}

// OnFill updates the ledger from a fill on one of the strategy's orders.
func (s *Strategy) OnFill(f match.Fill) {
	qty := decimal.NewFromInt(f.Quantity)
	notional := f.Price.Mul(qty)
	fee := s.cfg.TransactionCost.Mul(qty)

	s.settle(f.Side, f.Price, f.Quantity)

	if f.Side == match.Buy {
		s.inventory += f.Quantity
		s.cash = s.cash.Sub(notional).Sub(fee)
	} else {
		s.inventory -= f.Quantity
		s.cash = s.cash.Add(notional).Sub(fee)
	}
	s.fees = s.fees.Add(fee)

	if f.ReferencePrice.IsPositive() {
		s.reference = f.ReferencePrice
	}
	s.updatePeak()

	if f.Remaining == 0 {
		delete(s.active, f.OrderID)
	}

	s.logger.Debug("fill", "order_id", f.OrderID, "side", f.Side.String(),
		"price", f.Price.String(), "qty", f.Quantity, "inventory", s.inventory, "pnl", s.PnL().StringFixed(2))
}

// settle maintains the average cost of the open position and books realized
// P&L for any quantity that reduces it.
func (s *Strategy) settle(side match.Side, price decimal.Decimal, qty int64) {
	pos := s.inventory
	signed := qty
	if side == match.Sell {
		signed = -qty
	}

	if pos == 0 || (pos > 0) == (signed > 0) {
		total := decimal.NewFromInt(abs(pos) + qty)
		s.avgCost = s.avgCost.Mul(decimal.NewFromInt(abs(pos))).Add(price.Mul(decimal.NewFromInt(qty))).Div(total)
		return
	}

	closing := min(qty, abs(pos))
	pnl := price.Sub(s.avgCost).Mul(decimal.NewFromInt(closing))
	if pos < 0 {
		pnl = pnl.Neg()
	}
	pnl = pnl.Sub(s.cfg.TransactionCost.Mul(decimal.NewFromInt(closing)))
	s.realized = s.realized.Add(pnl)
	s.recordOutcome(pnl.InexactFloat64())

	if qty > closing {
		s.avgCost = price
	} else if closing == abs(pos) {
		s.avgCost = decimal.Zero
	}
}

func (s *Strategy) recordOutcome(pnl float64) {
	switch {
	case pnl > 0:
		s.wins++
	case pnl < 0:
		s.losses++
	}

	if s.cfg.TradeHistory <= 0 {
		return
	}
	s.outcomes = append(s.outcomes, pnl)
	if len(s.outcomes) > s.cfg.TradeHistory {
		s.outcomes = s.outcomes[len(s.outcomes)-s.cfg.TradeHistory:]
	}
}

// MarkToMarket moves the reference price used for unrealized P&L.
func (s *Strategy) MarkToMarket(price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	s.reference = price
	s.updatePeak()
}

func (s *Strategy) updatePeak() {
	if eq := s.Equity(); eq.GreaterThan(s.peak) {
		s.peak = eq
	}
}

// Equity is cash plus inventory valued at the reference price.
func (s *Strategy) Equity() decimal.Decimal {
	return s.cash.Add(decimal.NewFromInt(s.inventory).Mul(s.reference))
}

// PnL is cash + inventory * reference - starting cash.
func (s *Strategy) PnL() decimal.Decimal {
	return s.Equity().Sub(s.cfg.StartingCash)
}

// Drawdown is the fractional decline of equity from its peak.
func (s *Strategy) Drawdown() float64 {
	if !s.peak.IsPositive() {
		return 0
	}
	return s.peak.Sub(s.Equity()).Div(s.peak).InexactFloat64()
}

// InventoryPenalty is charged on inventory beyond 80% of the bound.
func (s *Strategy) InventoryPenalty() decimal.Decimal {
	if !s.cfg.InventoryPenalty.IsPositive() {
		return decimal.Zero
	}
	threshold := decimal.NewFromInt(s.cfg.MaxInventory).Mul(inventoryPenaltyThreshold)
	excess := decimal.NewFromInt(abs(s.inventory)).Sub(threshold)
	if !excess.IsPositive() {
		return decimal.Zero
	}
	return excess.Mul(s.cfg.InventoryPenalty)
}

// RiskAdjustedPnL is PnL minus the inventory penalty.
func (s *Strategy) RiskAdjustedPnL() decimal.Decimal {
	return s.PnL().Sub(s.InventoryPenalty())
}

// CancelAll cancels every tracked resting quote and returns how many the book accepted.
func (s *Strategy) CancelAll() int {
	n := 0
	for id := range s.active {
		if s.book.CancelOrder(id) {
			n++
		}
		delete(s.active, id)
	}
	return n
}

// CancelStale cancels tracked quotes submitted more than maxAge before now.
func (s *Strategy) CancelStale(now time.Time, maxAge time.Duration) int {
	cutoff := now.Add(-maxAge).UnixNano()
	n := 0
	for id, ts := range s.active {
		if ts > cutoff {
			continue
		}
		if s.book.CancelOrder(id) {
			n++
		}
		delete(s.active, id)
	}
	return n
}

// Outcomes returns the bounded history of realized P&L per closing fill.
func (s *Strategy) Outcomes() []float64 {
	result := make([]float64, len(s.outcomes))
	copy(result, s.outcomes)
	return result
}

// Status is a point-in-time view of the ledger.
type Status struct {
	Cash             decimal.Decimal `json:"cash"`
	Inventory        int64           `json:"inventory"`
	Reference        decimal.Decimal `json:"reference"`
	PnL              decimal.Decimal `json:"pnl"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	Fees             decimal.Decimal `json:"fees"`
	InventoryPenalty decimal.Decimal `json:"inventory_penalty"`
	AdjustedPnL      decimal.Decimal `json:"adjusted_pnl"`
	Equity           decimal.Decimal `json:"equity"`
	Drawdown         float64         `json:"drawdown"`
	Volatility       float64         `json:"volatility"`
	ActiveOrders     int             `json:"active_orders"`
	Wins             int             `json:"wins"`
	Losses           int             `json:"losses"`
	Suspension       string          `json:"suspension"`
}

// Status reports cash, inventory, P&L and the active order count.
func (s *Strategy) Status() Status {
	pnl := s.PnL()
	penalty := s.InventoryPenalty()
	return Status{
		Cash:             s.cash,
		Inventory:        s.inventory,
		Reference:        s.reference,
		PnL:              pnl,
		RealizedPnL:      s.realized,
		UnrealizedPnL:    pnl.Sub(s.realized),
		Fees:             s.fees,
		InventoryPenalty: penalty,
		AdjustedPnL:      pnl.Sub(penalty),
		Equity:           s.Equity(),
		Drawdown:         s.Drawdown(),
		Volatility:       s.Volatility(),
		ActiveOrders:     len(s.active),
		Wins:             s.wins,
		Losses:           s.losses,
		Suspension:       s.suspended.String(),
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
