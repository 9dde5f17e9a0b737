package match

import (
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot/protocol"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type OrderType = protocol.OrderType

const (
	Market OrderType = protocol.OrderTypeMarket
	Limit  OrderType = protocol.OrderTypeLimit
)

type LogType = protocol.LogType

const (
	LogTypeOpen   LogType = protocol.LogTypeOpen
	LogTypeMatch  LogType = protocol.LogTypeMatch
	LogTypeCancel LogType = protocol.LogTypeCancel
	LogTypeAmend  LogType = protocol.LogTypeAmend
	LogTypeReject LogType = protocol.LogTypeReject
)

type RejectReason = protocol.RejectReason

const (
	RejectReasonNone          RejectReason = protocol.RejectReasonNone
	RejectReasonNoLiquidity   RejectReason = protocol.RejectReasonNoLiquidity
	RejectReasonDuplicateID   RejectReason = protocol.RejectReasonDuplicateID
	RejectReasonOrderNotFound RejectReason = protocol.RejectReasonOrderNotFound
)

// Order represents the state of an order in the order book.
// Market orders carry no price; they never rest so the price is never compared.
type Order struct {
	ID        uint64          `json:"id"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`  // Remaining quantity
	Timestamp int64           `json:"timestamp"` // Unix nano, submission time
	Owner     xid.ID          `json:"owner,omitempty"`

	// Intrusive linked list pointers (ignored by JSON)
	next *Order
	prev *Order
}

// IsMarket reports whether the order executes immediately against the opposite side.
func (o *Order) IsMarket() bool {
	return o.Type == Market
}

// HasOwner reports whether fills on this order should be routed to a registered handler.
func (o *Order) HasOwner() bool {
	return !o.Owner.IsNil()
}

// copy returns a detached value copy that is safe to hand out to readers.
func (o *Order) copy() Order {
	return Order{
		ID:        o.ID,
		Side:      o.Side,
		Type:      o.Type,
		Price:     o.Price,
		Quantity:  o.Quantity,
		Timestamp: o.Timestamp,
		Owner:     o.Owner,
	}
}

// Trade is produced once per fill event.
// The price is always the resting order's price.
type Trade struct {
	ID          uint64          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	TakerSide   Side            `json:"taker_side"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Notional returns price * quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Fill is delivered to the owner of an order every time that order trades.
type Fill struct {
	OrderID        uint64
	Side           Side
	Price          decimal.Decimal
	Quantity       int64
	Remaining      int64
	ReferencePrice decimal.Decimal // Mark used for unrealized P&L, not the trade price
	Timestamp      time.Time
}

// FillHandler receives fill callbacks for orders it owns.
// Handlers run on the matching path and must not call back into the book.
type FillHandler interface {
	OnFill(Fill)
}

// FillHandlerFunc adapts a function to FillHandler.
type FillHandlerFunc func(Fill)

func (f FillHandlerFunc) OnFill(fill Fill) {
	f(fill)
}

// ExecStatus describes the outcome of AddOrder.
type ExecStatus uint8

const (
	ExecRested ExecStatus = iota
	ExecFilled
	ExecPartiallyFilled
	ExecRejected
)

func (s ExecStatus) String() string {
	switch s {
	case ExecRested:
		return "rested"
	case ExecFilled:
		return "filled"
	case ExecPartiallyFilled:
		return "partially_filled"
	case ExecRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Execution reports what happened to a submitted order.
// For market orders Filled < Requested signals the discarded remainder.
type Execution struct {
	OrderID   uint64
	Requested int64
	Filled    int64
	Status    ExecStatus
	Trades    []Trade
}

// Unfilled returns the quantity that was discarded (market) or left resting (limit).
func (e Execution) Unfilled() int64 {
	return e.Requested - e.Filled
}

type DepthItem struct {
	ID    uint32
	Price decimal.Decimal
	Size  int64
	Count int64
}

type Depth struct {
	UpdateID uint64       `json:"update_id"`
	Asks     []*DepthItem `json:"asks"`
	Bids     []*DepthItem `json:"bids"`
}

// DepthChange represents a change in the order book depth.
type DepthChange struct {
	Side     Side
	Price    decimal.Decimal
	SizeDiff int64
}

// BookStats contains statistics about the order book queues
type BookStats struct {
	AskDepthCount int64
	AskOrderCount int64
	BidDepthCount int64
	BidOrderCount int64
	TradeCount    int64
	AuditCount    int64
}
