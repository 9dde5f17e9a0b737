package match

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BookLog is one state change of an OrderBook. SequenceID increases by one per
// log within a book, so consumers such as AggregatedBook can detect gaps.
// Reject logs never change book state; every other type does.
type BookLog struct {
	SequenceID   uint64          `json:"seq_id"`
	TradeID      uint64          `json:"trade_id,omitempty"` // Sequential trade ID, only set for Match events
	Type         LogType         `json:"type"`               // Event type: open, match, cancel, amend, reject
	MarketID     string          `json:"market_id"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         int64           `json:"size"`
	Amount       decimal.Decimal `json:"amount,omitempty"` // Price * Size, only set for Match events
	OldPrice     decimal.Decimal `json:"old_price,omitempty"`
	OldSize      int64           `json:"old_size,omitempty"`
	OrderID      uint64          `json:"order_id"`
	OrderType    OrderType       `json:"order_type,omitempty"`
	TakerPrice   decimal.Decimal `json:"taker_price,omitempty"` // Limit price of a resting taker, zero for market takers
	MakerPrice   decimal.Decimal `json:"maker_price,omitempty"` // Limit price of the resting maker; differs from Price when a resting bid is crossed by a later ask
	MakerOrderID uint64          `json:"maker_order_id,omitempty"`
	RejectReason RejectReason    `json:"reject_reason,omitempty"` // Reason for rejection, only set for Reject events
	CreatedAt    time.Time       `json:"created_at"`
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	*log = BookLog{}
	bookLogPool.Put(log)
}

// newOrderLog fills the fields shared by every log that describes a single order.
func newOrderLog(typ LogType, seqID uint64, marketID string, order *Order, at time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = typ
	log.MarketID = marketID
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Quantity
	log.OrderID = order.ID
	log.OrderType = order.Type
	log.CreatedAt = at.UTC()
	return log
}

func NewOpenLog(seqID uint64, marketID string, order *Order, at time.Time) *BookLog {
	return newOrderLog(LogTypeOpen, seqID, marketID, order, at)
}

// NewMatchLog describes a trade from the taker's point of view. Price is the
// execution price; MakerPrice is the resting order's own limit.
func NewMatchLog(seqID uint64, marketID string, trade Trade, taker *Order, maker *Order) *BookLog {
	log := newOrderLog(LogTypeMatch, seqID, marketID, taker, trade.Timestamp)
	log.TradeID = trade.ID
	log.Price = trade.Price
	log.Size = trade.Quantity
	log.Amount = trade.Notional()
	if !taker.IsMarket() {
		log.TakerPrice = taker.Price
	}
	log.MakerPrice = maker.Price
	log.MakerOrderID = maker.ID
	return log
}

// NewCancelLog records the quantity that left the book with the order.
func NewCancelLog(seqID uint64, marketID string, order *Order, at time.Time) *BookLog {
	return newOrderLog(LogTypeCancel, seqID, marketID, order, at)
}

func NewAmendLog(seqID uint64, marketID string, order *Order, oldPrice decimal.Decimal, oldSize int64, at time.Time) *BookLog {
	log := newOrderLog(LogTypeAmend, seqID, marketID, order, at)
	log.OldPrice = oldPrice
	log.OldSize = oldSize
	return log
}

// NewRejectLog records an order or request that did not change book state.
// size is the quantity that was refused or discarded.
func NewRejectLog(seqID uint64, marketID string, order *Order, size int64, reason RejectReason, at time.Time) *BookLog {
	log := newOrderLog(LogTypeReject, seqID, marketID, order, at)
	log.Size = size
	log.RejectReason = reason
	return log
}
