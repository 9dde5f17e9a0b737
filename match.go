package match

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeListener observes every fill the engine produces. taker is the order
// that arrived later (or the market order); maker set the price.
type TradeListener interface {
	OnTrade(trade Trade, taker, maker *Order, referencePrice decimal.Decimal)
}

// MatchingEngine crosses orders against PriorityBooks.
// The resting order always sets the trade price; when two resting limit
// orders cross, the ask is treated as the price setter.
type MatchingEngine struct {
	tradeID  uint64
	now      func() time.Time
	listener TradeListener
}

// NewMatchingEngine creates an engine. listener may be nil.
func NewMatchingEngine(listener TradeListener) *MatchingEngine {
	return &MatchingEngine{
		now:      time.Now,
		listener: listener,
	}
}

// LastTradeID returns the id of the most recent trade, zero if none.
func (engine *MatchingEngine) LastTradeID() uint64 {
	return engine.tradeID
}

// Match crosses resting bids and asks while the best bid is at or above the best ask.
func (engine *MatchingEngine) Match(bids, asks *PriorityBook, referencePrice decimal.Decimal) []Trade {
	var trades []Trade

	for {
		bid := bids.Best()
		ask := asks.Best()
		if bid == nil || ask == nil {
			break
		}

		if bid.Price.LessThan(ask.Price) {
			break
		}

		qty := min(bid.Quantity, ask.Quantity)
		if qty <= 0 {
			logger.Error("non-positive trade quantity while crossing",
				"bid_id", bid.ID, "bid_qty", bid.Quantity, "ask_id", ask.ID, "ask_qty", ask.Quantity)
			break
		}

		taker, maker := bid, ask
		if ask.Timestamp > bid.Timestamp {
			taker, maker = ask, bid
		}

		trade := engine.newTrade(ask.Price, qty, bid.ID, ask.ID, taker.Side)
		bids.Fill(bid, qty)
		asks.Fill(ask, qty)

		trades = append(trades, trade)
		if engine.listener != nil {
			engine.listener.OnTrade(trade, taker, maker, referencePrice)
		}
	}

	return trades
}

// ExecuteMarketOrder walks the opposite side best to worst until the order is
// filled or the side is exhausted. The order never rests; whatever is left in
// order.Quantity afterwards is the discarded remainder.
func (engine *MatchingEngine) ExecuteMarketOrder(order *Order, opposite *PriorityBook, referencePrice decimal.Decimal) []Trade {
	var trades []Trade

	for order.Quantity > 0 {
		maker := opposite.Best()
		if maker == nil {
			break
		}

		qty := min(order.Quantity, maker.Quantity)
		if qty <= 0 {
			logger.Error("non-positive trade quantity while executing market order",
				"order_id", order.ID, "maker_id", maker.ID, "maker_qty", maker.Quantity)
			break
		}

		buyID, sellID := order.ID, maker.ID
		if order.Side == Sell {
			buyID, sellID = maker.ID, order.ID
		}

		trade := engine.newTrade(maker.Price, qty, buyID, sellID, order.Side)
		order.Quantity -= qty
		opposite.Fill(maker, qty)

		trades = append(trades, trade)
		if engine.listener != nil {
			engine.listener.OnTrade(trade, order, maker, referencePrice)
		}
	}

	return trades
}

func (engine *MatchingEngine) newTrade(price decimal.Decimal, qty int64, buyID, sellID uint64, takerSide Side) Trade {
	engine.tradeID++
	return Trade{
		ID:          engine.tradeID,
		Price:       price,
		Quantity:    qty,
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		TakerSide:   takerSide,
		Timestamp:   engine.now().UTC(),
	}
}
