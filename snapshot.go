package match

// BookSnapshot contains the resting state of an OrderBook in priority order.
type BookSnapshot struct {
	MarketID    string  `json:"market_id"`
	SeqID       uint64  `json:"seq_id"`        // Current BookLog sequence ID
	TradeID     uint64  `json:"trade_id"`      // Current Trade sequence ID
	NextOrderID uint64  `json:"next_order_id"` // Last issued order id
	Bids        []Order `json:"bids"`          // Ordered list of bids (best price first)
	Asks        []Order `json:"asks"`          // Ordered list of asks (best price first)
}

// Snapshot captures the resting orders of both sides.
func (book *OrderBook) Snapshot() *BookSnapshot {
	return &BookSnapshot{
		MarketID:    book.marketID,
		SeqID:       book.seqID,
		TradeID:     book.engine.LastTradeID(),
		NextOrderID: book.nextID,
		Bids:        book.bidQueue.Orders(),
		Asks:        book.askQueue.Orders(),
	}
}
