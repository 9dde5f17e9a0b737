package match

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// OrderBookOption configures an OrderBook.
type OrderBookOption func(*OrderBook)

// WithMarketID names the instrument stamped on every BookLog.
func WithMarketID(marketID string) OrderBookOption {
	return func(book *OrderBook) {
		book.marketID = marketID
	}
}

// WithPublishLog sets the sink for BookLog events.
func WithPublishLog(publisher PublishLog) OrderBookOption {
	return func(book *OrderBook) {
		book.publisher = publisher
	}
}

// WithClock replaces time.Now for timestamps; used by deterministic simulations.
func WithClock(now func() time.Time) OrderBookOption {
	return func(book *OrderBook) {
		book.now = now
		book.engine.now = now
	}
}

// WithFallbackMark sets the mark used before any reference price or trade exists.
func WithFallbackMark(price decimal.Decimal) OrderBookOption {
	return func(book *OrderBook) {
		book.fallbackMark = price
	}
}

// OrderBook orchestrates id issuance, admission, cancellation and amendment of
// orders for a single instrument. It keeps a trade log and an audit log of every
// order ever submitted. It is not safe for concurrent use; see Sequencer.
type OrderBook struct {
	marketID     string
	nextID       uint64
	seqID        uint64
	bidQueue     *PriorityBook
	askQueue     *PriorityBook
	engine       *MatchingEngine
	live         map[uint64]*Order
	owners       map[xid.ID]FillHandler
	trades       []Trade
	audit        []Order
	reference    decimal.Decimal
	hasReference bool
	fallbackMark decimal.Decimal
	publisher    PublishLog
	pending      []*BookLog
	now          func() time.Time
}

// NewOrderBook creates a new order book instance.
func NewOrderBook(opts ...OrderBookOption) *OrderBook {
	book := &OrderBook{
		marketID:     DefaultMarketID,
		bidQueue:     NewBuyerQueue(),
		askQueue:     NewSellerQueue(),
		live:         make(map[uint64]*Order),
		owners:       make(map[xid.ID]FillHandler),
		fallbackMark: DefaultFallbackMark,
		publisher:    NewDiscardPublishLog(),
		pending:      make([]*BookLog, 0, 8),
		now:          time.Now,
	}
	book.engine = NewMatchingEngine(book)

	for _, opt := range opts {
		opt(book)
	}

	return book
}

// MarketID returns the instrument name.
func (book *OrderBook) MarketID() string {
	return book.marketID
}

// NextOrderID issues a strictly increasing id that is never reused.
func (book *OrderBook) NextOrderID() uint64 {
	book.nextID++
	return book.nextID
}

// RegisterOwner adds a fill handler to the owner table and returns its handle.
// Orders carrying the handle in Order.Owner report their fills to h.
func (book *OrderBook) RegisterOwner(h FillHandler) xid.ID {
	id := xid.New()
	book.owners[id] = h
	return id
}

// UnregisterOwner drops a handler. Orders still carrying the handle keep
// trading; their fills are no longer delivered.
func (book *OrderBook) UnregisterOwner(id xid.ID) {
	delete(book.owners, id)
}

// AddOrder admits an order. Market orders execute immediately against the
// opposite side and never rest. Limit orders rest until Match crosses them.
// A zero order ID or timestamp is filled in by the book.
func (book *OrderBook) AddOrder(order *Order) (Execution, error) {
	if err := book.validate(order); err != nil {
		return Execution{Status: ExecRejected}, err
	}

	if order.ID == 0 {
		order.ID = book.NextOrderID()
	} else if order.ID > book.nextID {
		book.nextID = order.ID
	}

	if order.Timestamp == 0 {
		order.Timestamp = book.now().UnixNano()
	}

	defer book.flush()

	if order.IsMarket() {
		return book.executeMarketOrder(order), nil
	}

	if _, exists := book.live[order.ID]; exists {
		book.emit(NewRejectLog(book.nextSeqID(), book.marketID, order, order.Quantity, RejectReasonDuplicateID, book.now()))
		return Execution{OrderID: order.ID, Requested: order.Quantity, Status: ExecRejected},
			fmt.Errorf("add order %d: %w", order.ID, ErrDuplicateOrderID)
	}

	book.live[order.ID] = order
	book.audit = append(book.audit, order.copy())
	book.queue(order.Side).Insert(order)
	book.emit(NewOpenLog(book.nextSeqID(), book.marketID, order, book.now()))

	return Execution{OrderID: order.ID, Requested: order.Quantity, Status: ExecRested}, nil
}

func (book *OrderBook) validate(order *Order) error {
	if order == nil {
		return fmt.Errorf("nil order: %w", ErrInvalidParam)
	}
	if !order.Side.Valid() || !order.Type.Valid() {
		return fmt.Errorf("order %d side=%v type=%q: %w", order.ID, order.Side, order.Type, ErrInvalidParam)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("order %d quantity %d: %w", order.ID, order.Quantity, ErrInvalidParam)
	}
	if order.Type == Limit && !order.Price.IsPositive() {
		return fmt.Errorf("order %d price %s: %w", order.ID, order.Price, ErrInvalidParam)
	}
	return nil
}

func (book *OrderBook) executeMarketOrder(order *Order) Execution {
	requested := order.Quantity
	order.Price = decimal.Zero
	book.audit = append(book.audit, order.copy())

	trades := book.engine.ExecuteMarketOrder(order, book.queue(order.Side.Opposite()), book.Mark())

	exec := Execution{
		OrderID:   order.ID,
		Requested: requested,
		Filled:    requested - order.Quantity,
		Trades:    trades,
	}

	switch {
	case exec.Filled == 0:
		exec.Status = ExecRejected
		logger.Warn("market order found no liquidity",
			"order_id", order.ID, "side", order.Side.String(), "quantity", requested)
	case exec.Filled < requested:
		exec.Status = ExecPartiallyFilled
		logger.Warn("market order partially filled, remainder discarded",
			"order_id", order.ID, "side", order.Side.String(), "filled", exec.Filled, "discarded", order.Quantity)
	default:
		exec.Status = ExecFilled
	}

	if order.Quantity > 0 {
		book.emit(NewRejectLog(book.nextSeqID(), book.marketID, order, order.Quantity, RejectReasonNoLiquidity, book.now()))
		order.Quantity = 0
	}

	return exec
}

// CancelOrder removes a resting order. Unknown ids, including orders that
// already filled, are logged and reported as false.
func (book *OrderBook) CancelOrder(id uint64) bool {
	defer book.flush()

	order, ok := book.live[id]
	if !ok {
		logger.Warn("cancel of unknown order", "order_id", id)
		book.emit(NewRejectLog(book.nextSeqID(), book.marketID, &Order{ID: id}, 0, RejectReasonOrderNotFound, book.now()))
		return false
	}

	book.queue(order.Side).Remove(id)
	delete(book.live, id)
	book.emit(NewCancelLog(book.nextSeqID(), book.marketID, order, book.now()))
	return true
}

// AmendOrder changes the price and/or quantity of a resting order by removing
// and reinserting it. The original timestamp is kept. An amendment that makes
// the order marketable is not matched until the next Match call.
func (book *OrderBook) AmendOrder(id uint64, newPrice *decimal.Decimal, newQuantity *int64) bool {
	defer book.flush()

	order, ok := book.live[id]
	if !ok {
		logger.Warn("amend of unknown order", "order_id", id)
		book.emit(NewRejectLog(book.nextSeqID(), book.marketID, &Order{ID: id}, 0, RejectReasonOrderNotFound, book.now()))
		return false
	}

	if (newPrice != nil && !newPrice.IsPositive()) || (newQuantity != nil && *newQuantity <= 0) {
		logger.Warn("amend with invalid values ignored", "order_id", id)
		return false
	}

	oldPrice, oldSize := order.Price, order.Quantity

	q := book.queue(order.Side)
	q.Remove(id)
	if newPrice != nil {
		order.Price = *newPrice
	}
	if newQuantity != nil {
		order.Quantity = *newQuantity
	}
	q.Insert(order)

	book.emit(NewAmendLog(book.nextSeqID(), book.marketID, order, oldPrice, oldSize, book.now()))
	return true
}

// Match crosses resting orders. referencePrice is the mark passed to fill
// handlers; when zero the book falls back to Mark.
func (book *OrderBook) Match(referencePrice decimal.Decimal) []Trade {
	defer book.flush()

	if referencePrice.IsZero() {
		referencePrice = book.Mark()
	}

	return book.engine.Match(book.bidQueue, book.askQueue, referencePrice)
}

// OnTrade records a fill produced by the engine, publishes it and notifies owners.
func (book *OrderBook) OnTrade(trade Trade, taker, maker *Order, referencePrice decimal.Decimal) {
	book.trades = append(book.trades, trade)
	book.emit(NewMatchLog(book.nextSeqID(), book.marketID, trade, taker, maker))

	for _, o := range [2]*Order{taker, maker} {
		if o.Quantity == 0 && book.live[o.ID] == o {
			delete(book.live, o.ID)
		}
		book.notify(o, trade, referencePrice)
	}
}

func (book *OrderBook) notify(o *Order, trade Trade, referencePrice decimal.Decimal) {
	if !o.HasOwner() {
		return
	}

	h, ok := book.owners[o.Owner]
	if !ok {
		logger.Warn("fill for unregistered owner dropped", "order_id", o.ID, "owner", o.Owner.String())
		return
	}

	h.OnFill(Fill{
		OrderID:        o.ID,
		Side:           o.Side,
		Price:          trade.Price,
		Quantity:       trade.Quantity,
		Remaining:      o.Quantity,
		ReferencePrice: referencePrice,
		Timestamp:      trade.Timestamp,
	})
}

// BestBidAsk returns the touch prices; nil means the side is empty.
func (book *OrderBook) BestBidAsk() (bid, ask *decimal.Decimal) {
	if o := book.bidQueue.Best(); o != nil {
		p := o.Price
		bid = &p
	}
	if o := book.askQueue.Best(); o != nil {
		p := o.Price
		ask = &p
	}
	return bid, ask
}

// LastTradePrice returns the most recent trade price.
func (book *OrderBook) LastTradePrice() (decimal.Decimal, bool) {
	if len(book.trades) == 0 {
		return decimal.Zero, false
	}
	return book.trades[len(book.trades)-1].Price, true
}

// SetReferencePrice records the external mark used when Match is called without one.
func (book *OrderBook) SetReferencePrice(price decimal.Decimal) {
	book.reference = price
	book.hasReference = price.IsPositive()
}

// Mark resolves the current mark: external reference, then last trade, then fallback.
func (book *OrderBook) Mark() decimal.Decimal {
	if book.hasReference {
		return book.reference
	}
	if p, ok := book.LastTradePrice(); ok {
		return p
	}
	return book.fallbackMark
}

// Order returns a copy of a resting order.
func (book *OrderBook) Order(id uint64) (Order, bool) {
	o, ok := book.live[id]
	if !ok {
		return Order{}, false
	}
	return o.copy(), true
}

// Trades returns the trade log in execution order.
func (book *OrderBook) Trades() []Trade {
	result := make([]Trade, len(book.trades))
	copy(result, book.trades)
	return result
}

// AllOrders returns the audit log: every submitted order as it was at submission.
func (book *OrderBook) AllOrders() []Order {
	result := make([]Order, len(book.audit))
	copy(result, book.audit)
	return result
}

// Bids returns the bid side. Callers must not mutate it.
func (book *OrderBook) Bids() *PriorityBook {
	return book.bidQueue
}

// Asks returns the ask side. Callers must not mutate it.
func (book *OrderBook) Asks() *PriorityBook {
	return book.askQueue
}

// Depth returns the aggregated levels of both sides.
func (book *OrderBook) Depth(limit uint32) (*Depth, error) {
	if limit == 0 {
		return nil, ErrInvalidParam
	}
	return &Depth{
		UpdateID: book.seqID,
		Asks:     book.askQueue.Depth(limit),
		Bids:     book.bidQueue.Depth(limit),
	}, nil
}

// Stats returns usage statistics for the order book.
func (book *OrderBook) Stats() *BookStats {
	return &BookStats{
		AskDepthCount: book.askQueue.Levels(),
		AskOrderCount: book.askQueue.Len(),
		BidDepthCount: book.bidQueue.Levels(),
		BidOrderCount: book.bidQueue.Len(),
		TradeCount:    int64(len(book.trades)),
		AuditCount:    int64(len(book.audit)),
	}
}

// PrintBook writes both sides in priority order.
func (book *OrderBook) PrintBook(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIDE\tID\tPRICE\tQTY\tTIMESTAMP")
	for _, q := range []*PriorityBook{book.askQueue, book.bidQueue} {
		q.Each(func(o *Order) bool {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\n", o.Side, o.ID, o.Price.StringFixed(2), o.Quantity, o.Timestamp)
			return true
		})
	}
	return tw.Flush()
}

func (book *OrderBook) queue(side Side) *PriorityBook {
	if side == Buy {
		return book.bidQueue
	}
	return book.askQueue
}

func (book *OrderBook) nextSeqID() uint64 {
	book.seqID++
	return book.seqID
}

func (book *OrderBook) emit(log *BookLog) {
	book.pending = append(book.pending, log)
}

func (book *OrderBook) flush() {
	if len(book.pending) == 0 {
		return
	}

	book.publisher.Publish(book.pending...)
	for i, log := range book.pending {
		releaseBookLog(log)
		book.pending[i] = nil
	}
	book.pending = book.pending[:0]
}
