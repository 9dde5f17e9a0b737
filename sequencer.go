package match

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/Krish-B-Shah/order-book-trading-bot/protocol"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSerializer sets the payload codec; the default is JSON.
func WithSerializer(s protocol.Serializer) SequencerOption {
	return func(seq *Sequencer) {
		seq.serializer = s
	}
}

// WithQueueSize sets the command channel capacity.
func WithQueueSize(size int) SequencerOption {
	return func(seq *Sequencer) {
		seq.cmdChan = make(chan inputEvent, size)
	}
}

// inputEvent is the internal wrapper for everything entering the loop.
type inputEvent struct {
	cmd   *protocol.Command
	query func(*OrderBook)
	resp  chan struct{}
}

// Sequencer serializes all mutations of an OrderBook behind one goroutine so
// that concurrent producers observe deterministic price-time priority.
type Sequencer struct {
	book             *OrderBook
	serializer       protocol.Serializer
	lastCmdSeqID     atomic.Uint64
	isShutdown       atomic.Bool
	cmdChan          chan inputEvent
	done             chan struct{}
	shutdownComplete chan struct{}
}

// NewSequencer wraps book. After Start the book must only be touched through
// the sequencer.
func NewSequencer(book *OrderBook, opts ...SequencerOption) *Sequencer {
	seq := &Sequencer{
		book:             book,
		serializer:       &protocol.DefaultJSONSerializer{},
		cmdChan:          make(chan inputEvent, 32768),
		done:             make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(seq)
	}

	return seq
}

// Submit enqueues a command. Returns ErrShutdown if the sequencer is shutting down.
func (seq *Sequencer) Submit(ctx context.Context, cmd *protocol.Command) error {
	if seq.isShutdown.Load() {
		return ErrShutdown
	}
	if cmd == nil {
		return ErrInvalidParam
	}

	select {
	case seq.cmdChan <- inputEvent{cmd: cmd}:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// PlaceOrder serializes and enqueues a place order command.
func (seq *Sequencer) PlaceOrder(ctx context.Context, cmd *protocol.PlaceOrderCommand) error {
	return seq.submitPayload(ctx, protocol.CmdPlaceOrder, cmd)
}

// CancelOrder serializes and enqueues a cancel command.
func (seq *Sequencer) CancelOrder(ctx context.Context, cmd *protocol.CancelOrderCommand) error {
	return seq.submitPayload(ctx, protocol.CmdCancelOrder, cmd)
}

// AmendOrder serializes and enqueues an amend command.
func (seq *Sequencer) AmendOrder(ctx context.Context, cmd *protocol.AmendOrderCommand) error {
	return seq.submitPayload(ctx, protocol.CmdAmendOrder, cmd)
}

// Match enqueues a crossing pass at the given mark.
func (seq *Sequencer) Match(ctx context.Context, referencePrice decimal.Decimal) error {
	return seq.submitPayload(ctx, protocol.CmdMatch, &protocol.MatchCommand{ReferencePrice: referencePrice.String()})
}

func (seq *Sequencer) submitPayload(ctx context.Context, typ protocol.CommandType, payload any) error {
	cmd, err := protocol.NewCommand(seq.serializer, typ, 0, payload)
	if err != nil {
		return err
	}
	return seq.Submit(ctx, cmd)
}

// Query runs fn on the sequencer goroutine after every previously submitted
// command has been applied, and waits for it to return.
func (seq *Sequencer) Query(ctx context.Context, fn func(*OrderBook)) error {
	if seq.isShutdown.Load() {
		return ErrShutdown
	}

	resp := make(chan struct{})
	select {
	case seq.cmdChan <- inputEvent{query: fn, resp: resp}:
	case <-ctx.Done():
		return ErrTimeout
	}

	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// LastCmdSeqID returns the sequence ID of the last processed command.
func (seq *Sequencer) LastCmdSeqID() uint64 {
	return seq.lastCmdSeqID.Load()
}

// Start runs the loop. Returns nil when Shutdown() is called and all pending commands are drained.
func (seq *Sequencer) Start() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-seq.done:
			return seq.drain()
		case ev := <-seq.cmdChan:
			seq.process(ev)
		}
	}
}

// Shutdown signals the loop to stop accepting new commands and waits for pending ones to be applied.
// Returns nil if shutdown completed successfully, or ctx.Err() if the context was cancelled.
func (seq *Sequencer) Shutdown(ctx context.Context) error {
	if seq.isShutdown.CompareAndSwap(false, true) {
		close(seq.done)
	}

	select {
	case <-seq.shutdownComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain processes all remaining commands in the channel before returning.
func (seq *Sequencer) drain() error {
	defer close(seq.shutdownComplete)

	for {
		select {
		case ev := <-seq.cmdChan:
			seq.process(ev)
		default:
			return nil
		}
	}
}

func (seq *Sequencer) process(ev inputEvent) {
	if ev.query != nil {
		ev.query(seq.book)
		close(ev.resp)
		return
	}

	seq.apply(ev.cmd)
	if ev.cmd.SeqID > 0 {
		seq.lastCmdSeqID.Store(ev.cmd.SeqID)
	}
}

func (seq *Sequencer) apply(cmd *protocol.Command) {
	switch cmd.Type {
	case protocol.CmdPlaceOrder:
		payload := &protocol.PlaceOrderCommand{}
		if err := seq.serializer.Unmarshal(cmd.Payload, payload); err != nil {
			logger.Error("failed to unmarshal PlaceOrder command", "error", err)
			return
		}
		order, err := orderFromCommand(payload)
		if err != nil {
			logger.Warn("invalid PlaceOrder command", "order_id", payload.OrderID, "error", err)
			return
		}
		if _, err := seq.book.AddOrder(order); err != nil {
			logger.Warn("order rejected", "order_id", order.ID, "error", err)
		}
	case protocol.CmdCancelOrder:
		payload := &protocol.CancelOrderCommand{}
		if err := seq.serializer.Unmarshal(cmd.Payload, payload); err != nil {
			logger.Error("failed to unmarshal CancelOrder command", "error", err)
			return
		}
		seq.book.CancelOrder(payload.OrderID)
	case protocol.CmdAmendOrder:
		payload := &protocol.AmendOrderCommand{}
		if err := seq.serializer.Unmarshal(cmd.Payload, payload); err != nil {
			logger.Error("failed to unmarshal AmendOrder command", "error", err)
			return
		}
		var newPrice *decimal.Decimal
		if payload.NewPrice != "" {
			p, err := decimal.NewFromString(payload.NewPrice)
			if err != nil {
				logger.Warn("invalid amend price", "order_id", payload.OrderID, "price", payload.NewPrice)
				return
			}
			newPrice = &p
		}
		var newQty *int64
		if payload.NewQuantity != 0 {
			newQty = &payload.NewQuantity
		}
		seq.book.AmendOrder(payload.OrderID, newPrice, newQty)
	case protocol.CmdMatch:
		payload := &protocol.MatchCommand{}
		if err := seq.serializer.Unmarshal(cmd.Payload, payload); err != nil {
			logger.Error("failed to unmarshal Match command", "error", err)
			return
		}
		ref := decimal.Zero
		if payload.ReferencePrice != "" {
			if p, err := decimal.NewFromString(payload.ReferencePrice); err == nil {
				ref = p
			}
		}
		seq.book.Match(ref)
	default:
		logger.Warn("unknown command type", "type", cmd.Type.String())
	}
}

func orderFromCommand(cmd *protocol.PlaceOrderCommand) (*Order, error) {
	order := &Order{
		ID:        cmd.OrderID,
		Side:      cmd.Side,
		Type:      cmd.OrderType,
		Quantity:  cmd.Quantity,
		Timestamp: cmd.Timestamp,
	}

	if cmd.Price != "" {
		price, err := decimal.NewFromString(cmd.Price)
		if err != nil {
			return nil, ErrInvalidParam
		}
		order.Price = price
	}

	if cmd.Owner != "" {
		owner, err := xid.FromString(cmd.Owner)
		if err != nil {
			return nil, ErrInvalidParam
		}
		order.Owner = owner
	}

	return order, nil
}
