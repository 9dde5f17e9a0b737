package match

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock() func() time.Time {
	var tick int64
	return func() time.Time {
		tick++
		return time.Unix(1700000000, tick)
	}
}

func createTestOrderBook(t *testing.T) (*OrderBook, *MemoryPublishLog) {
	t.Helper()

	publisher := NewMemoryPublishLog()
	book := NewOrderBook(WithPublishLog(publisher), WithClock(testClock()))

	for _, o := range []*Order{
		{ID: 1, Type: Limit, Side: Buy, Price: decimal.NewFromInt(90), Quantity: 1},
		{ID: 2, Type: Limit, Side: Buy, Price: decimal.NewFromInt(80), Quantity: 1},
		{ID: 3, Type: Limit, Side: Buy, Price: decimal.NewFromInt(70), Quantity: 1},
		{ID: 4, Type: Limit, Side: Sell, Price: decimal.NewFromInt(110), Quantity: 1},
		{ID: 5, Type: Limit, Side: Sell, Price: decimal.NewFromInt(120), Quantity: 1},
		{ID: 6, Type: Limit, Side: Sell, Price: decimal.NewFromInt(130), Quantity: 1},
	} {
		_, err := book.AddOrder(o)
		require.NoError(t, err)
	}

	return book, publisher
}

func limit(id uint64, side Side, price int64, qty int64) *Order {
	return &Order{ID: id, Type: Limit, Side: side, Price: decimal.NewFromInt(price), Quantity: qty}
}

func TestOrderBookScenarios(t *testing.T) {
	t.Run("no cross when bid is below ask", func(t *testing.T) {
		book := NewOrderBook()

		_, err := book.AddOrder(limit(1, Buy, 99, 105))
		require.NoError(t, err)
		_, err = book.AddOrder(limit(2, Sell, 101, 100))
		require.NoError(t, err)

		assert.Empty(t, book.Match(decimal.Zero))

		bid, ask := book.BestBidAsk()
		require.NotNil(t, bid)
		require.NotNil(t, ask)
		assert.Equal(t, "99", bid.String())
		assert.Equal(t, "101", ask.String())
	})

	t.Run("crossing sell fills against resting bid", func(t *testing.T) {
		book := NewOrderBook()
		_, _ = book.AddOrder(limit(1, Buy, 99, 105))
		_, _ = book.AddOrder(limit(2, Sell, 101, 100))

		_, err := book.AddOrder(limit(3, Sell, 99, 50))
		require.NoError(t, err)

		trades := book.Match(decimal.Zero)
		require.Len(t, trades, 1)
		assert.Equal(t, "99", trades[0].Price.String())
		assert.Equal(t, int64(50), trades[0].Quantity)

		o, ok := book.Order(1)
		require.True(t, ok)
		assert.Equal(t, int64(55), o.Quantity)

		log := book.Trades()
		require.Len(t, log, 1)
		assert.Equal(t, "99", log[0].Price.String())
		assert.Equal(t, int64(50), log[0].Quantity)

		_, ok = book.Order(3)
		assert.False(t, ok)
	})

	t.Run("market buy on empty ask side fills nothing", func(t *testing.T) {
		book := NewOrderBook()

		exec, err := book.AddOrder(&Order{Type: Market, Side: Buy, Quantity: 10})
		require.NoError(t, err)
		assert.Equal(t, ExecRejected, exec.Status)
		assert.Equal(t, int64(0), exec.Filled)
		assert.Equal(t, int64(10), exec.Requested)
		assert.Empty(t, book.Trades())
		assert.Equal(t, int64(0), book.Bids().Len())
	})

	t.Run("market buy larger than liquidity discards remainder", func(t *testing.T) {
		book := NewOrderBook()
		_, _ = book.AddOrder(limit(1, Sell, 100, 3))

		exec, err := book.AddOrder(&Order{Type: Market, Side: Buy, Quantity: 10})
		require.NoError(t, err)
		assert.Equal(t, ExecPartiallyFilled, exec.Status)
		assert.Equal(t, int64(3), exec.Filled)
		assert.Equal(t, int64(7), exec.Unfilled())

		trades := book.Trades()
		require.Len(t, trades, 1)
		assert.Equal(t, "100", trades[0].Price.String())
		assert.Equal(t, int64(3), trades[0].Quantity)

		_, ask := book.BestBidAsk()
		assert.Nil(t, ask)
		assert.Equal(t, int64(0), book.Bids().Len())
	})
}

func TestAddOrder(t *testing.T) {
	t.Run("duplicate id is rejected", func(t *testing.T) {
		book, publisher := createTestOrderBook(t)

		exec, err := book.AddOrder(limit(1, Sell, 500, 7))
		require.ErrorIs(t, err, ErrDuplicateOrderID)
		assert.Equal(t, ExecRejected, exec.Status)

		o, ok := book.Order(1)
		require.True(t, ok)
		assert.Equal(t, Buy, o.Side)
		assert.Equal(t, int64(6), book.Stats().AuditCount)

		rejects := publisher.OfType(LogTypeReject)
		require.Len(t, rejects, 1)
		assert.Equal(t, RejectReasonDuplicateID, rejects[0].RejectReason)
	})

	t.Run("invalid orders", func(t *testing.T) {
		book := NewOrderBook()

		_, err := book.AddOrder(nil)
		assert.ErrorIs(t, err, ErrInvalidParam)
		_, err = book.AddOrder(limit(1, Buy, 100, 0))
		assert.ErrorIs(t, err, ErrInvalidParam)
		_, err = book.AddOrder(limit(1, Buy, 0, 1))
		assert.ErrorIs(t, err, ErrInvalidParam)
		_, err = book.AddOrder(&Order{Type: "stop", Side: Buy, Quantity: 1, Price: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, ErrInvalidParam)
		_, err = book.AddOrder(&Order{Type: Limit, Side: 7, Quantity: 1, Price: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, ErrInvalidParam)

		assert.Empty(t, book.AllOrders())
	})

	t.Run("ids are issued and never reused", func(t *testing.T) {
		book := NewOrderBook()

		a := &Order{Type: Limit, Side: Buy, Price: decimal.NewFromInt(10), Quantity: 1}
		_, err := book.AddOrder(a)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), a.ID)

		_, err = book.AddOrder(limit(10, Buy, 10, 1))
		require.NoError(t, err)

		assert.True(t, book.CancelOrder(10))
		assert.Equal(t, uint64(11), book.NextOrderID())
		assert.Equal(t, uint64(12), book.NextOrderID())
	})

	t.Run("market orders never rest", func(t *testing.T) {
		book, _ := createTestOrderBook(t)

		exec, err := book.AddOrder(&Order{ID: 50, Type: Market, Side: Sell, Quantity: 2})
		require.NoError(t, err)
		assert.Equal(t, ExecFilled, exec.Status)
		assert.Len(t, exec.Trades, 2)

		_, ok := book.Order(50)
		assert.False(t, ok)
		assert.Nil(t, book.Asks().Order(50))
		assert.False(t, book.CancelOrder(50))

		audit := book.AllOrders()
		last := audit[len(audit)-1]
		assert.Equal(t, uint64(50), last.ID)
		assert.Equal(t, Market, last.Type)
		assert.Equal(t, int64(2), last.Quantity)
	})

	t.Run("market order uses resting prices", func(t *testing.T) {
		book, publisher := createTestOrderBook(t)

		exec, err := book.AddOrder(&Order{ID: 50, Type: Market, Side: Buy, Quantity: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), exec.Filled)

		matches := publisher.OfType(LogTypeMatch)
		require.Len(t, matches, 3)
		assert.Equal(t, uint64(4), matches[0].MakerOrderID)
		assert.Equal(t, "110", matches[0].Price.String())
		assert.Equal(t, uint64(5), matches[1].MakerOrderID)
		assert.Equal(t, uint64(6), matches[2].MakerOrderID)
		assert.True(t, matches[0].TakerPrice.IsZero())

		rejects := publisher.OfType(LogTypeReject)
		require.Len(t, rejects, 1)
		assert.Equal(t, int64(7), rejects[0].Size)
		assert.Equal(t, RejectReasonNoLiquidity, rejects[0].RejectReason)
	})
}

func TestCancelOrder(t *testing.T) {
	book, publisher := createTestOrderBook(t)

	assert.True(t, book.CancelOrder(1))
	bid, _ := book.BestBidAsk()
	assert.Equal(t, "80", bid.String())

	assert.False(t, book.CancelOrder(1))
	assert.False(t, book.CancelOrder(999))

	cancels := publisher.OfType(LogTypeCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, uint64(1), cancels[0].OrderID)

	rejects := publisher.OfType(LogTypeReject)
	require.Len(t, rejects, 2)
	assert.Equal(t, RejectReasonOrderNotFound, rejects[0].RejectReason)

	t.Run("filled orders cannot be cancelled", func(t *testing.T) {
		_, err := book.AddOrder(limit(20, Buy, 110, 1))
		require.NoError(t, err)
		require.Len(t, book.Match(decimal.Zero), 1)

		assert.False(t, book.CancelOrder(20))
		assert.False(t, book.CancelOrder(4))
	})
}

func TestAmendOrder(t *testing.T) {
	t.Run("price change moves level and keeps timestamp", func(t *testing.T) {
		book, publisher := createTestOrderBook(t)
		before, _ := book.Order(3)

		price := decimal.NewFromInt(95)
		assert.True(t, book.AmendOrder(3, &price, nil))

		bid, _ := book.BestBidAsk()
		assert.Equal(t, "95", bid.String())

		after, ok := book.Order(3)
		require.True(t, ok)
		assert.Equal(t, before.Timestamp, after.Timestamp)
		assert.Equal(t, int64(1), after.Quantity)

		amends := publisher.OfType(LogTypeAmend)
		require.Len(t, amends, 1)
		assert.Equal(t, "70", amends[0].OldPrice.String())
		assert.Equal(t, "95", amends[0].Price.String())
	})

	t.Run("original timestamp keeps priority within the new level", func(t *testing.T) {
		book := NewOrderBook(WithClock(testClock()))
		_, _ = book.AddOrder(limit(1, Buy, 90, 1))
		_, _ = book.AddOrder(limit(2, Buy, 80, 1))

		price := decimal.NewFromInt(80)
		qty := int64(4)
		assert.True(t, book.AmendOrder(1, &price, &qty))

		orders := book.Bids().Orders()
		require.Len(t, orders, 2)
		assert.Equal(t, uint64(1), orders[0].ID)
		assert.Equal(t, int64(4), orders[0].Quantity)
	})

	t.Run("marketable amendment waits for match", func(t *testing.T) {
		book, _ := createTestOrderBook(t)

		price := decimal.NewFromInt(115)
		assert.True(t, book.AmendOrder(1, &price, nil))
		assert.Empty(t, book.Trades())

		trades := book.Match(decimal.Zero)
		require.Len(t, trades, 1)
		assert.Equal(t, "110", trades[0].Price.String())
	})

	t.Run("unknown or invalid", func(t *testing.T) {
		book, _ := createTestOrderBook(t)

		qty := int64(5)
		assert.False(t, book.AmendOrder(999, nil, &qty))

		zero := int64(0)
		assert.False(t, book.AmendOrder(1, nil, &zero))
		o, _ := book.Order(1)
		assert.Equal(t, int64(1), o.Quantity)
	})
}

func TestMatchLogs(t *testing.T) {
	book, publisher := createTestOrderBook(t)

	_, err := book.AddOrder(limit(7, Buy, 1000, 10))
	require.NoError(t, err)

	trades := book.Match(decimal.Zero)
	require.Len(t, trades, 3)

	// 6 setup opens + 1 open + 3 matches
	assert.Equal(t, 10, publisher.Count())
	for i, log := range publisher.Logs() {
		assert.Equal(t, uint64(i+1), log.SequenceID)
	}

	match1 := publisher.Get(7)
	assert.Equal(t, LogTypeMatch, match1.Type)
	assert.Equal(t, uint64(7), match1.OrderID)
	assert.Equal(t, uint64(4), match1.MakerOrderID)
	assert.Equal(t, "1000", match1.TakerPrice.String())
	assert.Equal(t, "110", match1.Amount.String())

	assert.Equal(t, int64(0), book.Asks().Levels())
	bid, _ := book.BestBidAsk()
	assert.Equal(t, "1000", bid.String())
	o, _ := book.Order(7)
	assert.Equal(t, int64(7), o.Quantity)
}

func TestOwnerNotification(t *testing.T) {
	book := NewOrderBook()

	var fills []Fill
	owner := book.RegisterOwner(FillHandlerFunc(func(f Fill) {
		fills = append(fills, f)
	}))

	_, _ = book.AddOrder(&Order{ID: 1, Type: Limit, Side: Sell, Price: decimal.NewFromInt(100), Quantity: 5, Owner: owner})
	_, _ = book.AddOrder(&Order{ID: 2, Type: Market, Side: Buy, Quantity: 2, Owner: owner})

	require.Len(t, fills, 2)
	assert.Equal(t, uint64(2), fills[0].OrderID)
	assert.Equal(t, Buy, fills[0].Side)
	assert.Equal(t, uint64(1), fills[1].OrderID)
	assert.Equal(t, Sell, fills[1].Side)
	assert.Equal(t, int64(3), fills[1].Remaining)
	// no reference or prior trade: the book falls back to 100
	assert.Equal(t, "100", fills[1].ReferencePrice.String())

	_, _ = book.AddOrder(&Order{ID: 3, Type: Limit, Side: Buy, Price: decimal.NewFromInt(101), Quantity: 1, Owner: owner})
	book.Match(decimal.NewFromInt(120))
	require.Len(t, fills, 4)
	assert.Equal(t, "120", fills[3].ReferencePrice.String())
	assert.Equal(t, "100", fills[3].Price.String())

	book.UnregisterOwner(owner)
	_, _ = book.AddOrder(&Order{ID: 4, Type: Market, Side: Buy, Quantity: 1})
	assert.Len(t, fills, 4)
}

func TestMark(t *testing.T) {
	book := NewOrderBook(WithFallbackMark(decimal.NewFromInt(50)))
	assert.Equal(t, "50", book.Mark().String())

	_, _ = book.AddOrder(limit(1, Sell, 60, 1))
	_, _ = book.AddOrder(&Order{Type: Market, Side: Buy, Quantity: 1})
	p, ok := book.LastTradePrice()
	require.True(t, ok)
	assert.Equal(t, "60", p.String())
	assert.Equal(t, "60", book.Mark().String())

	book.SetReferencePrice(decimal.NewFromInt(70))
	assert.Equal(t, "70", book.Mark().String())
}

func TestDepthAndPrint(t *testing.T) {
	book, _ := createTestOrderBook(t)

	_, err := book.Depth(0)
	assert.ErrorIs(t, err, ErrInvalidParam)

	depth, err := book.Depth(2)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 2)
	assert.Equal(t, "90", depth.Bids[0].Price.String())
	assert.Equal(t, "110", depth.Asks[0].Price.String())
	assert.Equal(t, uint64(6), depth.UpdateID)

	stats := book.Stats()
	assert.Equal(t, int64(3), stats.BidOrderCount)
	assert.Equal(t, int64(3), stats.AskDepthCount)

	var buf bytes.Buffer
	require.NoError(t, book.PrintBook(&buf))
	assert.Contains(t, buf.String(), "110.00")
	assert.Contains(t, buf.String(), "buy")
}
