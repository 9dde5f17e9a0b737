package match

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueOrder(id uint64, side Side, price int64, qty int64, ts int64) *Order {
	return &Order{
		ID:        id,
		Side:      side,
		Type:      Limit,
		Price:     decimal.NewFromInt(price),
		Quantity:  qty,
		Timestamp: ts,
	}
}

func TestBuyerQueue(t *testing.T) {
	q := NewBuyerQueue()

	q.Insert(newQueueOrder(101, Buy, 10, 1, 1))
	q.Insert(newQueueOrder(201, Buy, 20, 10, 2))
	q.Insert(newQueueOrder(301, Buy, 30, 10, 3))
	q.Insert(newQueueOrder(202, Buy, 20, 100, 4))

	assert.Equal(t, int64(4), q.Len())
	assert.Equal(t, int64(3), q.Levels())

	var ids []uint64
	q.Each(func(o *Order) bool {
		ids = append(ids, o.ID)
		return true
	})
	assert.Equal(t, []uint64{301, 201, 202, 101}, ids)

	ord := q.Best()
	require.NotNil(t, ord)
	assert.Equal(t, uint64(301), ord.ID)
	assert.Equal(t, "30", ord.Price.String())

	q.Remove(301)
	ord = q.Best()
	assert.Equal(t, uint64(201), ord.ID)

	q.Remove(201)
	q.Remove(202)
	ord = q.Best()
	assert.Equal(t, uint64(101), ord.ID)

	q.Remove(101)
	assert.Nil(t, q.Best())
	assert.Equal(t, int64(0), q.Len())
	assert.Equal(t, int64(0), q.Levels())
}

func TestSellerQueue(t *testing.T) {
	q := NewSellerQueue()

	q.Insert(newQueueOrder(101, Sell, 10, 1, 1))
	q.Insert(newQueueOrder(201, Sell, 20, 10, 2))
	q.Insert(newQueueOrder(301, Sell, 30, 10, 3))
	q.Insert(newQueueOrder(202, Sell, 20, 100, 4))

	var ids []uint64
	q.Each(func(o *Order) bool {
		ids = append(ids, o.ID)
		return true
	})
	assert.Equal(t, []uint64{101, 201, 202, 301}, ids)

	assert.Equal(t, uint64(101), q.Best().ID)
}

func TestQueueTimePriority(t *testing.T) {
	t.Run("later insert with earlier timestamp goes first", func(t *testing.T) {
		q := NewBuyerQueue()
		q.Insert(newQueueOrder(1, Buy, 100, 1, 30))
		q.Insert(newQueueOrder(2, Buy, 100, 1, 20))
		q.Insert(newQueueOrder(3, Buy, 100, 1, 10))
		q.Insert(newQueueOrder(4, Buy, 100, 1, 25))

		orders := q.Orders()
		require.Len(t, orders, 4)
		assert.Equal(t, uint64(3), orders[0].ID)
		assert.Equal(t, uint64(2), orders[1].ID)
		assert.Equal(t, uint64(4), orders[2].ID)
		assert.Equal(t, uint64(1), orders[3].ID)
	})

	t.Run("equal timestamps keep arrival order", func(t *testing.T) {
		q := NewSellerQueue()
		q.Insert(newQueueOrder(1, Sell, 100, 1, 5))
		q.Insert(newQueueOrder(2, Sell, 100, 1, 5))
		q.Insert(newQueueOrder(3, Sell, 100, 1, 5))

		orders := q.Orders()
		assert.Equal(t, uint64(1), orders[0].ID)
		assert.Equal(t, uint64(2), orders[1].ID)
		assert.Equal(t, uint64(3), orders[2].ID)
	})

	t.Run("price beats time", func(t *testing.T) {
		q := NewSellerQueue()
		q.Insert(newQueueOrder(1, Sell, 101, 1, 1))
		q.Insert(newQueueOrder(2, Sell, 100, 1, 99))
		assert.Equal(t, uint64(2), q.Best().ID)
	})

	t.Run("decimal scale does not split levels", func(t *testing.T) {
		q := NewBuyerQueue()
		q.Insert(newQueueOrder(1, Buy, 100, 1, 1))
		o := newQueueOrder(2, Buy, 0, 2, 2)
		o.Price = decimal.RequireFromString("100.00")
		q.Insert(o)
		assert.Equal(t, int64(1), q.Levels())
		assert.Equal(t, int64(3), q.Depth(1)[0].Size)
	})
}

func TestQueueRemoveMiddle(t *testing.T) {
	q := NewBuyerQueue()
	q.Insert(newQueueOrder(1, Buy, 100, 1, 1))
	q.Insert(newQueueOrder(2, Buy, 100, 2, 2))
	q.Insert(newQueueOrder(3, Buy, 100, 3, 3))

	removed := q.Remove(2)
	require.NotNil(t, removed)
	assert.Equal(t, uint64(2), removed.ID)
	assert.Nil(t, q.Order(2))
	assert.Nil(t, q.Remove(2))

	depth := q.Depth(10)
	require.Len(t, depth, 1)
	assert.Equal(t, int64(4), depth[0].Size)
	assert.Equal(t, int64(2), depth[0].Count)

	orders := q.Orders()
	assert.Equal(t, uint64(1), orders[0].ID)
	assert.Equal(t, uint64(3), orders[1].ID)
}

func TestQueueFill(t *testing.T) {
	q := NewSellerQueue()
	a := newQueueOrder(1, Sell, 100, 5, 1)
	b := newQueueOrder(2, Sell, 100, 5, 2)
	q.Insert(a)
	q.Insert(b)

	assert.False(t, q.Fill(a, 3))
	assert.Equal(t, int64(2), a.Quantity)
	assert.Equal(t, int64(7), q.Depth(1)[0].Size)
	assert.Equal(t, uint64(1), q.Best().ID)

	assert.True(t, q.Fill(a, 2))
	assert.Nil(t, q.Order(1))
	assert.Equal(t, uint64(2), q.Best().ID)
	assert.Equal(t, int64(5), q.Depth(1)[0].Size)

	assert.True(t, q.Fill(b, 5))
	assert.Nil(t, q.Best())
	assert.Equal(t, int64(0), q.Levels())
}

func TestQueueDepth(t *testing.T) {
	q := NewSellerQueue()
	q.Insert(newQueueOrder(1, Sell, 103, 1, 1))
	q.Insert(newQueueOrder(2, Sell, 101, 2, 2))
	q.Insert(newQueueOrder(3, Sell, 102, 3, 3))
	q.Insert(newQueueOrder(4, Sell, 101, 4, 4))

	depth := q.Depth(2)
	require.Len(t, depth, 2)
	assert.Equal(t, "101", depth[0].Price.String())
	assert.Equal(t, int64(6), depth[0].Size)
	assert.Equal(t, "102", depth[1].Price.String())
	assert.Equal(t, int64(3), depth[1].Size)
}
