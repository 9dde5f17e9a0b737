package match

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

type priceUnit struct {
	totalSize int64
	head      *Order
	tail      *Order
	count     int64
}

// PriorityBook keeps the resting limit orders of one side in price-time priority.
// Price levels live in a skiplist ordered best-first; each level is an intrusive
// FIFO list ordered by submission timestamp. Orders are indexed by id, so removal
// by id unlinks in O(1) and only touches the skiplist when a level empties.
type PriorityBook struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	orders      map[uint64]*Order
}

// NewBuyerQueue creates a new queue for buy orders (bids).
// The orders are sorted by price in descending order (highest price first).
func NewBuyerQueue() *PriorityBook {
	return &PriorityBook{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			if d1.LessThan(d2) {
				return 1
			} else if d1.GreaterThan(d2) {
				return -1
			}

			return 0
		})),
		orders: make(map[uint64]*Order),
	}
}

// NewSellerQueue creates a new queue for sell orders (asks).
// The orders are sorted by price in ascending order (lowest price first).
func NewSellerQueue() *PriorityBook {
	return &PriorityBook{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)

			if d1.GreaterThan(d2) {
				return 1
			} else if d1.LessThan(d2) {
				return -1
			}

			return 0
		})),
		orders: make(map[uint64]*Order),
	}
}

// Side returns the side this book holds.
func (q *PriorityBook) Side() Side {
	return q.side
}

// Order finds a resting order by its ID.
func (q *PriorityBook) Order(id uint64) *Order {
	return q.orders[id]
}

// Best returns the order that must be filled next, or nil when the side is empty.
func (q *PriorityBook) Best() *Order {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}

	unit, _ := el.Value.(*priceUnit)
	return unit.head
}

// Insert adds a resting order. Within a price level the order is placed after
// every order with an earlier or equal timestamp, so an amended order keeps
// the rank its original timestamp earns.
func (q *PriorityBook) Insert(order *Order) {
	el := q.depthList.Get(order.Price)
	if el == nil {
		unit := &priceUnit{
			head:      order,
			tail:      order,
			totalSize: order.Quantity,
			count:     1,
		}
		order.next = nil
		order.prev = nil

		q.depthList.Set(order.Price, unit)
		q.orders[order.ID] = order
		q.totalOrders++
		q.depths++
		return
	}

	unit, _ := el.Value.(*priceUnit)

	after := unit.tail
	for after != nil && after.Timestamp > order.Timestamp {
		after = after.prev
	}

	if after == nil {
		// Push Front
		order.prev = nil
		order.next = unit.head
		unit.head.prev = order
		unit.head = order
	} else {
		order.prev = after
		order.next = after.next
		if after.next != nil {
			after.next.prev = order
		} else {
			unit.tail = order
		}
		after.next = order
	}

	unit.totalSize += order.Quantity
	unit.count++
	q.orders[order.ID] = order
	q.totalOrders++
}

// Remove takes the order out of the book and returns it, or nil if the id is not resting here.
func (q *PriorityBook) Remove(id uint64) *Order {
	order, ok := q.orders[id]
	if !ok {
		return nil
	}

	el := q.depthList.Get(order.Price)
	if el == nil {
		return nil
	}
	unit, _ := el.Value.(*priceUnit)

	if order.prev != nil {
		order.prev.next = order.next
	} else {
		unit.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		unit.tail = order.prev
	}

	order.next = nil
	order.prev = nil

	unit.totalSize -= order.Quantity
	unit.count--
	delete(q.orders, id)
	q.totalOrders--

	if unit.count == 0 {
		q.depthList.RemoveElement(el)
		q.depths--
	}

	return order
}

// Fill reduces a resting order by qty in place and drops it once nothing remains.
// It reports whether the order left the book.
func (q *PriorityBook) Fill(order *Order, qty int64) bool {
	el := q.depthList.Get(order.Price)
	if el != nil {
		unit, _ := el.Value.(*priceUnit)
		unit.totalSize -= qty
	}
	order.Quantity -= qty

	if order.Quantity > 0 {
		return false
	}

	// Level total already reflects the fill; Remove subtracts the zero remainder.
	q.Remove(order.ID)
	return true
}

// Len returns the total number of orders in the queue.
func (q *PriorityBook) Len() int64 {
	return q.totalOrders
}

// Levels returns the number of price levels in the queue.
func (q *PriorityBook) Levels() int64 {
	return q.depths
}

// Each visits resting orders in priority order until fn returns false.
func (q *PriorityBook) Each(fn func(*Order) bool) {
	for elem := q.depthList.Front(); elem != nil; elem = elem.Next() {
		unit, _ := elem.Value.(*priceUnit)
		for order := unit.head; order != nil; order = order.next {
			if !fn(order) {
				return
			}
		}
	}
}

// Orders returns value copies of the resting orders in priority order.
func (q *PriorityBook) Orders() []Order {
	snapshots := make([]Order, 0, q.totalOrders)
	q.Each(func(o *Order) bool {
		snapshots = append(snapshots, o.copy())
		return true
	})
	return snapshots
}

// Depth returns the aggregated size per price level, best first, up to limit levels.
func (q *PriorityBook) Depth(limit uint32) []*DepthItem {
	result := make([]*DepthItem, 0, limit)

	el := q.depthList.Front()

	var i uint32 = 0
	for i < limit && el != nil {
		unit, _ := el.Value.(*priceUnit)
		result = append(result, &DepthItem{
			ID:    i,
			Price: unit.head.Price,
			Size:  unit.totalSize,
			Count: unit.count,
		})

		el = el.Next()
		i++
	}

	return result
}
