package match

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

type ledgerEntry struct {
	inventory int64
	cash      decimal.Decimal
}

// drawOrder generates a random limit or market order around a price of 100.
func drawOrder(t *rapid.T, label string) *Order {
	side := Buy
	if rapid.Bool().Draw(t, label+"_sell") {
		side = Sell
	}
	o := &Order{
		Side:     side,
		Type:     Limit,
		Price:    decimal.NewFromInt(rapid.Int64Range(95, 105).Draw(t, label+"_price")),
		Quantity: rapid.Int64Range(1, 20).Draw(t, label+"_qty"),
	}
	if rapid.IntRange(0, 4).Draw(t, label+"_market") == 0 {
		o.Type = Market
		o.Price = decimal.Zero
	}
	return o
}

func outranks(side Side, a, b Order) bool {
	if !a.Price.Equal(b.Price) {
		if side == Buy {
			return a.Price.GreaterThan(b.Price)
		}
		return a.Price.LessThan(b.Price)
	}
	return a.Timestamp <= b.Timestamp
}

func TestProperty_PriorityOrderIsTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook(WithClock(testClock()))

		n := rapid.IntRange(1, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			o := drawOrder(t, "o")
			o.Type = Limit
			if o.Price.IsZero() {
				o.Price = decimal.NewFromInt(100)
			}
			if _, err := book.AddOrder(o); err != nil {
				t.Fatalf("add: %v", err)
			}
			if rapid.IntRange(0, 5).Draw(t, "cancel") == 0 {
				book.CancelOrder(uint64(rapid.IntRange(1, i+1).Draw(t, "cancel_id")))
			}
		}

		for _, q := range []*PriorityBook{book.Bids(), book.Asks()} {
			orders := q.Orders()
			for i := 1; i < len(orders); i++ {
				if !outranks(q.Side(), orders[i-1], orders[i]) {
					t.Fatalf("%s side out of order at %d: %+v before %+v", q.Side(), i, orders[i-1], orders[i])
				}
			}
			if best := q.Best(); len(orders) > 0 && best.ID != orders[0].ID {
				t.Fatalf("best %d is not head %d", best.ID, orders[0].ID)
			}
		}
	})
}

func TestProperty_ConservationAndNonNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook(WithClock(testClock()))

		ledgers := map[Side]*ledgerEntry{Buy: {}, Sell: {}}
		handler := FillHandlerFunc(func(f Fill) {
			l := ledgers[f.Side]
			qty := decimal.NewFromInt(f.Quantity)
			if f.Side == Buy {
				l.inventory += f.Quantity
				l.cash = l.cash.Sub(f.Price.Mul(qty))
			} else {
				l.inventory -= f.Quantity
				l.cash = l.cash.Add(f.Price.Mul(qty))
			}
			if f.Remaining < 0 {
				t.Fatalf("negative remaining on order %d", f.OrderID)
			}
		})
		owner := book.RegisterOwner(handler)

		n := rapid.IntRange(1, 80).Draw(t, "n")
		for i := 0; i < n; i++ {
			o := drawOrder(t, "o")
			o.Owner = owner
			exec, err := book.AddOrder(o)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if o.IsMarket() {
				if book.Bids().Order(o.ID) != nil || book.Asks().Order(o.ID) != nil {
					t.Fatalf("market order %d rests", o.ID)
				}
				if exec.Filled > exec.Requested {
					t.Fatalf("overfilled market order %d", o.ID)
				}
			}
			if rapid.Bool().Draw(t, "match") {
				book.Match(decimal.Zero)
			}
		}
		book.Match(decimal.Zero)

		var bought, sold int64
		for _, tr := range book.Trades() {
			if tr.Quantity <= 0 {
				t.Fatalf("trade %d has quantity %d", tr.ID, tr.Quantity)
			}
			bought += tr.Quantity
			sold += tr.Quantity
		}
		if ledgers[Buy].inventory != bought || -ledgers[Sell].inventory != sold {
			t.Fatalf("inventory drift: buy=%d sell=%d trades=%d", ledgers[Buy].inventory, ledgers[Sell].inventory, bought)
		}
		if !ledgers[Buy].cash.Add(ledgers[Sell].cash).IsZero() {
			t.Fatalf("cash not conserved: %s + %s", ledgers[Buy].cash, ledgers[Sell].cash)
		}

		for _, q := range []*PriorityBook{book.Bids(), book.Asks()} {
			q.Each(func(o *Order) bool {
				if o.Quantity <= 0 {
					t.Fatalf("order %d rests with quantity %d", o.ID, o.Quantity)
				}
				return true
			})
		}

		bid, ask := book.BestBidAsk()
		if bid != nil && ask != nil && bid.GreaterThanOrEqual(*ask) {
			t.Fatalf("book left crossed after match: %s >= %s", bid, ask)
		}
	})
}

func TestProperty_DuplicateIDRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook()
		id := rapid.Uint64Range(1, 1000).Draw(t, "id")

		first := limit(id, Buy, 100, 1)
		if _, err := book.AddOrder(first); err != nil {
			t.Fatalf("first add: %v", err)
		}
		second := limit(id, Sell, rapid.Int64Range(1, 200).Draw(t, "price"), 5)
		if _, err := book.AddOrder(second); err == nil {
			t.Fatalf("duplicate id %d admitted", id)
		}
		if book.Asks().Len() != 0 || len(book.AllOrders()) != 1 {
			t.Fatalf("duplicate order leaked into book")
		}
	})
}
