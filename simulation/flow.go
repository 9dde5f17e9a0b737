package simulation

import (
	"math/rand"

	"github.com/Krish-B-Shah/order-book-trading-bot"
)

// OrderFlow generates the synthetic market orders of other participants.
type OrderFlow struct {
	SkipProbability float64
	BuyWeight       float64
	MinQuantity     int64
	MaxQuantity     int64
	PerRound        int

	rand *rand.Rand
}

// NewOrderFlow returns a buy-biased flow: two attempts per round, each
// skipped with probability 0.1, buying with probability 0.7, sized 1..10.
func NewOrderFlow(seed int64) *OrderFlow {
	return &OrderFlow{
		SkipProbability: 0.1,
		BuyWeight:       0.7,
		MinQuantity:     1,
		MaxQuantity:     10,
		PerRound:        2,
		rand:            rand.New(rand.NewSource(seed)),
	}
}

// Orders returns this round's market orders. IDs are left for the book to issue.
func (f *OrderFlow) Orders(snap MarketSnapshot) []*match.Order {
	orders := make([]*match.Order, 0, f.PerRound)
	for i := 0; i < f.PerRound; i++ {
		if f.rand.Float64() < f.SkipProbability {
			continue
		}

		o := &match.Order{
			Side:     match.Sell,
			Type:     match.Market,
			Price:    snap.Bid,
			Quantity: f.MinQuantity,
		}
		if f.rand.Float64() < f.BuyWeight {
			o.Side = match.Buy
			o.Price = snap.Ask
		}
		if span := f.MaxQuantity - f.MinQuantity; span > 0 {
			o.Quantity += f.rand.Int63n(span + 1)
		}
		orders = append(orders, o)
	}
	return orders
}
