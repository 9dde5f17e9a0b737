// Package export writes run artefacts as CSV.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/Krish-B-Shah/order-book-trading-bot/simulation"
)

var (
	orderHeader = []string{"order_id", "side", "type", "price", "quantity", "timestamp"}
	tradeHeader = []string{"trade_id", "price", "quantity", "buy_order_id", "sell_order_id", "taker_side", "timestamp"}
	roundHeader = []string{"round", "timestamp", "bid", "ask", "price", "cash", "inventory", "pnl", "adjusted_pnl", "quotes", "trades", "active_orders", "suspension"}
)

// WriteOrders writes the audit log. Market orders carry an empty price.
func WriteOrders(w io.Writer, orders []match.Order) error {
	return write(w, orderHeader, len(orders), func(i int) []string {
		o := orders[i]
		price := ""
		if !o.IsMarket() {
			price = o.Price.String()
		}
		return []string{
			strconv.FormatUint(o.ID, 10),
			o.Side.String(),
			string(o.Type),
			price,
			strconv.FormatInt(o.Quantity, 10),
			time.Unix(0, o.Timestamp).UTC().Format(time.RFC3339Nano),
		}
	})
}

func WriteTrades(w io.Writer, trades []match.Trade) error {
	return write(w, tradeHeader, len(trades), func(i int) []string {
		t := trades[i]
		return []string{
			strconv.FormatUint(t.ID, 10),
			t.Price.String(),
			strconv.FormatInt(t.Quantity, 10),
			strconv.FormatUint(t.BuyOrderID, 10),
			strconv.FormatUint(t.SellOrderID, 10),
			t.TakerSide.String(),
			t.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	})
}

func WriteRounds(w io.Writer, rounds []simulation.RoundStatus) error {
	return write(w, roundHeader, len(rounds), func(i int) []string {
		r := rounds[i]
		return []string{
			strconv.Itoa(r.Round),
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Bid.String(),
			r.Ask.String(),
			r.Price.String(),
			r.Cash.StringFixed(2),
			strconv.FormatInt(r.Inventory, 10),
			r.PnL.StringFixed(2),
			r.AdjustedPnL.StringFixed(2),
			strconv.Itoa(r.Quotes),
			strconv.Itoa(r.Trades),
			strconv.Itoa(r.ActiveOrders),
			r.Suspension,
		}
	})
}

func write(w io.Writer, header []string, n int, row func(int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
