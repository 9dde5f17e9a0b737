package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/Krish-B-Shah/order-book-trading-bot/simulation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteOrdersAndTrades(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	book := match.NewOrderBook(match.WithClock(func() time.Time { return ts }))

	_, err := book.AddOrder(&match.Order{ID: 1, Side: match.Sell, Type: match.Limit, Price: decimal.RequireFromString("100.5"), Quantity: 3})
	require.NoError(t, err)
	_, err = book.AddOrder(&match.Order{ID: 2, Side: match.Buy, Type: match.Market, Quantity: 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, book.AllOrders()))
	records := readAll(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, orderHeader, records[0])
	assert.Equal(t, []string{"1", "sell", "limit", "100.5", "3", "2024-01-02T15:00:00Z"}, records[1])
	assert.Equal(t, []string{"2", "buy", "market", "", "2", "2024-01-02T15:00:00Z"}, records[2])

	buf.Reset()
	require.NoError(t, WriteTrades(&buf, book.Trades()))
	records = readAll(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"1", "100.5", "2", "2", "1", "buy", "2024-01-02T15:00:00Z"}, records[1])
}

func TestWriteRounds(t *testing.T) {
	rounds := []simulation.RoundStatus{{
		Round:       1,
		Timestamp:   time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
		Bid:         decimal.NewFromInt(99),
		Ask:         decimal.NewFromInt(101),
		Price:       decimal.NewFromInt(100),
		Cash:        decimal.NewFromInt(9900),
		Inventory:   1,
		PnL:         decimal.NewFromInt(1),
		AdjustedPnL: decimal.NewFromInt(1),
		Quotes:      2,
		Trades:      1,
		Suspension:  "none",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteRounds(&buf, rounds))
	records := readAll(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, roundHeader, records[0])
	assert.Equal(t, []string{"1", "2024-01-02T15:00:00Z", "99", "101", "100", "9900.00", "1", "1.00", "1.00", "2", "1", "0", "none"}, records[1])
}
