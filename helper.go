package match

import "github.com/shopspring/decimal"

// CalculateDepthChanges calculates the depth changes implied by a book log.
// Match events always reduce the maker's side. When the taker was a resting
// limit order (TakerPrice set), its own level shrinks too.
func CalculateDepthChanges(log *BookLog) []DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return []DepthChange{{Side: log.Side, Price: log.Price, SizeDiff: log.Size}}
	case LogTypeCancel:
		return []DepthChange{{Side: log.Side, Price: log.Price, SizeDiff: -log.Size}}
	case LogTypeMatch:
		changes := []DepthChange{{Side: log.Side.Opposite(), Price: makerPrice(log), SizeDiff: -log.Size}}
		if !log.TakerPrice.IsZero() {
			changes = append(changes, DepthChange{Side: log.Side, Price: log.TakerPrice, SizeDiff: -log.Size})
		}
		return changes
	case LogTypeAmend:
		// Amendment is remove-then-reinsert.
		if log.OldPrice.Equal(log.Price) {
			return []DepthChange{{Side: log.Side, Price: log.Price, SizeDiff: log.Size - log.OldSize}}
		}
		return []DepthChange{
			{Side: log.Side, Price: log.OldPrice, SizeDiff: -log.OldSize},
			{Side: log.Side, Price: log.Price, SizeDiff: log.Size},
		}
	case LogTypeReject:
		// Rejected orders never entered the book, so no depth change.
		return nil
	}

	return nil
}

func makerPrice(log *BookLog) decimal.Decimal {
	if log.MakerPrice.IsZero() {
		return log.Price
	}
	return log.MakerPrice
}
