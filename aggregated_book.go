package match

import (
	"fmt"
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// AggregatedBook maintains a simplified view of the order book,
// tracking only price levels and their aggregated sizes (depth).
// It is designed for downstream consumers that rebuild depth from
// BookLog events, and it can be used directly as a PublishLog.
type AggregatedBook struct {
	mu    sync.RWMutex
	seqID uint64 // Last processed SequenceID for gap detection and deduplication
	ask   *treemap.TreeMap[decimal.Decimal, int64]
	bid   *treemap.TreeMap[decimal.Decimal, int64]
}

func newLevelTree() *treemap.TreeMap[decimal.Decimal, int64] {
	return treemap.NewWithKeyCompare[decimal.Decimal, int64](func(a, b decimal.Decimal) bool {
		return a.LessThan(b)
	})
}

// NewAggregatedBook creates a new AggregatedBook instance with empty ask and bid sides.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: newLevelTree(),
		bid: newLevelTree(),
	}
}

// SequenceID returns the last processed sequence ID.
func (ab *AggregatedBook) SequenceID() uint64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.seqID
}

// Replay applies a BookLog event to update the aggregated book state.
// Already-seen sequence ids are ignored. A gap returns ErrSequenceGap and
// leaves the state untouched; the caller should rebuild from a snapshot.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if log.SequenceID <= ab.seqID {
		return nil
	}
	if log.SequenceID != ab.seqID+1 {
		return fmt.Errorf("expected %d got %d: %w", ab.seqID+1, log.SequenceID, ErrSequenceGap)
	}

	for _, change := range CalculateDepthChanges(log) {
		ab.apply(change)
	}
	ab.seqID = log.SequenceID
	return nil
}

// Publish implements PublishLog. Gaps are logged and the remaining logs skipped.
func (ab *AggregatedBook) Publish(logs ...*BookLog) {
	for _, log := range logs {
		if err := ab.Replay(log); err != nil {
			logger.Error("aggregated book replay failed", "seq_id", log.SequenceID, "error", err)
			return
		}
	}
}

func (ab *AggregatedBook) apply(change DepthChange) {
	tree := ab.tree(change.Side)

	size, _ := tree.Get(change.Price)
	size += change.SizeDiff
	if size <= 0 {
		tree.Del(change.Price)
		return
	}
	tree.Set(change.Price, size)
}

// OnRebuild resets the aggregated book from a snapshot.
// This should be called before replaying events newer than snap.SeqID.
func (ab *AggregatedBook) OnRebuild(snap *BookSnapshot) error {
	if snap == nil {
		return ErrInvalidParam
	}

	ab.mu.Lock()
	defer ab.mu.Unlock()

	ab.ask.Clear()
	ab.bid.Clear()
	for _, o := range snap.Bids {
		ab.apply(DepthChange{Side: Buy, Price: o.Price, SizeDiff: o.Quantity})
	}
	for _, o := range snap.Asks {
		ab.apply(DepthChange{Side: Sell, Price: o.Price, SizeDiff: o.Quantity})
	}
	ab.seqID = snap.SeqID
	return nil
}

// Depth returns the aggregated size at a specific price level for the given side.
// Returns zero if the price level does not exist.
func (ab *AggregatedBook) Depth(side Side, price decimal.Decimal) int64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	size, _ := ab.tree(side).Get(price)
	return size
}

// Levels returns up to limit levels of one side, best price first.
func (ab *AggregatedBook) Levels(side Side, limit int) []*DepthItem {
	if limit <= 0 {
		return nil
	}

	ab.mu.RLock()
	defer ab.mu.RUnlock()

	result := make([]*DepthItem, 0, limit)
	add := func(price decimal.Decimal, size int64) bool {
		result = append(result, &DepthItem{ID: uint32(len(result)), Price: price, Size: size})
		return len(result) < limit
	}

	if side == Buy {
		for it := ab.bid.Reverse(); it.Valid(); it.Next() {
			if !add(it.Key(), it.Value()) {
				break
			}
		}
		return result
	}

	for it := ab.ask.Iterator(); it.Valid(); it.Next() {
		if !add(it.Key(), it.Value()) {
			break
		}
	}
	return result
}

func (ab *AggregatedBook) tree(side Side) *treemap.TreeMap[decimal.Decimal, int64] {
	if side == Buy {
		return ab.bid
	}
	return ab.ask
}
