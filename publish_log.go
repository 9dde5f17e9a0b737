package match

import "sync"

// PublishLog receives every BookLog an OrderBook emits, in sequence order.
//
// The book returns each BookLog to a pool once Publish returns, so an
// implementation that keeps a log beyond the call must copy it first.
type PublishLog interface {
	Publish(...*BookLog)
}

// MemoryPublishLog keeps copies of every log. Tests use it to assert on book events.
type MemoryPublishLog struct {
	mu   sync.RWMutex
	logs []*BookLog
}

func NewMemoryPublishLog() *MemoryPublishLog {
	return &MemoryPublishLog{}
}

func (m *MemoryPublishLog) Publish(logs ...*BookLog) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range logs {
		cpy := *log
		m.logs = append(m.logs, &cpy)
	}
}

func (m *MemoryPublishLog) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// Get returns the index-th log; it panics when index is out of range.
func (m *MemoryPublishLog) Get(index int) *BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logs[index]
}

// Logs returns the stored logs in publish order.
func (m *MemoryPublishLog) Logs() []*BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*BookLog(nil), m.logs...)
}

// OfType filters the stored logs by type, keeping publish order.
func (m *MemoryPublishLog) OfType(typ LogType) []*BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*BookLog
	for _, log := range m.logs {
		if log.Type == typ {
			result = append(result, log)
		}
	}
	return result
}

// DiscardPublishLog drops every log. It is the OrderBook default.
type DiscardPublishLog struct{}

func NewDiscardPublishLog() *DiscardPublishLog {
	return &DiscardPublishLog{}
}

func (*DiscardPublishLog) Publish(...*BookLog) {}

// MultiPublishLog fans logs out to several publishers in order.
type MultiPublishLog []PublishLog

func (m MultiPublishLog) Publish(logs ...*BookLog) {
	for _, p := range m {
		p.Publish(logs...)
	}
}
