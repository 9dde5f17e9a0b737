// Package kafkalog ships order book events to a Kafka topic.
package kafkalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Option func(*Publisher)

// WithTimeout bounds each synchronous write.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// Publisher implements match.PublishLog. Each BookLog becomes one JSON
// message keyed by order id so events of one order stay in one partition.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewWriter returns a synchronous writer that waits for all in-sync replicas.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewPublisher(w MessageWriter, opts ...Option) *Publisher {
	p := &Publisher{
		writer:  w,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes the logs before returning since the book recycles them.
// Delivery failures are logged and counted; matching is never blocked on them
// beyond the write timeout.
func (p *Publisher) Publish(logs ...*match.BookLog) {
	if len(logs) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(logs))
	for _, log := range logs {
		value, err := json.Marshal(log)
		if err != nil {
			p.failed.Add(1)
			p.logger.Error("encode book log", "seq_id", log.SequenceID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(log.OrderID, 10)),
			Value: value,
			Time:  log.CreatedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.failed.Add(uint64(len(msgs)))
		p.logger.Error("publish book logs", "count", len(msgs), "first_seq_id", logs[0].SequenceID, "error", err)
		return
	}
	p.published.Add(uint64(len(msgs)))
}

// Published returns how many messages were delivered.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Failed returns how many messages could not be encoded or delivered.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
