// Package kafka wraps segmentio/kafka-go for the outbox relay and the
// notification consumer. An empty broker list disables both.
package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrDisabled = errors.New("kafka disabled")

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewReader joins groupID on topic. Offsets are committed explicitly by the
// caller, and a new group starts from the oldest retained message.
func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(c.readerConfig(topic, groupID))
}

func (c *Client) readerConfig(topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     c.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	}
}

// Publisher writes pre-encoded messages to any topic through one writer.
// Messages sharing a key land on the same partition.
type Publisher struct {
	w *kafka.Writer
}

func (c *Client) NewPublisher() (*Publisher, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: value, Time: time.Now().UTC()})
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
