// Package broker publishes run results to a message broker.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Broker abstracts message publishing and consumption.
// Implemented in memory for local runs and by Redpanda for distributed runs.
type Broker interface {
	// Publish sends a message to a topic. Redpanda partitions by key; the
	// in-memory broker only carries it through.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel of messages published to topic.
	// groupID names the consumer group on Redpanda.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}

// Decode unmarshals the message value into v.
func (m Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Value, v); err != nil {
		return fmt.Errorf("failed to decode message on %s: %w", m.Topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it under key.
func PublishJSON(ctx context.Context, b Broker, topic, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}
	return b.Publish(ctx, topic, key, data)
}
