// Package broker fans stream payloads out to any number of local or remote
// consumers with per-topic ordering.
package broker

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by Subscribe when lastEventID does not name a
// retained message of the topic.
var ErrUnknownEventID = errors.New("broker: unknown event id")

// ErrTopicClosed is returned by Subscribe when the topic is cleaned up while
// the subscription is active.
var ErrTopicClosed = errors.New("broker: topic closed")

// Broker stores and delivers messages per topic. Messages of one topic are
// delivered to every subscriber in publish order.
type Broker interface {
	// Publish appends data to topic and returns the generated event ID.
	Publish(ctx context.Context, topic string, data []byte) (eventID string, err error)

	// Subscribe calls handler for each message of topic until ctx is done or
	// handler returns an error, which is then returned. If lastEventID is
	// empty the subscription starts with the next published message,
	// otherwise it resumes with the message after lastEventID.
	Subscribe(ctx context.Context, topic string, lastEventID string, handler MessageHandler) error

	// Cleanup removes all stored messages of topic.
	Cleanup(ctx context.Context, topic string) error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, env MessageEnvelope) error

// MessageEnvelope wraps a message with its event ID.
type MessageEnvelope struct {
	// ID is unique and increasing within the topic.
	ID string `json:"id"`
	// Data is the message payload as published.
	Data []byte `json:"data"`
}
