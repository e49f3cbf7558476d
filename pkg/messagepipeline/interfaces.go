package messagepipeline

import (
	"context"
)

// ====================================================================================
// This file defines the core contracts for the indexing pipeline: consuming
// queued webhook events, transforming them, and processing the result.
// ====================================================================================

// MessageConsumer defines the interface for a message source (e.g. SQS).
// It fetches messages and hands them to the pipeline via a channel.
type MessageConsumer interface {
	// Messages returns a read-only channel from which pipeline workers receive messages.
	Messages() <-chan Message
	// Start begins the consumption process (e.g. the long-poll receive loop).
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// MessageTransformer transforms a raw Message into a structured payload of
// type T. Returning skip=true acknowledges the message without further
// processing, which is how unrecognized event types are dropped without
// blocking the queue. Returning an error leaves the message for redelivery.
// Together with the processor's error return this forms the explicit
// ack-or-retry result the poll loop inspects; control flow never signals
// retry by panicking.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// StreamProcessor handles transformed messages of type T one by one. A nil
// return acknowledges the original message; an error leaves it for
// redelivery.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error

// MessagePublisher is the enqueue side of the pipeline, used by the webhook
// ingress. The body is forwarded verbatim; attributes carry event metadata.
type MessagePublisher interface {
	Publish(ctx context.Context, body []byte, attributes map[string]string) error
}
