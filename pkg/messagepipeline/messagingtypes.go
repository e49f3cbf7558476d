package messagepipeline

import (
	"time"
)

// Message is the canonical, internal representation of a queued webhook event
// flowing through the pipeline. It carries the payload, broker metadata, and
// acknowledgment handles.
type Message struct {
	MessageData

	// Attributes holds metadata from the message broker (e.g. the eventType
	// and eventId SQS message attributes set by the ingress).
	Attributes map[string]string

	// Ack signals that processing succeeded and the message must be deleted
	// from the queue.
	Ack func()

	// Nack signals that processing failed. The message is left in place and
	// becomes visible again after the queue's visibility window, eventually
	// dead-lettering once the delivery-count threshold is exceeded.
	Nack func()
}

// MessageData holds the essential payload of a message.
type MessageData struct {
	// ID is the broker-assigned message id.
	ID string `json:"id"`

	// Payload is the raw byte content of the message: the original webhook
	// body, forwarded verbatim by the ingress.
	Payload []byte `json:"payload"`

	// PublishTime is when the message was originally enqueued, where the
	// broker reports it.
	PublishTime time.Time `json:"publishTime"`
}

// Attribute returns the named broker attribute, or def when absent or empty.
func (m *Message) Attribute(key, def string) string {
	if v, ok := m.Attributes[key]; ok && v != "" {
		return v
	}
	return def
}
