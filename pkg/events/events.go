// Package events defines the closed set of talk change-event kinds carried by
// webhook payloads and the parsing of queued message bodies into them.
package events

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the recognized event types plus an explicit Unknown variant
// for anything else on the wire. Unknown events are valid and are acknowledged
// without side effects so they never block the queue.
type Kind int

const (
	KindUnknown Kind = iota
	KindTalkCreated
	KindTalkUpdated
	KindTalkPublished
	KindTalkUnpublished
)

// ParseKind maps an eventType wire string to its Kind.
func ParseKind(s string) Kind {
	switch s {
	case "talk.created":
		return KindTalkCreated
	case "talk.updated":
		return KindTalkUpdated
	case "talk.published":
		return KindTalkPublished
	case "talk.unpublished":
		return KindTalkUnpublished
	default:
		return KindUnknown
	}
}

// String returns the wire representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindTalkCreated:
		return "talk.created"
	case KindTalkUpdated:
		return "talk.updated"
	case KindTalkPublished:
		return "talk.published"
	case KindTalkUnpublished:
		return "talk.unpublished"
	default:
		return "unknown"
	}
}

// RequiresFetch reports whether the event kind is handled by fetching the talk
// and rewriting its full document.
func (k Kind) RequiresFetch() bool {
	switch k {
	case KindTalkCreated, KindTalkUpdated, KindTalkPublished:
		return true
	default:
		return false
	}
}

// TalkEvent is the parsed form of a queued webhook payload.
type TalkEvent struct {
	Kind     Kind
	RawType  string
	EntityID string
}

// envelope mirrors the minimum required shape of the webhook payload. The
// payload may carry more fields; they are ignored.
type envelope struct {
	EventType string `json:"eventType"`
	EntityID  string `json:"entityId"`
}

// Parse decodes a queued message body. A body that is not JSON or is missing
// either required string field is malformed; the caller leaves the message
// for redelivery.
func Parse(body []byte) (*TalkEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed event body: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("event body missing required field eventType")
	}
	if env.EntityID == "" {
		return nil, fmt.Errorf("event body missing required field entityId")
	}
	return &TalkEvent{
		Kind:     ParseKind(env.EventType),
		RawType:  env.EventType,
		EntityID: env.EntityID,
	}, nil
}
