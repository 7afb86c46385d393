package types

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Event is the decoded form of an inbound envelope, one variant per event kind.
// The router switches over these exhaustively, so adding a kind means adding a
// variant here and a case there.
type Event interface {
	GetEventType() string
}

type AuthEvent struct {
	UserId      int64  `mapstructure:"user_id"`
	DisplayName string `mapstructure:"display_name"`
}

func (e *AuthEvent) GetEventType() string { return EventTypeAuth }

type NewMessageEvent struct {
	Content     string `mapstructure:"content"`
	MessageType string `mapstructure:"message_type"`
	ReplyToId   string `mapstructure:"reply_to_id"`
	MediaUrl    string `mapstructure:"media_url"`
}

func (e *NewMessageEvent) GetEventType() string { return EventTypeMessageNew }

type UpdateMessageEvent struct {
	MessageId string `mapstructure:"message_id"`
	Content   string `mapstructure:"content"`
}

func (e *UpdateMessageEvent) GetEventType() string { return EventTypeMessageUpdate }

type ReactionEvent struct {
	MessageId string `mapstructure:"message_id"`
	Emoji     string `mapstructure:"emoji"`
}

func (e *ReactionEvent) GetEventType() string { return EventTypeMessageReaction }

type TypingEvent struct {
	Stop bool `mapstructure:"-"`
}

func (e *TypingEvent) GetEventType() string {
	if e.Stop {
		return EventTypeTypingStop
	}
	return EventTypeTypingStart
}

type ReadReceiptEvent struct {
	MessageId string `mapstructure:"message_id"`
}

func (e *ReadReceiptEvent) GetEventType() string { return EventTypeReceiptRead }

type SyncHistoryEvent struct {
	LastMessageTimestamp int64 `mapstructure:"last_message_timestamp"` // epoch millis, 0 = no cursor
}

func (e *SyncHistoryEvent) GetEventType() string { return EventTypeSyncHistory }

// UnknownEventError is returned for envelope types the engine has no handler for.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// DecodeEvent turns an inbound envelope into its typed event. The payload is
// weakly decoded, so clients may send numbers as strings and vice versa.
func DecodeEvent(env *Envelope) (Event, error) {
	decode := func(out interface{}) error {
		if env.Payload == nil {
			return nil
		}
		return mapstructure.WeakDecode(env.Payload, out)
	}
	switch env.Type {
	case EventTypeAuth:
		e := &AuthEvent{}
		return e, decode(e)

	case EventTypeMessageNew, EventTypeMessageReply:
		// a reply is just a new message with reply_to_id set
		e := &NewMessageEvent{}
		return e, decode(e)

	case EventTypeMessageUpdate:
		e := &UpdateMessageEvent{}
		return e, decode(e)

	case EventTypeMessageReaction:
		e := &ReactionEvent{}
		return e, decode(e)

	case EventTypeTypingStart:
		return &TypingEvent{}, nil

	case EventTypeTypingStop:
		return &TypingEvent{Stop: true}, nil

	case EventTypeReceiptRead:
		e := &ReadReceiptEvent{}
		return e, decode(e)

	case EventTypeSyncHistory:
		e := &SyncHistoryEvent{}
		return e, decode(e)

	default:
		return nil, &UnknownEventError{Type: env.Type}
	}
}
