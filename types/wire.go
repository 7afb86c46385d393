package types

import "time"

// The event types carried in the envelope's "type" field.
const (
	EventTypeAuth   = "auth"
	EventTypeAuthOk = "auth:ok"

	EventTypeMessageNew      = "message:new"
	EventTypeMessageUpdate   = "message:update"
	EventTypeMessageReaction = "message:reaction"
	EventTypeMessageReply    = "message:reply"

	EventTypeTypingStart = "typing:start"
	EventTypeTypingStop  = "typing:stop"

	EventTypeReceiptSent      = "receipt:sent"
	EventTypeReceiptDelivered = "receipt:delivered"
	EventTypeReceiptRead      = "receipt:read"

	EventTypePresenceJoin  = "presence:join"
	EventTypePresenceLeave = "presence:leave"

	EventTypeSyncHistory  = "sync:history"
	EventTypeSyncResponse = "sync:response"

	EventTypeSystemError = "system:error"
)

// Envelope is what is actually sent via the websocket connection, one per frame,
// in both directions. Inbound payloads arrive as generic maps and are decoded into
// the typed events in event.go at the transport boundary.
type Envelope struct {
	Type          string      `json:"type"`
	ChatType      ChatKind    `json:"chatType,omitempty"`
	ChatroomId    int64       `json:"chatroomId,omitempty"` // for DMs: the other party's user id
	Payload       interface{} `json:"payload,omitempty"`
	CorrelationId string      `json:"correlationId,omitempty"`
	SenderId      int64       `json:"senderId,omitempty"`
	Timestamp     int64       `json:"timestamp,omitempty"` // epoch millis
}

func NewEnvelope(eventType string, conv Conversation, senderId int64, payload interface{}) *Envelope {
	return &Envelope{
		Type:       eventType,
		ChatType:   conv.Kind,
		ChatroomId: conv.RoomId,
		Payload:    payload,
		SenderId:   senderId,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// The outbound payload shapes.

// OutboundMessage is the fully enriched message view sent to clients: the stored
// message plus the sender profile and, for replies, the resolved replied-to message.
type OutboundMessage struct {
	Message
	Sender  UserSummary      `json:"sender"`
	ReplyTo *OutboundMessage `json:"reply_to,omitempty"`
}

type ReactionUpdate struct {
	MessageId string      `json:"message_id"`
	Reactions ReactionSet `json:"reactions"`
}

type TypingNotice struct {
	UserId      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type ReadReceipt struct {
	MessageId string `json:"message_id"`
	UserId    int64  `json:"user_id"`
}

type DeliveryReceipt struct {
	MessageId   string     `json:"message_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type PresenceNotice struct {
	UserId      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type HistoryResponse struct {
	Messages []*OutboundMessage `json:"messages"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
