package types

import "time"

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeLocation = "location"
	MessageTypeSystem   = "system"
	MessageTypeVoice    = "voice"
)

// Message is the common view every conversation store normalizes its rows into.
// ChatroomId is zero for DMs, ReceiverId is zero for chatroom and meetup messages.
type Message struct {
	Id          string      `json:"id"`
	Kind        ChatKind    `json:"kind"`
	ChatroomId  int64       `json:"chatroom_id,omitempty"`
	SenderId    int64       `json:"sender_id"`
	ReceiverId  int64       `json:"receiver_id,omitempty"`
	Content     string      `json:"content"`
	MessageType string      `json:"message_type"`
	ReplyToId   string      `json:"reply_to_id,omitempty"`
	MediaUrl    string      `json:"media_url,omitempty"`
	Reactions   ReactionSet `json:"reactions,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
}

// InConversation reports whether the message belongs to the given conversation.
// A reply may only reference a message for which this holds.
func (m *Message) InConversation(c Conversation) bool {
	if m.Kind == ChatKindDM {
		if c.Kind != ChatKindDM {
			return false
		}
		return (m.SenderId == c.SelfId && m.ReceiverId == c.RoomId) ||
			(m.SenderId == c.RoomId && m.ReceiverId == c.SelfId)
	}
	// city and event chatrooms share a storage shape, so treat them as one kind
	if normalizeKind(m.Kind) != normalizeKind(c.Kind) {
		return false
	}
	return m.ChatroomId == c.RoomId
}

func normalizeKind(k ChatKind) ChatKind {
	if k == ChatKindEvent {
		return ChatKindChatroom
	}
	return k
}

// MessageInput is what a client-supplied message looks like before it is persisted.
type MessageInput struct {
	SenderId    int64
	Content     string
	MessageType string
	ReplyToId   string
	MediaUrl    string
}
