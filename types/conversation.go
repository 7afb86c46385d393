package types

import "fmt"

type ChatKind string

const (
	ChatKindDM       ChatKind = "dm"
	ChatKindChatroom ChatKind = "chatroom"
	ChatKindEvent    ChatKind = "event"
	ChatKindMeetup   ChatKind = "meetup"
)

func (k ChatKind) Valid() bool {
	switch k {
	case ChatKindDM, ChatKindChatroom, ChatKindEvent, ChatKindMeetup:
		return true
	}
	return false
}

// Conversation identifies the target of an event from the point of view of the
// authenticated sender. For DMs, RoomId holds the other party's user id.
type Conversation struct {
	Kind   ChatKind
	RoomId int64
	SelfId int64
}

func (c Conversation) PeerId() int64 {
	return c.RoomId
}

// Key is a stable identifier usable as a map key; the DM pair is ordered so both
// directions map onto the same conversation.
func (c Conversation) Key() string {
	if c.Kind == ChatKindDM {
		a, b := c.SelfId, c.RoomId
		if a > b {
			a, b = b, a
		}
		return fmt.Sprintf("dm:%d:%d", a, b)
	}
	return fmt.Sprintf("%s:%d", c.Kind, c.RoomId)
}
