package persistence

import (
	"time"

	"github.com/wanderhub/wanderhub-chat/types"
)

// UserStore resolves platform users. The engine never creates users on its own,
// profile CRUD lives outside; StoreUser exists for the admin tool and tests.
type UserStore interface {
	FindUserById(id int64) (*types.User, error) // (nil, nil) when the user does not exist
	StoreUser(user types.User) error
}

// MembershipStore answers membership questions for chatrooms (city, event and
// meetup rooms alike) and keeps the per-member read marker.
type MembershipStore interface {
	IsMember(userId, chatroomId int64) (bool, error)
	GetMembership(userId, chatroomId int64) (*types.Membership, error) // (nil, nil) when no row exists
	ActiveMemberIds(chatroomId int64) ([]int64, error)
	ChatroomsForUser(userId int64) ([]int64, error)
	StoreMembership(m types.Membership) error
	MarkRead(userId, chatroomId int64, at time.Time) error
	Deactivate(userId, chatroomId int64) error
}

// ConversationStore is the per-chat-kind adapter hiding the storage shape
// differences between DM, chatroom and meetup messages. Every method normalizes
// its native rows into the common types.Message view.
type ConversationStore interface {
	CreateMessage(conv types.Conversation, in types.MessageInput) (*types.Message, error)
	FindMessage(conv types.Conversation, id string) (*types.Message, error) // (nil, nil) when not found
	// ListSince returns messages with CreatedAt > since, newest first, capped at limit.
	ListSince(conv types.Conversation, since time.Time, limit int) ([]*types.Message, error)
	// UpdateReactions runs mutate on the message's reaction set as an atomic
	// read-modify-write and returns the updated message.
	UpdateReactions(conv types.Conversation, id string, mutate func(types.ReactionSet) types.ReactionSet) (*types.Message, error)
	UpdateContent(conv types.Conversation, id string, senderId int64, content string) (*types.Message, error)
	MarkDelivered(conv types.Conversation, id string, at time.Time) error
}
