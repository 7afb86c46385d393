package persistence

import (
	"fmt"

	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/types"
)

// Stores bundles every persistence concern the engine touches and picks the
// conversation adapter for a chat kind.
type Stores struct {
	Users       UserStore
	Memberships MembershipStore

	dm       ConversationStore
	chatroom ConversationStore
	meetup   ConversationStore

	gormPersist *GormPersist
	meetupStore *MeetupStore
}

func NewStores(cfg *config.Config) (*Stores, error) {
	gormPersist, err := NewGormPersister(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not set up relational store: %w", err)
	}
	meetupStore, err := NewMeetupStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not set up meetup store: %w", err)
	}
	users, err := NewCachedUserStore(gormPersist, cfg.CacheSize())
	if err != nil {
		return nil, err
	}
	return &Stores{
		Users:       users,
		Memberships: gormPersist,
		dm:          gormPersist.DMs(),
		chatroom:    gormPersist.Chatrooms(),
		meetup:      meetupStore,
		gormPersist: gormPersist,
		meetupStore: meetupStore,
	}, nil
}

// Conversation returns the adapter for the given chat kind. City and event
// chatrooms share one storage shape.
func (s *Stores) Conversation(kind types.ChatKind) (ConversationStore, error) {
	switch kind {
	case types.ChatKindDM:
		return s.dm, nil
	case types.ChatKindChatroom, types.ChatKindEvent:
		return s.chatroom, nil
	case types.ChatKindMeetup:
		return s.meetup, nil
	}
	return nil, fmt.Errorf("unknown chat kind %q", kind)
}

func (s *Stores) Close() error {
	if s.meetupStore != nil {
		if err := s.meetupStore.Close(); err != nil {
			return err
		}
	}
	if s.gormPersist != nil {
		return s.gormPersist.Close()
	}
	return nil
}
