package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/types"
)

func newTestMeetupStore(t *testing.T, retention string) *MeetupStore {
	t.Helper()
	cfg := &config.Config{MeetupConfig: config.MeetupConfig{Path: ":memory:", Retention: retention}}
	s, err := NewMeetupStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMeetupStoreNormalizesShape(t *testing.T) {
	s := newTestMeetupStore(t, "")
	conv := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 11, SelfId: 1}

	msg, err := s.CreateMessage(conv, types.MessageInput{
		SenderId:    1,
		Content:     "meet at the hostel bar",
		MessageType: types.MessageTypeText,
		MediaUrl:    "https://cdn.example/pin.png",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ChatKindMeetup, msg.Kind)
	assert.Equal(t, int64(11), msg.ChatroomId)
	assert.Equal(t, int64(1), msg.SenderId)
	assert.Equal(t, "meet at the hostel bar", msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())

	found, err := s.FindMessage(conv, msg.Id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, msg.Content, found.Content)
	assert.Equal(t, "https://cdn.example/pin.png", found.MediaUrl)

	missing, err := s.FindMessage(conv, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// a different meetup cannot see the message
	otherConv := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 12, SelfId: 1}
	missing, err = s.FindMessage(otherConv, msg.Id)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMeetupStoreListSince(t *testing.T) {
	s := newTestMeetupStore(t, "")
	conv := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 11, SelfId: 1}
	other := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 12, SelfId: 1}

	m1, err := s.CreateMessage(conv, types.MessageInput{SenderId: 1, Content: "one", MessageType: types.MessageTypeText})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	m2, err := s.CreateMessage(conv, types.MessageInput{SenderId: 2, Content: "two", MessageType: types.MessageTypeText})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.CreateMessage(other, types.MessageInput{SenderId: 1, Content: "elsewhere", MessageType: types.MessageTypeText})
	require.NoError(t, err)

	messages, err := s.ListSince(conv, time.Time{}, 50)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, m2.Id, messages[0].Id)
	assert.Equal(t, m1.Id, messages[1].Id)

	messages, err = s.ListSince(conv, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, m2.Id, messages[0].Id)

	messages, err = s.ListSince(conv, m1.CreatedAt, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, m2.Id, messages[0].Id)
}

func TestMeetupStoreReactions(t *testing.T) {
	s := newTestMeetupStore(t, "")
	conv := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 11, SelfId: 1}

	msg, err := s.CreateMessage(conv, types.MessageInput{SenderId: 1, Content: "x", MessageType: types.MessageTypeText})
	require.NoError(t, err)

	updated, err := s.UpdateReactions(conv, msg.Id, func(set types.ReactionSet) types.ReactionSet {
		set.Toggle("🎉", 2)
		return set
	})
	require.NoError(t, err)
	assert.True(t, updated.Reactions.Has("🎉", 2))

	updated, err = s.UpdateReactions(conv, msg.Id, func(set types.ReactionSet) types.ReactionSet {
		set.Toggle("🎉", 2)
		return set
	})
	require.NoError(t, err)
	assert.False(t, updated.Reactions.Has("🎉", 2))
}

func TestMeetupStoreUpdateContent(t *testing.T) {
	s := newTestMeetupStore(t, "")
	conv := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 11, SelfId: 1}

	msg, err := s.CreateMessage(conv, types.MessageInput{SenderId: 1, Content: "old", MessageType: types.MessageTypeText})
	require.NoError(t, err)

	updated, err := s.UpdateContent(conv, msg.Id, 1, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Content)

	_, err = s.UpdateContent(conv, msg.Id, 2, "hijack")
	assert.Error(t, err)
}

func TestMeetupStoreRetention(t *testing.T) {
	s := newTestMeetupStore(t, "50ms")
	conv := types.Conversation{Kind: types.ChatKindMeetup, RoomId: 11, SelfId: 1}

	msg, err := s.CreateMessage(conv, types.MessageInput{SenderId: 1, Content: "fleeting", MessageType: types.MessageTypeText})
	require.NoError(t, err)

	found, err := s.FindMessage(conv, msg.Id)
	require.NoError(t, err)
	require.NotNil(t, found)

	time.Sleep(80 * time.Millisecond)
	gone, err := s.FindMessage(conv, msg.Id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
