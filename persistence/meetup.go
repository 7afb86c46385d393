package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/types"
)

// Fixed-width so the lexicographic index order matches chronological order.
const meetupTimeLayout = "2006-01-02T15:04:05.000000000Z"

// meetupMessageRecord is the native shape of a meetup chatroom message as stored
// in buntdb. Field names differ from the common Message view on purpose, the
// adapter normalizes them (SentAt -> CreatedAt, Body -> Content, ...).
type meetupMessageRecord struct {
	Key        string             `json:"key"`
	MeetupId   int64              `json:"meetup_id"`
	AuthorId   int64              `json:"author_id"`
	Body       string             `json:"body"`
	Kind       string             `json:"kind"`
	InReplyTo  string             `json:"in_reply_to,omitempty"`
	Attachment string             `json:"attachment,omitempty"`
	Reactions  map[string][]int64 `json:"reactions,omitempty"`
	SentAt     string             `json:"sent_at"`
}

func (r *meetupMessageRecord) toMessage() *types.Message {
	sentAt, _ := time.Parse(meetupTimeLayout, r.SentAt)
	return &types.Message{
		Id:          r.Key,
		Kind:        types.ChatKindMeetup,
		ChatroomId:  r.MeetupId,
		SenderId:    r.AuthorId,
		Content:     r.Body,
		MessageType: r.Kind,
		ReplyToId:   r.InReplyTo,
		MediaUrl:    r.Attachment,
		Reactions:   types.ReactionSet(r.Reactions),
		CreatedAt:   sentAt,
	}
}

// MeetupStore keeps meetup chatroom messages in buntdb. Meetups are ephemeral,
// so records may carry a TTL after which buntdb drops them.
type MeetupStore struct {
	db        *buntdb.DB
	retention time.Duration
}

func NewMeetupStore(cfg *config.Config) (*MeetupStore, error) {
	path := cfg.MeetupConfig.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("meetupts", "meetupmsg:*", buntdb.IndexJSON("sent_at"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MeetupStore{db: db, retention: cfg.MeetupConfig.RetentionDuration()}, nil
}

func (s *MeetupStore) Close() error {
	return s.db.Close()
}

func meetupKey(meetupId int64, id string) string {
	return fmt.Sprintf("meetupmsg:%d:%s", meetupId, id)
}

func (s *MeetupStore) setOptions() *buntdb.SetOptions {
	if s.retention <= 0 {
		return nil
	}
	return &buntdb.SetOptions{Expires: true, TTL: s.retention}
}

func (s *MeetupStore) CreateMessage(conv types.Conversation, in types.MessageInput) (*types.Message, error) {
	record := meetupMessageRecord{
		Key:        uuid.NewString(),
		MeetupId:   conv.RoomId,
		AuthorId:   in.SenderId,
		Body:       in.Content,
		Kind:       in.MessageType,
		InReplyTo:  in.ReplyToId,
		Attachment: in.MediaUrl,
		Reactions:  map[string][]int64{},
		SentAt:     time.Now().UTC().Format(meetupTimeLayout),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(meetupKey(conv.RoomId, record.Key), string(raw), s.setOptions())
		return err
	})
	if err != nil {
		return nil, err
	}
	return record.toMessage(), nil
}

func (s *MeetupStore) FindMessage(conv types.Conversation, id string) (*types.Message, error) {
	record := meetupMessageRecord{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(meetupKey(conv.RoomId, id))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), &record)
	})
	if err == buntdb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record.toMessage(), nil
}

func (s *MeetupStore) ListSince(conv types.Conversation, since time.Time, limit int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("meetupts", func(key, val string) bool {
			record := meetupMessageRecord{}
			if err := json.Unmarshal([]byte(val), &record); err != nil {
				return true
			}
			if record.MeetupId != conv.RoomId {
				return true
			}
			sentAt, err := time.Parse(meetupTimeLayout, record.SentAt)
			if err != nil || !sentAt.After(since) {
				// the index descends on sent_at, nothing older matches either
				return false
			}
			messages = append(messages, record.toMessage())
			return limit <= 0 || len(messages) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *MeetupStore) UpdateReactions(conv types.Conversation, id string, mutate func(types.ReactionSet) types.ReactionSet) (*types.Message, error) {
	record := meetupMessageRecord{}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key := meetupKey(conv.RoomId, id)
		raw, err := tx.Get(key)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return err
		}
		if record.Reactions == nil {
			record.Reactions = map[string][]int64{}
		}
		record.Reactions = mutate(types.ReactionSet(record.Reactions))
		updated, err := json.Marshal(record)
		if err != nil {
			return err
		}
		opts := s.setOptions()
		if opts != nil {
			// keep the original expiry instead of restarting the clock
			if ttl, err := tx.TTL(key); err == nil && ttl > 0 {
				opts.TTL = ttl
			}
		}
		_, _, err = tx.Set(key, string(updated), opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record.toMessage(), nil
}

func (s *MeetupStore) UpdateContent(conv types.Conversation, id string, senderId int64, content string) (*types.Message, error) {
	record := meetupMessageRecord{}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key := meetupKey(conv.RoomId, id)
		raw, err := tx.Get(key)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return err
		}
		if record.AuthorId != senderId {
			return fmt.Errorf("message %s does not belong to user %d", id, senderId)
		}
		record.Body = content
		updated, err := json.Marshal(record)
		if err != nil {
			return err
		}
		opts := s.setOptions()
		if opts != nil {
			if ttl, err := tx.TTL(key); err == nil && ttl > 0 {
				opts.TTL = ttl
			}
		}
		_, _, err = tx.Set(key, string(updated), opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record.toMessage(), nil
}

func (s *MeetupStore) MarkDelivered(_ types.Conversation, _ string, _ time.Time) error {
	return nil
}
