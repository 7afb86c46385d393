package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPersist holds the relational stores: users, chatroom memberships and the
// DM / chatroom message tables.
type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (*GormPersist, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no persistence dsn configured")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&types.User{}, &types.Membership{}, &directMessageRow{}, &chatroomMessageRow{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) Close() error {
	return nil
}

// users

func (p *GormPersist) FindUserById(id int64) (*types.User, error) {
	user := types.User{}
	err := p.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

// memberships

func (p *GormPersist) IsMember(userId, chatroomId int64) (bool, error) {
	var count int64
	err := p.db.Model(&types.Membership{}).
		Where("chatroom_id = ? AND user_id = ? AND is_active = ?", chatroomId, userId, true).
		Count(&count).Error
	return count > 0, err
}

func (p *GormPersist) GetMembership(userId, chatroomId int64) (*types.Membership, error) {
	m := types.Membership{}
	err := p.db.First(&m, "chatroom_id = ? AND user_id = ?", chatroomId, userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *GormPersist) ActiveMemberIds(chatroomId int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := p.db.Model(&types.Membership{}).
		Where("chatroom_id = ? AND is_active = ?", chatroomId, true).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (p *GormPersist) ChatroomsForUser(userId int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := p.db.Model(&types.Membership{}).
		Where("user_id = ? AND is_active = ?", userId, true).
		Pluck("chatroom_id", &ids).Error
	return ids, err
}

func (p *GormPersist) StoreMembership(m types.Membership) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

func (p *GormPersist) MarkRead(userId, chatroomId int64, at time.Time) error {
	return p.db.Model(&types.Membership{}).
		Where("chatroom_id = ? AND user_id = ?", chatroomId, userId).
		Update("last_read_at", at).Error
}

// Deactivate soft-deletes the membership; the row stays so read markers survive.
func (p *GormPersist) Deactivate(userId, chatroomId int64) error {
	return p.db.Model(&types.Membership{}).
		Where("chatroom_id = ? AND user_id = ?", chatroomId, userId).
		Update("is_active", false).Error
}

// DM messages. The conversation is the unordered pair of the two user ids.

type directMessageRow struct {
	Id          string `gorm:"primaryKey"`
	SenderId    int64  `gorm:"index:idx_dm_pair"`
	ReceiverId  int64  `gorm:"index:idx_dm_pair"`
	Content     string
	MessageType string
	ReplyToId   string
	MediaUrl    string
	Reactions   types.ReactionSet
	CreatedAt   time.Time `gorm:"index"`
	DeliveredAt *time.Time
}

func (directMessageRow) TableName() string { return "direct_messages" }

func (r *directMessageRow) toMessage() *types.Message {
	return &types.Message{
		Id:          r.Id,
		Kind:        types.ChatKindDM,
		SenderId:    r.SenderId,
		ReceiverId:  r.ReceiverId,
		Content:     r.Content,
		MessageType: r.MessageType,
		ReplyToId:   r.ReplyToId,
		MediaUrl:    r.MediaUrl,
		Reactions:   r.Reactions,
		CreatedAt:   r.CreatedAt,
		DeliveredAt: r.DeliveredAt,
	}
}

// DMStore is the conversation adapter over the direct_messages table.
type DMStore struct {
	db *gorm.DB
}

func (p *GormPersist) DMs() *DMStore { return &DMStore{db: p.db} }

func (s *DMStore) CreateMessage(conv types.Conversation, in types.MessageInput) (*types.Message, error) {
	row := directMessageRow{
		Id:          uuid.NewString(),
		SenderId:    in.SenderId,
		ReceiverId:  conv.PeerId(),
		Content:     in.Content,
		MessageType: in.MessageType,
		ReplyToId:   in.ReplyToId,
		MediaUrl:    in.MediaUrl,
		Reactions:   types.ReactionSet{},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *DMStore) FindMessage(_ types.Conversation, id string) (*types.Message, error) {
	row := directMessageRow{}
	err := s.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *DMStore) ListSince(conv types.Conversation, since time.Time, limit int) ([]*types.Message, error) {
	rows := make([]*directMessageRow, 0)
	err := s.db.
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND created_at > ?",
			conv.SelfId, conv.RoomId, conv.RoomId, conv.SelfId, since).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	messages := make([]*types.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toMessage())
	}
	return messages, nil
}

func (s *DMStore) UpdateReactions(_ types.Conversation, id string, mutate func(types.ReactionSet) types.ReactionSet) (*types.Message, error) {
	row := directMessageRow{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		if row.Reactions == nil {
			row.Reactions = types.ReactionSet{}
		}
		row.Reactions = mutate(row.Reactions)
		return tx.Model(&row).Update("reactions", row.Reactions).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *DMStore) UpdateContent(_ types.Conversation, id string, senderId int64, content string) (*types.Message, error) {
	row := directMessageRow{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ? AND sender_id = ?", id, senderId).Error; err != nil {
			return err
		}
		row.Content = content
		return tx.Model(&row).Update("content", content).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *DMStore) MarkDelivered(_ types.Conversation, id string, at time.Time) error {
	return s.db.Model(&directMessageRow{}).Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", at).Error
}

// chatroom messages, shared by city and event chatrooms

type chatroomMessageRow struct {
	Id          string `gorm:"primaryKey"`
	ChatroomId  int64  `gorm:"index"`
	SenderId    int64
	Content     string
	MessageType string
	ReplyToId   string
	MediaUrl    string
	Reactions   types.ReactionSet
	CreatedAt   time.Time `gorm:"index"`
}

func (chatroomMessageRow) TableName() string { return "chatroom_messages" }

func (r *chatroomMessageRow) toMessage() *types.Message {
	return &types.Message{
		Id:          r.Id,
		Kind:        types.ChatKindChatroom,
		ChatroomId:  r.ChatroomId,
		SenderId:    r.SenderId,
		Content:     r.Content,
		MessageType: r.MessageType,
		ReplyToId:   r.ReplyToId,
		MediaUrl:    r.MediaUrl,
		Reactions:   r.Reactions,
		CreatedAt:   r.CreatedAt,
	}
}

// ChatroomStore is the conversation adapter over the chatroom_messages table.
type ChatroomStore struct {
	db *gorm.DB
}

func (p *GormPersist) Chatrooms() *ChatroomStore { return &ChatroomStore{db: p.db} }

func (s *ChatroomStore) CreateMessage(conv types.Conversation, in types.MessageInput) (*types.Message, error) {
	row := chatroomMessageRow{
		Id:          uuid.NewString(),
		ChatroomId:  conv.RoomId,
		SenderId:    in.SenderId,
		Content:     in.Content,
		MessageType: in.MessageType,
		ReplyToId:   in.ReplyToId,
		MediaUrl:    in.MediaUrl,
		Reactions:   types.ReactionSet{},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *ChatroomStore) FindMessage(_ types.Conversation, id string) (*types.Message, error) {
	row := chatroomMessageRow{}
	err := s.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *ChatroomStore) ListSince(conv types.Conversation, since time.Time, limit int) ([]*types.Message, error) {
	rows := make([]*chatroomMessageRow, 0)
	err := s.db.
		Where("chatroom_id = ? AND created_at > ?", conv.RoomId, since).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	messages := make([]*types.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toMessage())
	}
	return messages, nil
}

func (s *ChatroomStore) UpdateReactions(_ types.Conversation, id string, mutate func(types.ReactionSet) types.ReactionSet) (*types.Message, error) {
	row := chatroomMessageRow{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		if row.Reactions == nil {
			row.Reactions = types.ReactionSet{}
		}
		row.Reactions = mutate(row.Reactions)
		return tx.Model(&row).Update("reactions", row.Reactions).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *ChatroomStore) UpdateContent(_ types.Conversation, id string, senderId int64, content string) (*types.Message, error) {
	row := chatroomMessageRow{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ? AND sender_id = ?", id, senderId).Error; err != nil {
			return err
		}
		row.Content = content
		return tx.Model(&row).Update("content", content).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

func (s *ChatroomStore) MarkDelivered(_ types.Conversation, _ string, _ time.Time) error {
	// delivery receipts are a DM concept, chatroom fan-out is best effort
	return nil
}
