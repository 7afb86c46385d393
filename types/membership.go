package types

import "time"

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Membership ties a user to a chatroom. Leaving a room flips IsActive instead of
// deleting the row, so read markers survive as long as the history does.
type Membership struct {
	ChatroomId int64      `json:"chatroom_id" gorm:"primaryKey;autoIncrement:false"`
	UserId     int64      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"-"`
}
