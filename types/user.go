package types

import "time"

type User struct {
	Id          int64     `json:"id" gorm:"primaryKey"`
	Username    string    `json:"username" gorm:"uniqueIndex"`
	DisplayName string    `json:"display_name"`
	AvatarUrl   string    `json:"avatar_url"`
	LastOnline  time.Time `json:"last_online"` // last seen online
}

// UserSummary is the slimmed-down profile attached to outgoing messages.
type UserSummary struct {
	Id          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarUrl   string `json:"avatar_url"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarUrl:   u.AvatarUrl,
	}
}
