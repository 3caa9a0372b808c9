package models

import (
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"      json:"id"`
	Username     string    `gorm:"size:50;uniqueIndex;not null"  json:"username"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null"             json:"-"`
	CreatedAt    time.Time `                                     json:"-"`
}

// Session is the single current token pair of a user. Username is the key;
// there is never more than one row per user.
type Session struct {
	Username         string    `gorm:"primaryKey;size:50" json:"username"`
	AccessToken      string    `gorm:"type:text;not null" json:"access_token"`
	RefreshToken     string    `gorm:"type:text;not null" json:"refresh_token"`
	AccessExpiresAt  time.Time `gorm:"not null"           json:"access_expires_at"`
	RefreshExpiresAt time.Time `gorm:"not null"           json:"refresh_expires_at"`
	UpdatedAt        time.Time `                          json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }
