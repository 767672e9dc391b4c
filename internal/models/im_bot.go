package models

import (
	"time"

	"gorm.io/gorm"
)

// IMBot is a chat webhook that receives auto-merge notifications.
type IMBot struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Type      string         `gorm:"size:50;not null" json:"type"` // slack, dingtalk, feishu, wechat_work, discord, teams, telegram, webhook
	Webhook   string         `gorm:"size:500;not null" json:"webhook"`
	Secret    string         `gorm:"size:255" json:"-"`
	Extra     string         `gorm:"size:255" json:"extra,omitempty"` // telegram chat_id
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (IMBot) TableName() string { return "im_bots" }
