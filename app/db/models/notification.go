package models

import (
	"time"

	"lifemonitor/pkg/gormx"
)

type Subscription struct {
	ID           string `gorm:"primaryKey;size:255;"`
	UserID       string `gorm:"uniqueIndex:idx_subscription;size:255"`
	ResourceType string `gorm:"uniqueIndex:idx_subscription;size:64"`
	ResourceID   string `gorm:"uniqueIndex:idx_subscription;size:255"`
	Events       int    `gorm:"default:0"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type Notification struct {
	ID           string        `gorm:"primaryKey;size:255;"`
	Type         string        `gorm:"index;size:64"`
	Name         string        `gorm:"size:255"`
	ResourceType string        `gorm:"index;size:64"`
	ResourceID   string        `gorm:"index;size:255"`
	Data         gormx.MapJson `gorm:"type:text"`

	CreatedAt time.Time `gorm:"default:null"`
}

type UserNotification struct {
	NotificationID string     `gorm:"primaryKey;size:255;"`
	UserID         string     `gorm:"primaryKey;size:255;"`
	EmailedAt      *time.Time `gorm:"default:null"`
	ReadAt         *time.Time `gorm:"default:null"`
}
