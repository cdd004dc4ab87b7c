package models

import (
	"time"

	"lifemonitor/pkg/gormx"
)

type User struct {
	ID       string        `gorm:"primaryKey;size:255;"`
	Username string        `gorm:"index;size:255;unique"`
	Email    string        `gorm:"size:255"`
	Settings gormx.MapJson `gorm:"type:text"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

// OAuthIdentity links a User to an account on an external provider.
type OAuthIdentity struct {
	ID             string `gorm:"primaryKey;size:255;"`
	UserID         string `gorm:"index;size:255"`
	Provider       string `gorm:"uniqueIndex:idx_identity_provider_user;size:255"`
	ProviderUserID string `gorm:"uniqueIndex:idx_identity_provider_user;size:255"`
	Username       string `gorm:"size:255"`
	Tokens         string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}
