package models

import (
	"time"
)

type TestingService struct {
	ID          string `gorm:"primaryKey;size:255;"`
	Type        string `gorm:"index;size:32"`
	URL         string `gorm:"size:255;unique"`
	TokenKey    string `gorm:"size:255"`
	TokenSecret string `gorm:"size:1024" json:"-"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type WorkflowRegistry struct {
	ID           string `gorm:"primaryKey;size:255;"`
	Name         string `gorm:"size:255;unique"`
	Type         string `gorm:"size:32"`
	URI          string `gorm:"size:255"`
	ClientID     string `gorm:"size:255"`
	ClientSecret string `gorm:"size:1024" json:"-"`
	TokenURL     string `gorm:"size:255"`
	Enabled      bool   `gorm:"default:true"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type HostingService struct {
	ID   string `gorm:"primaryKey;size:255;"`
	Name string `gorm:"size:255"`
	Type string `gorm:"size:32"`
	URL  string `gorm:"size:255;unique"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}
