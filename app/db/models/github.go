package models

import "time"

// GithubWorkflowRegistry represents one installation of the GitHub App.
type GithubWorkflowRegistry struct {
	ID               string `gorm:"primaryKey;size:255;"`
	InstallationID   string `gorm:"size:64;unique"`
	AccountLogin     string `gorm:"size:255"`
	HostingServiceID string `gorm:"size:255"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type GithubWorkflowVersion struct {
	ID                string `gorm:"primaryKey;size:255;"`
	RegistryID        string `gorm:"index;size:255"`
	WorkflowVersionID string `gorm:"size:255;unique"`
	RepoIdentifier    string `gorm:"index;size:255"`
	RepoRef           string `gorm:"size:255"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}
