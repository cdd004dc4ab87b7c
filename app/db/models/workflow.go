package models

import (
	"time"

	"lifemonitor/pkg/gormx"
)

type Workflow struct {
	ID          string `gorm:"primaryKey;size:255;"`
	Name        string `gorm:"index;size:255"`
	SubmitterID string `gorm:"index;size:255"`
	Public      bool   `gorm:"default:false"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type WorkflowVersion struct {
	ID               string  `gorm:"primaryKey;size:255;"`
	WorkflowID       string  `gorm:"uniqueIndex:idx_workflow_version;size:255"`
	Version          string  `gorm:"uniqueIndex:idx_workflow_version;size:255"`
	URI              string  `gorm:"size:1024"`
	Manifest         string  `gorm:"type:text"`
	ManifestHash     string  `gorm:"size:64"`
	Public           bool    `gorm:"default:false"`
	SubmitterID      string  `gorm:"index;size:255"`
	RegistryID       *string `gorm:"size:255"`
	HostingServiceID *string `gorm:"size:255"`
	Revision         string  `gorm:"size:255"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

// WorkflowRegistration records the identifier a registry assigned to a version.
type WorkflowRegistration struct {
	ID                string `gorm:"primaryKey;size:255;"`
	WorkflowVersionID string `gorm:"uniqueIndex:idx_registration;size:255"`
	RegistryID        string `gorm:"uniqueIndex:idx_registration;size:255"`
	ExternalID        string `gorm:"index;size:255"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type TestSuite struct {
	ID                string        `gorm:"primaryKey;size:255;"`
	WorkflowVersionID string        `gorm:"index;size:255"`
	RocID             string        `gorm:"size:255"`
	Name              string        `gorm:"size:255"`
	Definition        gormx.MapJson `gorm:"type:text"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}

type TestInstance struct {
	ID               string        `gorm:"primaryKey;size:255;"`
	TestSuiteID      string        `gorm:"index;size:255"`
	RocID            string        `gorm:"size:255"`
	Name             string        `gorm:"size:255"`
	Resource         string        `gorm:"index;size:1024"`
	Parameters       gormx.MapJson `gorm:"type:text"`
	TestingServiceID string        `gorm:"index;size:255"`
	LastBuildsUpdate *time.Time    `gorm:"default:null"`

	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}
