package model

import "time"

type WorkspaceCredential struct {
	ID             string `gorm:"type:varchar(64);primaryKey"`
	TenantID       string `gorm:"type:varchar(64);not null;index"`
	ExternalTeamID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	TeamName       string `gorm:"type:varchar(255)"`
	Platform       string `gorm:"type:varchar(16);not null;default:slack"`
	AccessSecret   string `gorm:"type:text;not null"`
	IsActive       bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (WorkspaceCredential) TableName() string {
	return "workspace_credentials"
}
