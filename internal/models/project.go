package models

import (
	"time"
)

// Project 项目表，文档按项目归属，检索也按项目隔离
type Project struct {
	ProjectID   uint      `gorm:"primaryKey;column:project_id" json:"project_id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`

	Documents []Document `gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "projects"
}
