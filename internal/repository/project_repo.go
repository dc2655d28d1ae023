package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/studymate/backend-go/internal/models"
)

// projectRepository 项目仓库实现
type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建项目仓库
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// GetDB 获取数据库连接
func (r *projectRepository) GetDB() *gorm.DB {
	return r.db
}

// Create 创建项目
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID 根据ID获取项目
func (r *projectRepository) GetByID(ctx context.Context, projectID uint) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// Delete 删除项目
func (r *projectRepository) Delete(ctx context.Context, projectID uint) error {
	return r.db.WithContext(ctx).Where("project_id = ?", projectID).
		Delete(&models.Project{}).Error
}
