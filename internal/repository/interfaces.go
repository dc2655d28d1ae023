package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/studymate/backend-go/internal/models"
)

// Repository 基础仓库接口
type Repository interface {
	GetDB() *gorm.DB
}

// DocumentRepository 文档仓库接口
type DocumentRepository interface {
	Repository
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, docID uint) (*models.Document, error)
	GetByProjectID(ctx context.Context, projectID uint) ([]models.Document, error)
	GetByProjectIDAndStatuses(ctx context.Context, projectID uint, statuses []string) ([]models.Document, error)
	Save(ctx context.Context, doc *models.Document) error
	UpdateStatus(ctx context.Context, docID uint, status string) error
	Delete(ctx context.Context, docID uint) error
}

// ProjectRepository 项目仓库接口
type ProjectRepository interface {
	Repository
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, projectID uint) (*models.Project, error)
	Delete(ctx context.Context, projectID uint) error
}
