package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/studymate/backend-go/internal/models"
)

// documentRepository 文档仓库实现
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓库
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// GetDB 获取数据库连接
func (r *documentRepository) GetDB() *gorm.DB {
	return r.db
}

// Create 创建文档
func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetByID 根据ID获取文档
func (r *documentRepository) GetByID(ctx context.Context, docID uint) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).Where("document_id = ?", docID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByProjectID 获取项目下全部文档
func (r *documentRepository) GetByProjectID(ctx context.Context, projectID uint) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("document_id").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// GetByProjectIDAndStatuses 按状态筛选项目文档（批量触发处理时用）
func (r *documentRepository) GetByProjectIDAndStatuses(ctx context.Context, projectID uint, statuses []string) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status IN ?", projectID, statuses).
		Order("document_id").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Save 保存文档全量字段
func (r *documentRepository) Save(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// UpdateStatus 仅更新状态字段
func (r *documentRepository) UpdateStatus(ctx context.Context, docID uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ?", docID).
		Update("status", status).Error
}

// Delete 删除文档
func (r *documentRepository) Delete(ctx context.Context, docID uint) error {
	return r.db.WithContext(ctx).Where("document_id = ?", docID).
		Delete(&models.Document{}).Error
}
