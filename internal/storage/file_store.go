package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/config"
	"github.com/studymate/backend-go/internal/logger"
)

// FileStore 原始文件存储接口，提取器从这里读取文档内容
type FileStore interface {
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, reader io.Reader, size int64) error
	Delete(ctx context.Context, path string) error
}

// NewFileStore 根据配置创建文件存储
func NewFileStore(cfg config.StorageConfig) (FileStore, error) {
	switch cfg.Provider {
	case "minio":
		return NewMinIOFileStore(cfg)
	case "local", "":
		return NewLocalFileStore(cfg.BasePath), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// LocalFileStore 本地磁盘存储
type LocalFileStore struct {
	basePath string
}

// NewLocalFileStore 创建本地存储
func NewLocalFileStore(basePath string) *LocalFileStore {
	if basePath == "" {
		basePath = "./uploads"
	}
	return &LocalFileStore{basePath: basePath}
}

func (s *LocalFileStore) resolve(path string) string {
	return filepath.Join(s.basePath, filepath.Clean("/"+path))
}

// Read 打开本地文件
func (s *LocalFileStore) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	return f, nil
}

// Write 写入本地文件，自动创建父目录
func (s *LocalFileStore) Write(ctx context.Context, path string, reader io.Reader, size int64) error {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// Delete 删除本地文件
func (s *LocalFileStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// MinIOFileStore MinIO对象存储
type MinIOFileStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOFileStore 创建MinIO存储，确保bucket存在
func NewMinIOFileStore(cfg config.StorageConfig) (*MinIOFileStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	// minio.New 不需要协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "documents"
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// bucket可能被并发创建
			if !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") &&
				!strings.Contains(err.Error(), "BucketAlreadyExists") {
				return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		logger.Info("minio bucket ready", zap.String("bucket", bucket))
	}

	return &MinIOFileStore{client: client, bucket: bucket}, nil
}

// Read 读取对象
func (s *MinIOFileStore) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", path, err)
	}
	return object, nil
}

// Write 写入对象
func (s *MinIOFileStore) Write(ctx context.Context, path string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, reader, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", path, err)
	}
	return nil
}

// Delete 删除对象
func (s *MinIOFileStore) Delete(ctx context.Context, path string) error {
	return s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
}
