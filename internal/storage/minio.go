package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"resume-matcher/internal/config"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/types"
)

// DocumentStore 简历原件存储接口
type DocumentStore interface {
	// PutDocument 上传文档，返回对象键
	PutDocument(ctx context.Context, objectName string, doc types.Document) (string, error)

	// FetchDocument 下载单个文档
	FetchDocument(ctx context.Context, objectName string) (types.Document, error)

	// FetchDocuments 按前缀下载一组文档，按对象键排序
	FetchDocuments(ctx context.Context, prefix string) ([]types.Document, error)

	// DeleteDocument 删除文档
	DeleteDocument(ctx context.Context, objectName string) error
}

// 确保MinIO实现了DocumentStore接口
var _ DocumentStore = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger *zerolog.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, l *zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 不能为空")
	}
	l = logger.OrNop(l)
	l.Debug().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.ResumesBucket).Msg("初始化MinIO客户端")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: cfg.ResumesBucket,
		logger: l,
	}

	if cfg.EnsureBucket {
		if err := m.ensureBucketExists(ctx, m.bucket, cfg.Location); err != nil {
			return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", m.bucket, err)
		}
	}

	if cfg.ExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.bucket, "expire-resumes", cfg.ExpireDays); err != nil {
			l.Warn().Err(err).Str("bucket", m.bucket).Msg("设置生命周期规则失败")
		}
	}

	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Info().Str("bucket", bucketName).Msg("存储桶已创建")
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// Bucket 存储桶名称
func (m *MinIO) Bucket() string {
	return m.bucket
}

// PutDocument 上传文档
func (m *MinIO) PutDocument(ctx context.Context, objectName string, doc types.Document) (string, error) {
	if objectName == "" {
		objectName = doc.Name
	}
	contentType := getContentType(path.Ext(objectName))
	info, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(doc.Content), int64(len(doc.Content)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	m.logger.Debug().Str("object", objectName).Int64("size", info.Size).Str("etag", info.ETag).Msg("文档已上传")
	return objectName, nil
}

// FetchDocument 下载文档。格式取对象键的扩展名，没有扩展名时取 Content-Type
func (m *MinIO) FetchDocument(ctx context.Context, objectName string) (types.Document, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return types.Document{}, fmt.Errorf("获取对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return types.Document{}, fmt.Errorf("获取对象 %s/%s 状态失败: %w", m.bucket, objectName, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return types.Document{}, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.bucket, objectName, err)
	}

	format := path.Ext(objectName)
	if format == "" {
		format = stat.ContentType
	}
	m.logger.Debug().Str("object", objectName).Int("bytes", len(data)).Msg("文档已下载")
	return types.Document{
		Name:    path.Base(objectName),
		Format:  format,
		Content: data,
	}, nil
}

// FetchDocuments 下载 prefix 下的全部对象
func (m *MinIO) FetchDocuments(ctx context.Context, prefix string) ([]types.Document, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出对象 %s/%s 失败: %w", m.bucket, prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	docs := make([]types.Document, 0, len(keys))
	for _, key := range keys {
		doc, err := m.FetchDocument(ctx, key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteDocument 删除文档
func (m *MinIO) DeleteDocument(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	return nil
}

// 获取内容类型
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
