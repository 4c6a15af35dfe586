package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"resume-matcher-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadFile 上传文件到指定存储桶
	UploadFile(ctx context.Context, bucketName, objectName string, reader io.Reader, fileSize int64, contentType string) (string, error)

	// DownloadFile 下载文件
	DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error)

	// GetPresignedURL 获取预签名URL
	GetPresignedURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error)

	// DeleteFile 删除文件
	DeleteFile(ctx context.Context, bucketName, objectName string) error

	// 简历域操作
	UploadResumeFile(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, error)
	UploadMarkdown(ctx context.Context, submissionUUID string, markdown string) (string, error)
	UploadExportedPDF(ctx context.Context, submissionUUID string, pdfData []byte) (string, error)
	GetResumeFile(ctx context.Context, objectKey string) ([]byte, error)
	GetMarkdown(ctx context.Context, objectKey string) (string, error)
	GetExportedPDF(ctx context.Context, objectKey string) ([]byte, error)
	GetExportURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client         *minio.Client
	cfg            *config.MinIOConfig
	originalBucket string
	markdownBucket string
	exportsBucket  string
	logger         *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing client with endpoint: %s, buckets: %s/%s/%s",
		cfg.Endpoint, cfg.OriginalsBucket, cfg.MarkdownBucket, cfg.ExportsBucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	originalBucket := cfg.OriginalsBucket
	if originalBucket == "" {
		originalBucket = "resume-originals"
	}
	markdownBucket := cfg.MarkdownBucket
	if markdownBucket == "" {
		markdownBucket = "resume-markdown"
	}
	exportsBucket := cfg.ExportsBucket
	if exportsBucket == "" {
		exportsBucket = "resume-exports"
	}

	m := &MinIO{
		client:         client,
		cfg:            cfg,
		originalBucket: originalBucket,
		markdownBucket: markdownBucket,
		exportsBucket:  exportsBucket,
		logger:         logger,
	}

	for _, bucket := range []string{originalBucket, markdownBucket, exportsBucket} {
		if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
			logger.Printf("[MinIO] Failed to ensure bucket %s exists: %v", bucket, err)
			return nil, fmt.Errorf("确保存储桶 %s 存在失败: %w", bucket, err)
		}
	}

	// 导出件是临时产物，默认走生命周期过期
	if cfg.OriginalFileExpireDays > 0 || cfg.ExportExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	}
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalBucket, "expire-originals", m.cfg.OriginalFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶 %s 设置生命周期失败: %w", m.originalBucket, err)
		}
	}
	if m.cfg.ExportExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.exportsBucket, "expire-exports", m.cfg.ExportExpireDays); err != nil {
			return fmt.Errorf("为导出件存储桶 %s 设置生命周期失败: %w", m.exportsBucket, err)
		}
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	m.logger.Printf("[MinIO] Setting lifecycle rule for bucket %s: ID=%s, ExpiryDays=%d", bucketName, ruleID, expiryDays)
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

// UploadFile 上传文件到指定存储桶
func (m *MinIO) UploadFile(ctx context.Context, bucketName, objectName string, reader io.Reader, fileSize int64, contentType string) (string, error) {
	if m.testLogging() {
		m.logger.Printf("[MinIO-UploadFile] Uploading: ObjectName='%s', Size=%d, ContentType='%s', Bucket='%s'", objectName, fileSize, contentType, bucketName)
	}

	uploadInfo, err := m.client.PutObject(ctx, bucketName, objectName, reader, fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", bucketName, objectName, err)
	}

	if m.testLogging() {
		m.logger.Printf("[MinIO-UploadFile] Successfully uploaded %s, ETag: %s, Size: %d", objectName, uploadInfo.ETag, uploadInfo.Size)
	}
	return objectName, nil
}

// uploadFileFromBytes 从字节数组上传文件
func (m *MinIO) uploadFileFromBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error) {
	return m.UploadFile(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)), contentType)
}

// UploadResumeFile 上传原始简历文件到originalsBucket
// 返回MinIO中的对象键 (不含bucket前缀)
func (m *MinIO) UploadResumeFile(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	// 对象键形如: resume/submissionUUID/original.pdf
	objectName := fmt.Sprintf("resume/%s/original%s", submissionUUID, fileExt)
	contentType := getContentType(fileExt)

	return m.UploadFile(ctx, m.originalBucket, objectName, reader, fileSize, contentType)
}

// UploadMarkdown 上传渲染后的Markdown文本到markdownBucket
func (m *MinIO) UploadMarkdown(ctx context.Context, submissionUUID string, markdown string) (string, error) {
	objectName := fmt.Sprintf("resume/%s/resume.md", submissionUUID)

	if m.testLogging() {
		m.logger.Printf("[MinIO-UploadMarkdown] Uploading: SubmissionUUID='%s', ObjectName='%s', Bucket='%s', Length=%d",
			submissionUUID, objectName, m.markdownBucket, len(markdown))
	}

	_, err := m.client.PutObject(ctx, m.markdownBucket, objectName, strings.NewReader(markdown), int64(len(markdown)), minio.PutObjectOptions{ContentType: "text/markdown"})
	if err != nil {
		return "", fmt.Errorf("上传Markdown %s 到存储桶 %s 失败: %w", objectName, m.markdownBucket, err)
	}
	return objectName, nil
}

// UploadExportedPDF 上传嵌入了结构化数据的导出PDF到exportsBucket
func (m *MinIO) UploadExportedPDF(ctx context.Context, submissionUUID string, pdfData []byte) (string, error) {
	objectName := fmt.Sprintf("resume/%s/export_%d.pdf", submissionUUID, time.Now().Unix())
	return m.uploadFileFromBytes(ctx, m.exportsBucket, objectName, pdfData, "application/pdf")
}

// DownloadFile 下载文件
func (m *MinIO) DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	if m.testLogging() {
		m.logger.Printf("[MinIO-DownloadFile] Downloading: ObjectName='%s', Bucket='%s'", objectName, bucketName)
	}

	obj, err := m.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, objectName, err)
	}
	defer obj.Close()

	// Stat能及早暴露对象不存在或无权限的情况
	stat, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, objectName, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", bucketName, objectName, err)
	}
	if m.testLogging() {
		m.logger.Printf("[MinIO-DownloadFile] Successfully downloaded %d bytes from %s/%s (ContentType=%s).", len(data), bucketName, objectName, stat.ContentType)
	}
	return data, nil
}

// GetResumeFile 获取原始简历文件
func (m *MinIO) GetResumeFile(ctx context.Context, objectKey string) ([]byte, error) {
	return m.DownloadFile(ctx, m.originalBucket, objectKey)
}

// GetMarkdown 获取渲染后的Markdown文本
func (m *MinIO) GetMarkdown(ctx context.Context, objectKey string) (string, error) {
	data, err := m.DownloadFile(ctx, m.markdownBucket, objectKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetExportedPDF 获取导出的PDF
func (m *MinIO) GetExportedPDF(ctx context.Context, objectKey string) ([]byte, error) {
	return m.DownloadFile(ctx, m.exportsBucket, objectKey)
}

// GetPresignedURL 获取预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// GetExportURL 获取导出件的预签名下载URL
func (m *MinIO) GetExportURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return m.GetPresignedURL(ctx, m.exportsBucket, objectKey, expiry)
}

// DeleteFile 删除文件
func (m *MinIO) DeleteFile(ctx context.Context, bucketName, objectName string) error {
	err := m.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除对象 %s/%s 失败: %w", bucketName, objectName, err)
	}
	return nil
}


func (m *MinIO) testLogging() bool {
	return m.cfg.EnableTestLogging && m.logger != nil && m.logger.Writer() != io.Discard
}

// 获取内容类型
func getContentType(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}

