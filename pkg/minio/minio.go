package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SocialSync/config"
	"SocialSync/pkg/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrTypeNotAllowed 内容类型不在白名单
var ErrTypeNotAllowed = errors.New("content type not allowed")

// ErrTooLarge 超过大小限制
var ErrTooLarge = errors.New("object too large")

// MinIOClient MinIO 客户端封装，只暴露上传后返回 URL 这一种能力
type MinIOClient struct {
	client *minio.Client
	config config.MinIOConfig
}

// Build 基于配置创建 MinIO 客户端，并确保 Bucket 存在（公开读）
func Build(cfg config.MinIOConfig) (*MinIOClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("minio endpoint/bucketName is empty")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket exists: %w", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		if err := minioClient.SetBucketPolicy(ctx, cfg.BucketName, publicReadPolicy(cfg.BucketName)); err != nil {
			logger.Warn(ctx, "设置 Bucket 公开策略失败",
				logger.String("bucket", cfg.BucketName),
				logger.ErrorField("error", err),
			)
		}
		logger.Info(ctx, "MinIO Bucket 创建成功", logger.String("bucket", cfg.BucketName))
	}

	return &MinIOClient{client: minioClient, config: cfg}, nil
}

// Upload 上传对象并返回外部访问 URL。
// 内容类型以文件头嗅探结果为准，不信任调用方声明。
func (c *MinIOClient) Upload(ctx context.Context, prefix string, reader io.Reader, size int64) (string, error) {
	if c.config.MaxFileSize > 0 && size > c.config.MaxFileSize {
		return "", fmt.Errorf("%w: %d > %d", ErrTooLarge, size, c.config.MaxFileSize)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("读取文件内容失败: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !isAllowedType(c.config.AllowedTypes, contentType) {
		return "", fmt.Errorf("%w: %s", ErrTypeNotAllowed, contentType)
	}

	uploadCtx := ctx
	if c.config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, c.config.UploadTimeout)
		defer cancel()
	}

	objectName := objectName(prefix, uuid.New().String())
	info, err := c.client.PutObject(uploadCtx, c.config.BucketName, objectName,
		io.MultiReader(bytes.NewReader(head), reader), size,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		logger.Error(ctx, "MinIO 上传失败",
			logger.String("object", objectName),
			logger.Int64("size", size),
			logger.ErrorField("error", err),
		)
		return "", fmt.Errorf("上传失败: %w", err)
	}

	url := objectURL(c.config.BaseURL, c.config.BucketName, objectName)
	logger.Info(ctx, "MinIO 上传成功",
		logger.String("object", objectName),
		logger.String("content_type", contentType),
		logger.Int64("size", info.Size),
	)
	return url, nil
}

func objectName(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func objectURL(baseURL, bucket, object string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), bucket, strings.TrimPrefix(object, "/"))
}

func isAllowedType(allowed []string, contentType string) bool {
	if len(allowed) == 0 {
		return true
	}
	contentType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, t := range allowed {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
