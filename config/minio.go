package config

import "time"

// MinIOConfig 头像等二进制对象的存储配置
type MinIOConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`               // 如: localhost:9000
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`         // Access Key
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"` // Secret Key
	UseSSL          bool   `json:"useSSL" yaml:"useSSL"`

	BucketName string `json:"bucketName" yaml:"bucketName"`
	Location   string `json:"location" yaml:"location"`

	MaxFileSize   int64         `json:"maxFileSize" yaml:"maxFileSize"`     // 单个对象最大字节数
	AllowedTypes  []string      `json:"allowedTypes" yaml:"allowedTypes"`   // 允许的 Content-Type
	UploadTimeout time.Duration `json:"uploadTimeout" yaml:"uploadTimeout"` // 上传超时

	// BaseURL 对外访问地址前缀，返回给客户端的 URL = BaseURL/bucket/object
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
}

// DefaultMinIOConfig 返回本地开发的默认配置
func DefaultMinIOConfig() MinIOConfig {
	return MinIOConfig{
		Enabled:         true,
		Endpoint:        "minio:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "social-sync",
		Location:        "us-east-1",
		MaxFileSize:     5 * 1024 * 1024,
		AllowedTypes:    []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"},
		UploadTimeout:   30 * time.Second,
		BaseURL:         "http://localhost:9000",
	}
}
