package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"
	"SocialSync/pkg/logger"
)

const (
	maxDisplayNameLen = 64
	avatarPrefix      = "avatars"
)

// AvatarUploader 头像对象存储，返回外部访问 URL
type AvatarUploader interface {
	Upload(ctx context.Context, prefix string, reader io.Reader, size int64) (string, error)
}

// ProfileService 资料读写。写入后本地解析缓存立即失效，订阅方经变更通知重查。
type ProfileService struct {
	repo        repository.IProfileRepository
	resolver    *ProfileResolver
	uploader    AvatarUploader
	searchLimit int
}

// NewProfileService 创建资料服务，uploader 可为 nil
func NewProfileService(repo repository.IProfileRepository, resolver *ProfileResolver, uploader AvatarUploader, searchLimit int) *ProfileService {
	return &ProfileService{repo: repo, resolver: resolver, uploader: uploader, searchLimit: searchLimit}
}

func checkDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidArgument("display name is empty")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return "", invalidArgument("display name too long")
	}
	return name, nil
}

// CreateProfile 首次登录时建档
func (s *ProfileService) CreateProfile(ctx context.Context, p Principal, displayName string) (*model.Profile, error) {
	email := strings.TrimSpace(p.Email)
	if email == "" || strings.TrimSpace(p.ID) == "" {
		return nil, invalidArgument("principal id and email are required")
	}
	name, err := checkDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{
		PrincipalId: p.ID,
		Email:       email,
		DisplayName: name,
		SearchKey:   model.BuildSearchKey(name),
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrProfileExists
		}
		logger.Error(ctx, "创建资料失败", logger.String("email", email), logger.ErrorField("error", err))
		return nil, err
	}
	s.resolver.Invalidate(email)
	logger.Info(ctx, "资料已创建", logger.String("email", email))
	return profile, nil
}

// GetProfile 查询资料，不存在返回 ErrProfileNotFound
func (s *ProfileService) GetProfile(ctx context.Context, email string) (*model.Profile, error) {
	p, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// UpdateNickname 修改昵称
func (s *ProfileService) UpdateNickname(ctx context.Context, email, displayName string) error {
	name, err := checkDisplayName(displayName)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateDisplayName(ctx, email, name); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		return err
	}
	s.resolver.Invalidate(email)
	return nil
}

// UploadAvatar 上传头像并回写资料
func (s *ProfileService) UploadAvatar(ctx context.Context, email string, reader io.Reader, size int64) (string, error) {
	if s.uploader == nil {
		return "", ErrAvatarUnavailable
	}
	if size <= 0 {
		return "", invalidArgument("avatar is empty")
	}
	url, err := s.uploader.Upload(ctx, avatarPrefix, reader, size)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateAvatar(ctx, email, url); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return "", ErrProfileNotFound
		}
		return "", err
	}
	s.resolver.Invalidate(email)
	return url, nil
}

// SearchDirectory 无会话的目录检索（REST 接口使用）
func (s *ProfileService) SearchDirectory(ctx context.Context, self, text string) ([]model.Profile, error) {
	return searchDirectory(ctx, s.repo, self, text, s.searchLimit)
}
