package handler

import (
	"SocialSync/apps/sync/internal/dto"
	"SocialSync/apps/sync/internal/engine"
	"SocialSync/apps/sync/internal/middleware"
	"SocialSync/apps/sync/internal/svc"
	"SocialSync/consts"
	"SocialSync/model"
	"SocialSync/pkg/logger"
	"SocialSync/pkg/result"
	"context"
	"io"

	"github.com/gin-gonic/gin"
)

// defaultMaxAvatarBytes 未配置对象存储上限时的兜底大小
const defaultMaxAvatarBytes = 5 * 1024 * 1024

// ProfileService 资料接口依赖的服务
type ProfileService interface {
	CreateProfile(ctx context.Context, p engine.Principal, displayName string) (*model.Profile, error)
	GetProfile(ctx context.Context, email string) (*model.Profile, error)
	UpdateNickname(ctx context.Context, email, displayName string) error
	UploadAvatar(ctx context.Context, email string, reader io.Reader, size int64) (string, error)
	SearchDirectory(ctx context.Context, self, text string) ([]model.Profile, error)
}

// ProfileHandler 资料与目录的 REST 接口
type ProfileHandler struct {
	profiles       ProfileService
	syncSvc        *svc.SyncService
	maxAvatarBytes int64
}

// NewProfileHandler maxAvatarBytes<=0 时使用默认上限
func NewProfileHandler(profiles ProfileService, syncSvc *svc.SyncService, maxAvatarBytes int64) *ProfileHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = defaultMaxAvatarBytes
	}
	return &ProfileHandler{profiles: profiles, syncSvc: syncSvc, maxAvatarBytes: maxAvatarBytes}
}

// CreateProfile 首次登录建档
// POST /api/v1/public/profile
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	var req dto.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	p, err := h.syncSvc.PrincipalFromToken(req.Token, "")
	if err != nil {
		result.Fail(c, nil, svc.CodeOf(err))
		return
	}

	profile, err := h.profiles.CreateProfile(ctx, *p, req.DisplayName)
	if err != nil {
		h.fail(ctx, c, "创建资料失败", err)
		return
	}
	result.Success(c, profile)
}

// GetProfile 当前主体的资料
// GET /api/v1/auth/profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)
	email, ok := middleware.GetPrincipalEmail(c)
	if !ok {
		result.Fail(c, nil, consts.CodeUnauthorized)
		return
	}

	profile, err := h.profiles.GetProfile(ctx, email)
	if err != nil {
		h.fail(ctx, c, "查询资料失败", err)
		return
	}
	result.Success(c, profile)
}

// UpdateNickname 修改昵称
// PUT /api/v1/auth/profile/nickname
func (h *ProfileHandler) UpdateNickname(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)
	email, ok := middleware.GetPrincipalEmail(c)
	if !ok {
		result.Fail(c, nil, consts.CodeUnauthorized)
		return
	}

	var req dto.UpdateNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	if err := h.profiles.UpdateNickname(ctx, email, req.DisplayName); err != nil {
		h.fail(ctx, c, "修改昵称失败", err)
		return
	}
	result.Success(c, nil)
}

// UploadAvatar 上传头像（multipart 字段 avatar）
// POST /api/v1/auth/profile/avatar
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)
	email, ok := middleware.GetPrincipalEmail(c)
	if !ok {
		result.Fail(c, nil, consts.CodeUnauthorized)
		return
	}

	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		logger.Warn(ctx, "无法读取上传的文件", logger.ErrorField("error", err))
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	defer file.Close()

	if header.Size > h.maxAvatarBytes {
		logger.Warn(ctx, "文件大小超过限制",
			logger.Int64("size", header.Size),
			logger.Int64("max_size", h.maxAvatarBytes),
		)
		result.Fail(c, nil, consts.CodeBodyTooLarge)
		return
	}

	// 内容类型由对象存储按文件头判定，这里不看客户端声明
	url, err := h.profiles.UploadAvatar(ctx, email, file, header.Size)
	if err != nil {
		h.fail(ctx, c, "上传头像失败", err)
		return
	}
	result.Success(c, dto.UploadAvatarResponse{AvatarURL: url})
}

// SearchDirectory 按昵称前缀检索目录
// GET /api/v1/auth/directory/search?q=
func (h *ProfileHandler) SearchDirectory(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)
	email, ok := middleware.GetPrincipalEmail(c)
	if !ok {
		result.Fail(c, nil, consts.CodeUnauthorized)
		return
	}

	profiles, err := h.profiles.SearchDirectory(ctx, email, c.Query("q"))
	if err != nil {
		h.fail(ctx, c, "目录检索失败", err)
		return
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	result.Success(c, dto.SearchDirectoryResponse{Profiles: profiles})
}

// fail 业务错误直接回码；服务端错误记日志
func (h *ProfileHandler) fail(ctx context.Context, c *gin.Context, msg string, err error) {
	code := svc.CodeOf(err)
	if !svc.IsClientError(code) {
		logger.Error(ctx, msg, logger.ErrorField("error", err))
	}
	result.Fail(c, nil, code)
}
