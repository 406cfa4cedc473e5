package dto

import "SocialSync/model"

// ==================== 资料接口 DTO ====================

// CreateProfileRequest 首次登录建档请求，token 为身份服务签发的主体令牌
type CreateProfileRequest struct {
	Token       string `json:"token" binding:"required"`                    // 主体令牌
	DisplayName string `json:"display_name" binding:"required,min=1,max=64"` // 昵称
}

// UpdateNicknameRequest 修改昵称请求
type UpdateNicknameRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=64"` // 新昵称
}

// UploadAvatarResponse 上传头像响应
type UploadAvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// SearchDirectoryResponse 目录检索响应
type SearchDirectoryResponse struct {
	Profiles []model.Profile `json:"profiles"`
}
