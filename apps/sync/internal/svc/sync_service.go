package svc

import (
	"SocialSync/apps/sync/internal/engine"
	"SocialSync/consts"
	pkgminio "SocialSync/pkg/minio"
	"SocialSync/pkg/util"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrTokenRequired 握手参数缺少 token
	ErrTokenRequired = errors.New("token is required")
	// ErrDeviceIDRequired 握手参数缺少 device_id
	ErrDeviceIDRequired = errors.New("device_id is required")
	// ErrTokenInvalid token 非法、过期，或与设备不匹配
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrFrameInvalid 上行帧不是合法 JSON 或缺少 type
	ErrFrameInvalid = errors.New("invalid frame")
	// ErrFrameUnsupported 未知的帧类型
	ErrFrameUnsupported = errors.New("unsupported frame type")
	// ErrTooManyRequests 上行操作超过限流
	ErrTooManyRequests = errors.New("too many requests")
)

// Handshake 连接鉴权结果
type Handshake struct {
	Principal engine.Principal
	ClientIP  string
}

// Envelope WebSocket 通用帧。
// ID 由客户端填写，应答帧原样带回，用于请求与应答配对；推送帧不带 ID。
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorData type=error 时的 data
type ErrorData struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// SyncService 连接层的鉴权与编解码
type SyncService struct {
	signer *util.TokenSigner
}

// NewSyncService 创建服务
func NewSyncService(signer *util.TokenSigner) *SyncService {
	return &SyncService{signer: signer}
}

// Authenticate 校验握手参数。
// token 中带了 device_id 时必须与 query 一致。
func (s *SyncService) Authenticate(token, deviceID, clientIP string) (*Handshake, error) {
	deviceID = strings.TrimSpace(deviceID)
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenRequired
	}
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	p, err := s.PrincipalFromToken(token, deviceID)
	if err != nil {
		return nil, err
	}
	return &Handshake{Principal: *p, ClientIP: strings.TrimSpace(clientIP)}, nil
}

// PrincipalFromToken 解析 token 为主体（login 帧与握手共用）
func (s *SyncService) PrincipalFromToken(token, deviceID string) (*engine.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	// deviceID 为空表示调用方不绑定设备（REST 建档）
	if deviceID == "" {
		deviceID = claims.DeviceID
	} else if claims.DeviceID != "" && claims.DeviceID != deviceID {
		return nil, ErrTokenInvalid
	}
	return &engine.Principal{
		ID:       claims.PrincipalID,
		Email:    claims.Email,
		DeviceID: deviceID,
	}, nil
}

// ParseEnvelope 解析上行帧
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrFrameInvalid
	}
	envelope.Type = strings.TrimSpace(envelope.Type)
	if envelope.Type == "" {
		return nil, ErrFrameInvalid
	}
	return &envelope, nil
}

// DecodeData 解析帧 data，缺失时按空对象处理
func DecodeData(envelope *Envelope, out any) error {
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return ErrFrameInvalid
	}
	return nil
}

// MarshalEnvelope 组装下行帧，data=nil 时省略 data 字段
func MarshalEnvelope(msgType, id string, data any) ([]byte, error) {
	envelope := map[string]any{
		"type": msgType,
	}
	if id != "" {
		envelope["id"] = id
	}
	if data != nil {
		envelope["data"] = data
	}
	return json.Marshal(envelope)
}

// CodeOf 把各层错误映射为业务码
func CodeOf(err error) int32 {
	switch {
	case err == nil:
		return consts.CodeSuccess
	case errors.Is(err, ErrFrameInvalid):
		return consts.CodeBodyError
	case errors.Is(err, ErrFrameUnsupported):
		return consts.CodeUnsupportedFrame
	case errors.Is(err, ErrTooManyRequests):
		return consts.CodeTooManyRequests
	case errors.Is(err, ErrTokenRequired), errors.Is(err, ErrDeviceIDRequired):
		return consts.CodeUnauthorized
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, util.ErrTokenInvalid):
		return consts.CodeInvalidToken
	case errors.Is(err, engine.ErrNoPrincipal):
		return consts.CodeNoPrincipal
	case errors.Is(err, engine.ErrSelfTarget):
		return consts.CodeRequestSelf
	case errors.Is(err, engine.ErrEmptyMessage):
		return consts.CodeMessageEmpty
	case errors.Is(err, engine.ErrInvalidArgument):
		return consts.CodeParamError
	case errors.Is(err, engine.ErrIntegrity):
		return consts.CodeIntegrityViolation
	case errors.Is(err, engine.ErrProfileNotFound):
		return consts.CodeProfileNotFound
	case errors.Is(err, engine.ErrProfileExists):
		return consts.CodeProfileAlreadyExist
	case errors.Is(err, engine.ErrPeerNotWatched):
		return consts.CodePeerNotWatched
	case errors.Is(err, pkgminio.ErrTypeNotAllowed):
		return consts.CodeAvatarTypeInvalid
	case errors.Is(err, pkgminio.ErrTooLarge):
		return consts.CodeBodyTooLarge
	case errors.Is(err, engine.ErrSessionClosed), errors.Is(err, engine.ErrAvatarUnavailable):
		return consts.CodeServiceUnavailable
	default:
		return consts.CodeInternalError
	}
}

// IsClientError 业务码是否属于调用方错误（不需要记 Error 日志）
func IsClientError(code int32) bool {
	return code != consts.CodeSuccess && code < consts.CodeInternalError
}
