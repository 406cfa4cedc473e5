package consts

// 通用错误码
const (
	CodeSuccess = 0 // 成功
)

// 客户端错误 (1xxxx)
const (
	CodeParamError       = 10001 // 参数验证失败
	CodeBodyError        = 10002 // 请求体格式错误
	CodeResourceNotFound = 10003 // 资源不存在
	CodeTooManyRequests  = 10005 // 请求过于频繁
	CodeBodyTooLarge     = 10006 // 请求体过大
	CodeUnsupportedFrame = 10007 // 不支持的帧类型
)

// 认证错误 (2xxxx)
const (
	CodeUnauthorized = 20001 // 未认证
	CodeInvalidToken = 20002 // Token 无效
	CodeNoPrincipal  = 20005 // 当前会话未登录
)

// 资料模块错误 (11xxx)
const (
	CodeProfileNotFound     = 11001 // 资料不存在
	CodeProfileAlreadyExist = 11002 // 资料已存在
	CodeAvatarTypeInvalid   = 11003 // 头像类型不支持
)

// 关系模块错误 (12xxx)
const (
	CodeRequestSelf        = 12001 // 不能向自己发送申请
	CodeIntegrityViolation = 12009 // 数据完整性异常（重复的唯一记录）
)

// 消息模块错误 (13xxx)
const (
	CodeMessageEmpty   = 13003 // 消息内容为空
	CodePeerNotWatched = 13005 // 未打开该会话
)

// 服务端错误 (3xxxx)
const (
	CodeInternalError      = 30001 // 服务器内部错误
	CodeServiceUnavailable = 30002 // 服务暂不可用
	CodeTimeoutError       = 30003 // 请求超时
)

// CodeMessage 错误消息映射
var CodeMessage = map[int32]string{
	CodeSuccess: "success",

	CodeParamError:       "参数验证失败",
	CodeBodyError:        "请求体格式错误",
	CodeResourceNotFound: "资源不存在",
	CodeTooManyRequests:  "请求过于频繁",
	CodeBodyTooLarge:     "请求体过大",
	CodeUnsupportedFrame: "不支持的帧类型",

	CodeUnauthorized: "未认证",
	CodeInvalidToken: "Token 无效",
	CodeNoPrincipal:  "当前会话未登录",

	CodeProfileNotFound:     "资料不存在",
	CodeProfileAlreadyExist: "资料已存在",
	CodeAvatarTypeInvalid:   "头像类型不支持",

	CodeRequestSelf:        "不能向自己发送申请",
	CodeIntegrityViolation: "数据完整性异常",

	CodeMessageEmpty:   "消息内容为空",
	CodePeerNotWatched: "未打开该会话",

	CodeInternalError:      "服务器内部错误",
	CodeServiceUnavailable: "服务暂不可用",
	CodeTimeoutError:       "请求超时",
}

// GetMessage 根据错误码获取错误消息
func GetMessage(code int32) string {
	if msg, ok := CodeMessage[code]; ok {
		return msg
	}
	return "未知错误"
}
