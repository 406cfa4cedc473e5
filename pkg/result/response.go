package result

import (
	"SocialSync/consts"
	"SocialSync/pkg/ctxmeta"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int32       `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	TraceId string      `json:"trace_id"`
}

// Result 以指定 HTTP 状态码返回响应，message 为空时按错误码取默认文案
func Result(c *gin.Context, status int, data interface{}, message string, code int32) {
	if message == "" {
		message = consts.GetMessage(code)
	}
	c.JSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
		TraceId: ctxmeta.TraceIDFromGin(c),
	})
}

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	Result(c, http.StatusOK, data, "", consts.CodeSuccess)
}

// Fail 返回业务失败响应（HTTP 200）
func Fail(c *gin.Context, data interface{}, code int32) {
	Result(c, http.StatusOK, data, "", code)
}

// FailWithMessage 返回失败响应并自定义消息
func FailWithMessage(c *gin.Context, data interface{}, message string, code int32) {
	Result(c, http.StatusOK, data, message, code)
}

// Abort 中间件拦截时使用，写入 HTTP 状态码并终止后续处理
func Abort(c *gin.Context, status int, code int32) {
	Result(c, status, nil, "", code)
	c.Abort()
}
