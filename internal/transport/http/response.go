package httptransport

import "github.com/gin-gonic/gin"

// APIResponse 定义统一的接口返回结构体，RequestID 与 X-Request-ID 响应头一致
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Message   string      `json:"message"`
	Code      int         `json:"code"`
	RequestID string      `json:"request_id,omitempty"`
}

// RespondSuccess 返回成功响应
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, newResponse(c, true, httpStatus, message, data))
}

// RespondError 返回失败响应
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, newResponse(c, false, httpStatus, message, data))
}

// AbortWithError 返回失败响应并终止后续处理
func AbortWithError(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, newResponse(c, false, httpStatus, message, nil))
}

func newResponse(c *gin.Context, success bool, httpStatus int, message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   success,
		Data:      data,
		Message:   message,
		Code:      httpStatus,
		RequestID: c.GetString(requestIDKey),
	}
}
