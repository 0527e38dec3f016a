package http

import "github.com/gin-gonic/gin"

// Response 统一响应结构。code 与 HTTP 状态码一致。
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, Response{Success: false, Code: code, Message: message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, Response{Success: true, Code: code, Message: "ok", Data: data})
}
