package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
)

// AuthHandler 封装了与用户认证相关的 HTTP 处理逻辑
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("AuthService cannot be nil for AuthHandler")
	}
	return &AuthHandler{authService: authService}
}

// LoginRequest 小程序登录，code 来自 wx.login
type LoginRequest struct {
	Code      string `json:"code" binding:"required"`
	Nickname  string `json:"nickname" binding:"max=64"`
	AvatarURL string `json:"avatarUrl" binding:"max=512"`
}

// Login 处理小程序登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Login: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: code is required")
		return
	}

	res, err := h.authService.WeChatLogin(c.Request.Context(), req.Code, req.Nickname, req.AvatarURL)
	if err != nil {
		logrus.WithError(err).Warn("Handler.Login: WeChat login failed")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, res)
}

// AdminLoginRequest 后台登录
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin 处理后台登录请求
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.AdminLogin: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: username and password required")
		return
	}

	token, err := h.authService.AdminLogin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logrus.WithError(err).WithField("username", req.Username).Warn("Handler.AdminLogin: Authentication failed")
		HandleServiceError(c, err)
		return
	}
	logrus.WithField("username", req.Username).Info("Handler.AdminLogin: Admin logged in successfully")
	SuccessResponse(c, http.StatusOK, gin.H{"token": token})
}
