package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// 存入 gin.Context 的键
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// RoleAdmin 后台角色，与 service.RoleAdmin 保持一致
const RoleAdmin = "admin"

// ErrMissingAuthHeader 缺少 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "code": status, "message": message})
}

// Auth 返回一个 Gin 中间件，要求合法的 JWT。
// jwtSecret: 用于验证签名的密钥，必须提供。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Debug("Auth middleware: Missing Authorization header")
				abortJSON(c, http.StatusUnauthorized, "Authorization header is required")
			} else {
				logrus.Warnf("Auth middleware: Malformed token format: %v", err)
				abortJSON(c, http.StatusUnauthorized, "Invalid token format")
			}
			return
		}

		userID, role, err := parseIdentity(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx.Debug("Reason: Token is expired")
			}
			abortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextRole, role)
		logrus.WithFields(logrus.Fields{"user_id": userID, "role": role}).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// OptionalAuth 有合法 Token 时设置身份，没有或无效时按匿名继续。
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for OptionalAuth middleware")
	}
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err == nil {
			if userID, role, err := parseIdentity(tokenStr, jwtSecret); err == nil {
				c.Set(ContextUserID, userID)
				c.Set(ContextRole, role)
			} else {
				logrus.WithError(err).Debug("OptionalAuth: ignoring invalid token")
			}
		}
		c.Next()
	}
}

// RequireAdmin 必须在 Auth 之后使用
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(ContextRole); role != RoleAdmin {
			logrus.WithField("user_id", c.GetInt64(ContextUserID)).Warn("RequireAdmin: forbidden")
			abortJSON(c, http.StatusForbidden, "Admin privileges required")
			return
		}
		c.Next()
	}
}

// UserID 读取当前请求的用户 ID
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// extractToken 从 Gin 上下文中提取 Bearer Token
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// parseIdentity 验证 Token 并取出 user_id 与 role
func parseIdentity(tokenStr, secret string) (int64, string, error) {
	claims, err := validateToken(tokenStr, secret)
	if err != nil {
		return 0, "", err
	}
	// JWT 数字默认为 float64
	raw, ok := claims["user_id"].(float64)
	if !ok || raw <= 0 || raw != math.Trunc(raw) || raw > math.MaxInt64 {
		return 0, "", fmt.Errorf("invalid user_id claim: %v", claims["user_id"])
	}
	role, _ := claims["role"].(string)
	return int64(raw), role, nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
