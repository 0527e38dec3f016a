package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/domain"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/repository"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/wechat"
)

// JWT 中的角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// WeChatSessionClient 登录凭证校验
type WeChatSessionClient interface {
	Code2Session(ctx context.Context, code string) (*wechat.Session, error)
}

// LoginResult 小程序登录结果
type LoginResult struct {
	Token     string       `json:"token"`
	User      *domain.User `json:"user"`
	IsNewUser bool         `json:"is_new_user"`
}

// AuthService 负责用户认证相关的业务逻辑。
type AuthService struct {
	uow       repository.UnitOfWork
	wx        WeChatSessionClient
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewAuthService 创建 AuthService 实例。
// jwtSecretKey 应从安全配置中获取。wx 为 nil 时小程序登录不可用。
func NewAuthService(uow repository.UnitOfWork, wx WeChatSessionClient, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if uow == nil {
		panic("UnitOfWork cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24 // 默认 24 小时
	}
	return &AuthService{
		uow:       uow,
		wx:        wx,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// WeChatLogin 用小程序登录凭证登录，首次登录时创建用户。
func (s *AuthService) WeChatLogin(ctx context.Context, code, nickname, avatarURL string) (*LoginResult, error) {
	if code == "" {
		return nil, ErrAuthenticationFailed
	}
	if s.wx == nil {
		return nil, ErrWeChatUnavailable
	}

	sess, err := s.wx.Code2Session(ctx, code)
	if err != nil {
		var apiErr *wechat.APIError
		if errors.As(err, &apiErr) {
			logrus.WithError(err).Warn("WeChat login rejected by code2session")
			return nil, ErrAuthenticationFailed
		}
		logrus.WithError(err).Error("WeChat code2session failed")
		return nil, ErrWeChatUnavailable
	}
	logCtx := logrus.WithField("open_id", sess.OpenID)

	var (
		user  *domain.User
		isNew bool
	)
	err = s.uow.Do(ctx, func(r repository.Repos) error {
		existing, err := r.Users.FindByOpenID(ctx, sess.OpenID)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		id, err := generateUniqueUserID(ctx, r.Users)
		if err != nil {
			return err
		}
		openID := sess.OpenID
		user = &domain.User{
			UserID:    id,
			OpenID:    &openID,
			Nickname:  nickname,
			AvatarURL: avatarURL,
			Status:    domain.UserStatusIdle,
		}
		isNew = true
		return r.Users.Create(ctx, user)
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to load or create user during WeChat login")
		return nil, ErrInternalServer
	}

	token, err := s.generateJWT(user.UserID, RoleUser)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return nil, ErrInternalServer
	}
	logCtx.WithFields(logrus.Fields{"user_id": user.UserID, "new_user": isNew}).Info("User logged in via WeChat")
	return &LoginResult{Token: token, User: user, IsNewUser: isNew}, nil
}

// AdminLogin 后台账号密码登录
func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (string, error) {
	logCtx := logrus.WithField("username", username)
	if username == "" || password == "" {
		return "", ErrAuthenticationFailed
	}

	var admin *domain.Admin
	err := s.uow.Do(ctx, func(r repository.Repos) error {
		var err error
		admin, err = r.Admins.FindByUsername(ctx, username)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			logCtx.Warn("Admin login failed: user not found")
		} else {
			logCtx.WithError(err).Warn("Admin login failed: error finding admin")
		}
		return "", ErrAuthenticationFailed // 对客户端统一返回认证失败
	}
	if !checkPassword(password, admin.Password) {
		logCtx.Warn("Admin login failed: invalid password")
		return "", ErrAuthenticationFailed
	}

	token, err := s.generateJWT(admin.ID, RoleAdmin)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during admin login")
		return "", ErrInternalServer
	}
	logCtx.WithField("admin_id", admin.ID).Info("Admin logged in")
	return token, nil
}

// UpsertAdmin 创建后台账号，已存在时重置密码
func (s *AuthService) UpsertAdmin(ctx context.Context, username, password string) error {
	if username == "" || len(password) < 6 {
		return fmt.Errorf("username required and password must be at least 6 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.uow.Do(ctx, func(r repository.Repos) error {
		admin, err := r.Admins.FindByUsername(ctx, username)
		if err != nil {
			if !errors.Is(err, repository.ErrAdminNotFound) {
				return err
			}
			admin = &domain.Admin{Username: username}
		}
		admin.Password = hashed
		return r.Admins.Save(ctx, admin)
	})
}

// --- 私有辅助函数 ---

// hashPassword 使用 bcrypt 对密码进行哈希处理
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

// checkPassword 验证提供的密码是否与存储的哈希匹配
func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// generateJWT 为指定主体生成 JWT Token
func (s *AuthService) generateJWT(subjectID int64, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": subjectID,
		"role":    role,
		"exp":     now.Add(s.jwtExpiry).Unix(),
		"iat":     now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// userIDMin / userIDMax 真实用户 ID 为 8 位正整数
const (
	userIDMin      = 10000000
	userIDMax      = 99999999
	userIDAttempts = 10
)

// generateUniqueUserID 生成未被占用的随机用户 ID
func generateUniqueUserID(ctx context.Context, users repository.UserRepository) (int64, error) {
	span := big.NewInt(userIDMax - userIDMin + 1)
	for attempt := 0; attempt < userIDAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return 0, fmt.Errorf("failed to generate random user id: %w", err)
		}
		id := userIDMin + n.Int64()

		exists, err := users.ExistsID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("database error checking user id: %w", err)
		}
		if !exists {
			return id, nil
		}
		logrus.WithField("user_id", id).Warnf("Generated user id already exists, retrying (attempt %d)...", attempt+1)
	}
	return 0, fmt.Errorf("failed to generate a unique user id after %d attempts", userIDAttempts)
}
