// Package wechat 封装小程序服务端接口：登录凭证校验、access_token 与订阅消息。
package wechat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL 微信接口地址
const DefaultBaseURL = "https://api.weixin.qq.com"

// ErrNotConfigured 未配置 appid/secret
var ErrNotConfigured = errors.New("wechat: app id or secret not configured")

// TokenCache access_token 缓存 (多实例共享，通常为 Redis)。
// 未命中时 Get 返回任意非 nil 错误。
type TokenCache interface {
	GetAccessToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string, ttl time.Duration) error
}

// APIError 微信接口返回的业务错误
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat: errcode %d: %s", e.Code, e.Message)
}

type baseResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (r baseResponse) err() error {
	if r.ErrCode == 0 {
		return nil
	}
	return &APIError{Code: r.ErrCode, Message: r.ErrMsg}
}

// Session code2session 的结果
type Session struct {
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid"`
	SessionKey string `json:"session_key"`
}

type sessionResponse struct {
	baseResponse
	Session
}

type tokenResponse struct {
	baseResponse
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// SubscribeMessage 订阅消息
type SubscribeMessage struct {
	ToUser     string                       `json:"touser"`
	TemplateID string                       `json:"template_id"`
	Page       string                       `json:"page,omitempty"`
	Data       map[string]map[string]string `json:"data"`
}

// Client 微信服务端接口客户端
type Client struct {
	http      *resty.Client
	appID     string
	appSecret string
	cache     TokenCache
}

// NewClient 创建客户端。cache 可以为 nil (每次都重新获取 access_token)。
func NewClient(baseURL, appID, appSecret string, cache TokenCache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:      httpClient,
		appID:     appID,
		appSecret: appSecret,
		cache:     cache,
	}
}

// Configured 是否配置了 appid/secret
func (c *Client) Configured() bool {
	return c.appID != "" && c.appSecret != ""
}

// Code2Session 用登录凭证换取 openid
func (c *Client) Code2Session(ctx context.Context, code string) (*Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var out sessionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"appid":      c.appID,
			"secret":     c.appSecret,
			"js_code":    code,
			"grant_type": "authorization_code",
		}).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/sns/jscode2session")
	if err != nil {
		return nil, fmt.Errorf("wechat: code2session request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wechat: code2session http status %d", resp.StatusCode())
	}
	if err := out.err(); err != nil {
		return nil, err
	}
	if out.OpenID == "" {
		return nil, errors.New("wechat: code2session returned empty openid")
	}
	return &out.Session, nil
}

// AccessToken 获取 access_token，优先读取缓存。
// 缓存有效期比微信给出的 expires_in 提前 5 分钟过期。
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.cache != nil {
		if token, err := c.cache.GetAccessToken(ctx); err == nil && token != "" {
			return token, nil
		}
	}

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type": "client_credential",
			"appid":      c.appID,
			"secret":     c.appSecret,
		}).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/cgi-bin/token")
	if err != nil {
		return "", fmt.Errorf("wechat: token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("wechat: token http status %d", resp.StatusCode())
	}
	if err := out.err(); err != nil {
		return "", err
	}

	if c.cache != nil {
		ttl := time.Duration(out.ExpiresIn)*time.Second - 5*time.Minute
		if ttl > 0 {
			if err := c.cache.SetAccessToken(ctx, out.AccessToken, ttl); err != nil {
				logrus.WithError(err).Warn("wechat: failed to cache access token")
			}
		}
	}
	return out.AccessToken, nil
}

// SendSubscribeMessage 发送订阅消息
func (c *Client) SendSubscribeMessage(ctx context.Context, msg SubscribeMessage) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	var out baseResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/cgi-bin/message/subscribe/send")
	if err != nil {
		return fmt.Errorf("wechat: subscribe send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("wechat: subscribe send http status %d", resp.StatusCode())
	}
	return out.err()
}
