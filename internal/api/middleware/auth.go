// Package middleware HTTP中间件：鉴权、请求ID、访问日志
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"career-agent-go/internal/config"
	"career-agent-go/internal/constants"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/keyauth"
)

var (
	// ErrInvalidToken 令牌无效或已过期
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidSubject 令牌的 sub 不是合法的用户ID
	ErrInvalidSubject = errors.New("invalid token subject")
)

// Claims 只使用标准声明，sub 为用户ID
type Claims struct {
	jwt.RegisteredClaims
}

// NewAuth 返回鉴权中间件。
// 正常模式校验 Bearer JWT(HS256)；关闭鉴权时从 X-User-ID 头读取用户ID。
func NewAuth(cfg config.AuthConfig) app.HandlerFunc {
	if cfg.Disabled {
		return headerUser
	}
	secret := []byte(cfg.JWTSecret)
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+consts.HeaderAuthorization, "Bearer"),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, token string) (bool, error) {
			userID, err := ParseToken(token, secret, cfg.JWTIssuer)
			if err != nil {
				return false, err
			}
			c.Set(constants.ContextKeyUserID, userID)
			return true, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			unauthorized(c, "未授权访问")
		}),
	)
}

func headerUser(ctx context.Context, c *app.RequestContext) {
	raw := strings.TrimSpace(string(c.GetHeader(constants.HeaderUserID)))
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || userID == 0 {
		unauthorized(c, "缺少或无效的 "+constants.HeaderUserID)
		return
	}
	c.Set(constants.ContextKeyUserID, userID)
	c.Next(ctx)
}

func unauthorized(c *app.RequestContext, message string) {
	c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{
		"code":    consts.StatusUnauthorized,
		"message": message,
		"data":    nil,
	})
}

// ParseToken 校验令牌并返回其中的用户ID，issuer 为空时不校验签发方
func ParseToken(token string, secret []byte, issuer string) (uint64, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, ErrInvalidSubject
	}
	return userID, nil
}

// IssueToken 签发测试和本地调试用的令牌，正式令牌由用户服务签发
func IssueToken(secret []byte, issuer string, userID uint64, ttl time.Duration) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("用户ID不能为0")
	}
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// UserID 读取鉴权中间件写入的用户ID
func UserID(c *app.RequestContext) (uint64, bool) {
	v, ok := c.Get(constants.ContextKeyUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}
