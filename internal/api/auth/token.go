package auth

import (
	"errors"
	"fmt"
	"time"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

const refreshTokenType = "refresh"

var ErrInvalidToken = errors.New("invalid token")

// TokenPair access 与 refresh token。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Type      string `json:"type,omitempty"` // 仅用于拒绝被当作 access token 使用的 refresh token
}

type refreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Tokens 签发与校验 JWT（HS256）。
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokens 未配置 refresh 密钥时复用 access 密钥。
func NewTokens(cfg config.SecurityConfig) *Tokens {
	refresh := cfg.JWTRefreshSecret
	if refresh == "" {
		refresh = cfg.JWTSecret
	}
	return &Tokens{
		accessSecret:  []byte(cfg.JWTSecret),
		refreshSecret: []byte(refresh),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		now:           time.Now,
	}
}

// Issue 为用户签发一对新 token。
func (t *Tokens) Issue(user *model.User) (TokenPair, error) {
	now := t.now()
	access := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
	accessToken, err := access.SignedString(t.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
		Type: refreshTokenType,
	})
	refreshToken, err := refresh.SignedString(t.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ParseAccess 校验 access token 并返回用户 ID。
func (t *Tokens) ParseAccess(token string) (string, error) {
	claims := &accessClaims{}
	if err := t.parse(token, claims, t.accessSecret); err != nil {
		return "", err
	}
	if claims.Type == refreshTokenType {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ParseRefresh 校验 refresh token，type 必须为 refresh。
func (t *Tokens) ParseRefresh(token string) (string, error) {
	claims := &refreshClaims{}
	if err := t.parse(token, claims, t.refreshSecret); err != nil {
		return "", err
	}
	if claims.Type != refreshTokenType {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (t *Tokens) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return ErrInvalidToken
	}
	return nil
}
