package util

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid token 解析失败、签名错误或已过期
var ErrTokenInvalid = errors.New("token invalid")

// Claims 主体令牌载荷
type Claims struct {
	PrincipalID string `json:"pid"`
	Email       string `json:"email"`
	DeviceID    string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner HS256 签发与校验
type TokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenSigner 创建签名器
func NewTokenSigner(secret, issuer string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Sign 签发令牌
func (s *TokenSigner) Sign(principalID, email, deviceID string) (string, error) {
	now := time.Now()
	claims := Claims{
		PrincipalID: principalID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DeviceID:    deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse 校验并解析令牌
func (s *TokenSigner) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Email == "" || claims.PrincipalID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
