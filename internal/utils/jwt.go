package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid or expired member token")

// MemberClaims 將 HTTP 請求對應到某個聊天室連線，不代表使用者帳號
type MemberClaims struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	jwt.StandardClaims
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken 為成員產生一個新的 token
func (m *TokenManager) GenerateToken(memberID, name, category string) (string, error) {
	nowTime := m.now()
	expireTime := nowTime.Add(m.ttl)

	claims := MemberClaims{
		MemberID: memberID,
		Name:     name,
		Category: category,
		StandardClaims: jwt.StandardClaims{
			Subject:   memberID,
			ExpiresAt: expireTime.Unix(),
			IssuedAt:  nowTime.Unix(),
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenClaims.SignedString(m.secret)
}

// ParseToken 解析和驗證 token，只接受 HMAC 簽章
func (m *TokenManager) ParseToken(token string) (*MemberClaims, error) {
	tokenClaims, err := jwt.ParseWithClaims(token, &MemberClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := tokenClaims.Claims.(*MemberClaims)
	if !ok || !tokenClaims.Valid || claims.MemberID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
