package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/LorillaJm/es6-sub000/config"
)

var (
	ErrTokenExpired = errors.New("token 已过期")
	ErrTokenInvalid = errors.New("token 无效")
)

// 角色
const (
	RoleMember     = "member"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// Claims 自定义 JWT 声明
// PersonHandle 为身份提供方签发的人员标识，台账通过 IdentityResolver 解析为人员记录
type Claims struct {
	PersonHandle string `json:"person_handle"`
	Role         string `json:"role"`
	OrgID        string `json:"org_id,omitempty"`
	TokenType    string `json:"token_type"` // 目前仅 "access"
	jwtv5.RegisteredClaims
}

// Manager JWT 管理器
type Manager struct {
	secret         []byte
	issuer         string
	accessTokenTTL time.Duration
}

// NewManager 创建 JWT 管理器
func NewManager(cfg *config.AuthConfig) *Manager {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "attendance"
	}
	return &Manager{
		secret:         []byte(cfg.JWTSecret),
		issuer:         issuer,
		accessTokenTTL: cfg.AccessTokenTTL,
	}
}

// GenerateAccessToken 生成 Access Token
// 生产环境由身份提供方签发，本方法供 CLI 开发令牌与测试使用
func (m *Manager) GenerateAccessToken(personHandle, role, orgID string) (string, error) {
	return m.GenerateAccessTokenWithTTL(personHandle, role, orgID, m.accessTokenTTL)
}

// GenerateAccessTokenWithTTL 生成指定有效期的 Access Token
func (m *Manager) GenerateAccessTokenWithTTL(personHandle, role, orgID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PersonHandle: personHandle,
		Role:         role,
		OrgID:        orgID,
		TokenType:    "access",
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   personHandle,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
			Issuer:    m.issuer,
		},
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并验证 Token（签名、有效期、签发方）
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PersonHandle == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
