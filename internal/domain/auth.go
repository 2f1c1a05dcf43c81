package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Права оператора в токене
const (
	ScopeAudit    = "monitor.audit"    // внеочередной аудит
	ScopeOptimize = "monitor.optimize" // ручное применение действий
)

type CustomClaims struct {
	Operator string          `json:"operator"`
	Scopes   map[string]bool `json:"scopes"`
	jwt.RegisteredClaims
}

// LoginRequest вход оператора
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator учетная запись оператора мониторинга
type Operator struct {
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // bcrypt, наружу не отдаем
	Scopes       map[string]bool `json:"scopes"`
}
