package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/infra/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthProvider источник операторов. Неизвестный оператор: (nil, nil).
type AuthProvider interface {
	GetOperator(ctx context.Context, username string) (*domain.Operator, error)
}

// StaticOperators: операторы из конфигурации
type StaticOperators map[string]domain.Operator

func (s StaticOperators) GetOperator(_ context.Context, username string) (*domain.Operator, error) {
	op, ok := s[username]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

// ChainProviders опрашивает источники по порядку, первый найденный оператор побеждает.
// Ошибка источника не мешает спросить следующий.
type ChainProviders []AuthProvider

func (c ChainProviders) GetOperator(ctx context.Context, username string) (*domain.Operator, error) {
	var errs []error
	for _, p := range c {
		op, err := p.GetOperator(ctx, username)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if op != nil {
			return op, nil
		}
	}
	return nil, errors.Join(errs...)
}

// AuthService выдает токены и проверяет их через встроенный BaseValidator
type AuthService struct {
	*auth.BaseValidator
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	ttl        time.Duration
	now        func() time.Time
}

func NewAuthService(repo AuthProvider, privateKey *rsa.PrivateKey, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		BaseValidator: auth.NewBaseValidator(&privateKey.PublicKey),
		repo:          repo,
		privateKey:    privateKey,
		ttl:           ttl,
		now:           time.Now,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	op, err := s.repo.GetOperator(ctx, username)
	if err != nil || op == nil || op.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &domain.CustomClaims{
		Operator: op.Username,
		Scopes:   op.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Subject:   op.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// Подпись ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}
