// Package jwt проверяет access-токены внешнего провайдера идентификации
// (Supabase, HS256) и извлекает из них идентификатор пользователя.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken токен отсутствует, подделан, просрочен или без sub.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotConfigured не задан секрет проверки подписи.
	ErrNotConfigured = errors.New("identity verifier is not configured")
)

// Claims данные access-токена.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier проверяет подпись и срок действия токена.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier создает Verifier. Пустые issuer и audience не проверяются.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// ParseToken разбирает и проверяет токен.
func (v *Verifier) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}

// ResolveUser возвращает идентификатор пользователя (sub) из токена.
func (v *Verifier) ResolveUser(_ context.Context, token string) (string, error) {
	claims, err := v.ParseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
