// Package middlewarectx содержит HTTP middleware для разбора bearer-токена,
// проверки ключа администратора и ограничения частоты запросов.
//
// IdentityMiddleware не отклоняет анонимные запросы: токен и пользователь
// кладутся в контекст, если они есть, а решение принимает обработчик.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// Token исходный bearer-токен.
	Token Key = "token"
	// UserID идентификатор пользователя из токена.
	UserID Key = "user_id"
)

// BearerToken достает токен из заголовка Authorization без учета регистра схемы.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// TokenFrom возвращает токен из контекста.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(Token).(string)
	return token
}

// UserIDFrom возвращает пользователя из контекста, пустая строка для анонимного запроса.
func UserIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(UserID).(string)
	return userID
}

// IdentityMiddleware разбирает заголовок Authorization.
// Недействительный токен считается отсутствующим, недоступность провайдера
// идентификации возвращает 503.
func IdentityMiddleware(identifier Identifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.IdentityMiddleware"

			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := identifier.Identify(r.Context(), token)
			if err != nil {
				log.With(
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				).Error("identity provider failed", sl.Err(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				render.JSON(w, r, response.Error("identity provider unavailable"))
				return
			}

			ctx := context.WithValue(r.Context(), Token, token)
			if userID != "" {
				ctx = context.WithValue(ctx, UserID, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
