package middlewarectx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/password"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
)

// AdminKeyHeader заголовок с ключом администратора.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware пропускает только запросы с ключом, совпадающим с bcrypt-хешем.
// Без настроенного хеша административные маршруты закрыты.
func AdminKeyMiddleware(keyHash string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminKeyMiddleware"
			log := log.With(slog.String("op", op))

			err := password.CompareHash(keyHash, r.Header.Get(AdminKeyHeader))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, password.ErrNoHash):
				log.Error("admin key hash is not configured")
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.ErrorWithCode("admin access is not configured", response.CodeConfigError))
			default:
				log.Warn("admin key rejected", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
			}
		})
	}
}
