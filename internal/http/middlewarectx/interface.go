package middlewarectx

import "context"

// Identifier превращает bearer-токен в идентификатор пользователя.
// Пустая строка без ошибки означает анонимный запрос.
type Identifier interface {
	Identify(ctx context.Context, token string) (string, error)
}
