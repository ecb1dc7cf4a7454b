// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель: единообразно формировать структурированные поля лога
// для ошибок и для пар категория/город, с которыми работает выдача доступа.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Для nil возвращает пустую строку, чтобы вызов был безопасен в любой ветке.
//
// Пример:
//
//	log.Error("failed to grant access", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Item возвращает группу "item" с исходными категорией и городом покупки.
func Item(category, city string) slog.Attr {
	return slog.Group("item",
		slog.String("category", category),
		slog.String("city", city),
	)
}

// Keys возвращает группу "normalized" с нормализованными ключами поиска материала.
func Keys(categoryKey, cityKey string) slog.Attr {
	return slog.Group("normalized",
		slog.String("category", categoryKey),
		slog.String("city", cityKey),
	)
}
