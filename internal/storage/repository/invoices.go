package repository

import (
	"context"
	"fmt"
)

// HasInvoiceProfile сообщает, заполнил ли пользователь профиль для выставления счёта.
// Содержимое профиля не проверяется.
func (s *Storage) HasInvoiceProfile(ctx context.Context, userID string) (bool, error) {
	const op = "storage.HasInvoiceProfile"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoice_profiles WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
