package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

// FindPurchase ищет покупку по точной паре категория/город без нормализации.
func (s *Storage) FindPurchase(ctx context.Context, userID, category, city string) (*models.Purchase, bool, error) {
	const op = "storage.FindPurchase"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, category, city, pdf_url, provider_reference, created_at
			  FROM purchase
			  WHERE user_id = $1 AND category = $2 AND city = $3
			  LIMIT 1`
	var p models.Purchase
	err := s.DB.QueryRowContext(ctx, query, userID, category, city).Scan(
		&p.ID, &p.UserID, &p.Category, &p.City, &p.PDFURL, &p.ProviderReference, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &p, true, nil
}

// InsertPurchase вставляет покупку, если её ещё нет. Возвращает false, когда
// строка для (user_id, category, city) уже существует: конфликт по
// ограничению уникальности означает, что доступ уже выдан.
func (s *Storage) InsertPurchase(ctx context.Context, p models.Purchase) (bool, error) {
	const op = "storage.InsertPurchase"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO purchase (id, user_id, category, city, pdf_url, provider_reference)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (user_id, category, city) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query,
		p.ID, p.UserID, p.Category, p.City, p.PDFURL, p.ProviderReference)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
