package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

// ListActiveByCategory возвращает активные материалы, у которых категория
// совпадает с шаблоном ILIKE. Порядок детерминирован: сначала самые свежие
// по updated_at, при равенстве по возрастанию id.
func (s *Storage) ListActiveByCategory(ctx context.Context, pattern string, limit int) ([]models.Material, error) {
	const op = "storage.ListActiveByCategory"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, category, city_label, pdf_url, is_active, updated_at
			  FROM curadoria_materials
			  WHERE is_active = TRUE AND category ILIKE $1
			  ORDER BY updated_at DESC, id ASC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Material
	for rows.Next() {
		var (
			m      models.Material
			pdfURL sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Category, &m.CityLabel, &pdfURL, &m.IsActive, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		m.PDFURL = pdfURL.String
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
