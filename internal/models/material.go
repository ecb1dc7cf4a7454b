// Package models содержит доменные структуры выдачи доступа к материалам:
// материалы каталога, записи о покупках, подтверждения оплаты и результаты выдачи.
package models

import "time"

// Material представляет PDF-материал каталога, который можно купить.
// Категория и город хранятся в том виде, в каком их ввёл куратор.
type Material struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	CityLabel string    `json:"city_label"`
	PDFURL    string    `json:"pdf_url"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}
