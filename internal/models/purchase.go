package models

import "time"

// Purchase запись о том, что пользователь владеет доступом к материалу.
// Category и City хранятся так, как были куплены, без нормализации.
type Purchase struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Category          string    `json:"category"`
	City              string    `json:"city"`
	PDFURL            string    `json:"pdf_url"`
	ProviderReference string    `json:"provider_reference"`
	CreatedAt         time.Time `json:"created_at"`
}

// Item пара категория/город из корзины.
type Item struct {
	Category string `json:"category" validate:"required"`
	City     string `json:"city" validate:"required"`
}
