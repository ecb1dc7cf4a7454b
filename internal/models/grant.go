package models

import "time"

// Outcome итог выдачи доступа по одной позиции.
type Outcome string

const (
	OutcomeGranted          Outcome = "granted"
	OutcomeAlreadyOwned     Outcome = "already_owned"
	OutcomeMaterialNotFound Outcome = "material_not_found"
	OutcomeStoreError       Outcome = "store_error"
)

// OK сообщает, есть ли у пользователя доступ после выдачи.
func (o Outcome) OK() bool {
	return o == OutcomeGranted || o == OutcomeAlreadyOwned
}

// ItemResult результат выдачи по одной позиции корзины.
type ItemResult struct {
	Item    Item
	Outcome Outcome
	PDFURL  string
	Err     error
}

// GrantEvent событие о новой выдаче доступа, публикуется в брокер.
type GrantEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Category   string    `json:"category"`
	City       string    `json:"city"`
	PDFURL     string    `json:"pdf_url"`
	Provenance string    `json:"provenance"`
	GrantedAt  time.Time `json:"granted_at"`
}
