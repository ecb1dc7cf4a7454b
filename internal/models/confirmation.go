package models

// PaymentStatus статус оплаты в терминах провайдера, приведённый к общему виду.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
	PaymentUnknown PaymentStatus = "unknown"
)

// Confirmation подтверждённое провайдером состояние оплаты.
// Не сохраняется, каждый раз запрашивается у провайдера заново.
type Confirmation struct {
	Provider   string
	Reference  string
	Status     PaymentStatus
	RawStatus  string
	OwnerClaim string
	Items      []Item
}
