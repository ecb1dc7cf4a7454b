// Package paymentprovider содержит адаптеры платёжных провайдеров.
// Адаптер умеет создать оплату и ответить на вопрос, оплачена ли она и за что.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

// Имена провайдеров.
const (
	ProviderStripe      = "stripe"
	ProviderMercadoPago = "mercadopago"
)

var (
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	ErrNotFound            = errors.New("payment reference not found")
	ErrMetadataMissing     = errors.New("payment metadata has no items")
	ErrNotConfigured       = errors.New("payment provider not configured")
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrEmptyReference      = errors.New("empty payment reference")
	ErrProvider            = errors.New("payment provider failure")
)

// NotConfirmedError оплата существует, но провайдер не считает её завершённой.
type NotConfirmedError struct {
	Provider string
	Status   string
}

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("%s: payment status %q is not paid", e.Provider, e.Status)
}

func (e *NotConfirmedError) Unwrap() error { return ErrPaymentNotConfirmed }

// ProviderError ошибка обращения к API провайдера.
// StatusCode равен 0, если ответ не был получен.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// Adapter общий интерфейс платёжного провайдера.
type Adapter interface {
	Name() string
	Confirm(ctx context.Context, reference string) (*models.Confirmation, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// CheckoutRequest данные для создания оплаты.
// Metadata уходит провайдеру без изменений и возвращается при подтверждении.
type CheckoutRequest struct {
	UserID   string
	Items    []models.Item
	Origin   string
	Metadata map[string]string
}

// CheckoutSession созданная у провайдера оплата.
type CheckoutSession struct {
	ID  string
	URL string
}

// Metrics интерфейс для учёта длительности запросов к провайдеру.
type Metrics interface {
	ObserveProvider(provider, operation string, started time.Time)
}

type noopMetrics struct{}

func (noopMetrics) ObserveProvider(string, string, time.Time) {}
