// Package fulfillment связывает оплату у провайдера с выдачей доступа:
// создает оплату после проверки предусловий и по подтвержденной оплате
// выдает материалы ее владельцу.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
	"github.com/curadoria-elite-travel/fulfillment/internal/paymentprovider"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/gate"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/granter"
)

var (
	// ErrOwnershipMismatch оплату подтверждает не тот пользователь, который ее создал.
	ErrOwnershipMismatch = errors.New("payment belongs to another user")
	// ErrUnauthenticated нет ни пользователя сессии, ни владельца в метаданных.
	ErrUnauthenticated = errors.New("no user identity for payment")
	ErrNoItems         = errors.New("no valid items")
	ErrEmptyInput      = errors.New("category and city are required")
)

// Результаты подтверждения для метрик.
const (
	resultConfirmed    = "confirmed"
	resultNotConfirmed = "not_confirmed"
	resultRejected     = "rejected"
	resultError        = "error"
)

// Providers выбирает адаптер по имени провайдера.
type Providers interface {
	Get(name string) (paymentprovider.Adapter, error)
}

// Gate проверяет предусловия покупки.
type Gate interface {
	Check(ctx context.Context, authToken string) (gate.Decision, error)
}

// Granter выдает доступ по списку позиций.
type Granter interface {
	Grant(ctx context.Context, userID string, items []models.Item, provenance string) ([]models.ItemResult, error)
}

// PurchaseStore чтение реестра покупок.
type PurchaseStore interface {
	FindPurchase(ctx context.Context, userID, category, city string) (*models.Purchase, bool, error)
}

// Metrics учитывает подтверждения оплат.
type Metrics interface {
	Confirmation(provider, result string)
}

type Service struct {
	providers Providers
	gate      Gate
	granter   Granter
	purchases PurchaseStore
	metrics   Metrics
	source    string
	log       *slog.Logger
	now       func() time.Time
}

// New создает сервис. source записывается в метаданные оплаты, metrics может быть nil.
func New(providers Providers, g Gate, gr Granter, purchases PurchaseStore, metrics Metrics, source string, log *slog.Logger) *Service {
	return &Service{
		providers: providers,
		gate:      g,
		granter:   gr,
		purchases: purchases,
		metrics:   metrics,
		source:    source,
		log:       log,
		now:       time.Now,
	}
}

type ConfirmInput struct {
	Provider  string
	Reference string
	// SessionUserID пользователь текущей сессии, пустой для вебхуков.
	SessionUserID string
}

type ConfirmResult struct {
	Provider  string
	Reference string
	UserID    string
	Items     []models.ItemResult
}

// HasStoreErrors сообщает, что часть позиций не выдана из-за сбоя хранилища.
// Такое подтверждение нужно повторить, выдача идемпотентна.
func (r *ConfirmResult) HasStoreErrors() bool {
	if r == nil {
		return false
	}
	for _, item := range r.Items {
		if item.Outcome == models.OutcomeStoreError {
			return true
		}
	}
	return false
}

// Confirm подтверждает оплату у провайдера и выдает доступ ко всем ее позициям.
// Повторный вызов для той же оплаты ничего не меняет.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	const op = "fulfillment.Confirm"
	log := s.log.With(
		slog.String("op", op),
		slog.String("provider", in.Provider),
		slog.String("reference", in.Reference),
	)

	adapter, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conf, err := adapter.Confirm(ctx, in.Reference)
	if err != nil {
		s.observe(adapter.Name(), confirmResult(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := reconcileOwner(in.SessionUserID, conf.OwnerClaim)
	if err != nil {
		s.observe(adapter.Name(), resultRejected)
		log.Warn("payment identity rejected",
			slog.String("session_user", in.SessionUserID),
			slog.String("owner_claim", conf.OwnerClaim),
			sl.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	results, err := s.granter.Grant(ctx, userID, conf.Items, conf.Reference)
	if err != nil {
		s.observe(adapter.Name(), resultError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.observe(adapter.Name(), resultConfirmed)

	log.Info("payment fulfilled", slog.String("user_id", userID), slog.Int("items", len(results)))
	return &ConfirmResult{
		Provider:  adapter.Name(),
		Reference: conf.Reference,
		UserID:    userID,
		Items:     results,
	}, nil
}

// reconcileOwner выбирает владельца оплаты. Пользователь сессии важнее
// метаданных, но если известны оба, они обязаны совпадать.
func reconcileOwner(sessionUserID, ownerClaim string) (string, error) {
	sessionUserID = strings.TrimSpace(sessionUserID)
	ownerClaim = strings.TrimSpace(ownerClaim)

	switch {
	case sessionUserID != "" && ownerClaim != "" && sessionUserID != ownerClaim:
		return "", ErrOwnershipMismatch
	case sessionUserID != "":
		return sessionUserID, nil
	case ownerClaim != "":
		return ownerClaim, nil
	default:
		return "", ErrUnauthenticated
	}
}

// Permanent сообщает, что повтор подтверждения с теми же данными даст ту же ошибку:
// оплата не завершена, неизвестна или не содержит владельца и позиций.
func Permanent(err error) bool {
	switch {
	case errors.Is(err, paymentprovider.ErrPaymentNotConfirmed),
		errors.Is(err, paymentprovider.ErrNotFound),
		errors.Is(err, paymentprovider.ErrMetadataMissing),
		errors.Is(err, paymentprovider.ErrEmptyReference),
		errors.Is(err, paymentprovider.ErrUnknownProvider),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrOwnershipMismatch),
		errors.Is(err, granter.ErrInvalidUser),
		errors.Is(err, granter.ErrEmptyUser),
		errors.Is(err, granter.ErrNoItems):
		return true
	default:
		return false
	}
}

func confirmResult(err error) string {
	if errors.Is(err, paymentprovider.ErrPaymentNotConfirmed) {
		return resultNotConfirmed
	}
	if errors.Is(err, paymentprovider.ErrNotFound) || errors.Is(err, paymentprovider.ErrMetadataMissing) {
		return resultRejected
	}
	return resultError
}

func (s *Service) observe(provider, result string) {
	if s.metrics != nil {
		s.metrics.Confirmation(provider, result)
	}
}

type CheckoutInput struct {
	Provider string
	Token    string
	Items    []models.Item
	Origin   string
}

// CheckoutResult либо ссылка на оплату, либо код предусловия (LOGIN_REQUIRED, INVOICE_REQUIRED).
type CheckoutResult struct {
	Provider  string
	SessionID string
	URL       string
	Code      string
}

// Checkout проверяет предусловия и создает оплату у выбранного провайдера.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	const op = "fulfillment.Checkout"
	log := s.log.With(slog.String("op", op), slog.String("provider", in.Provider))

	items := paymentprovider.SanitizeItems(in.Items)
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoItems)
	}

	adapter, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	decision, err := s.gate.Check(ctx, in.Token)
	if err != nil {
		log.Error("precondition check failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !decision.Ready() {
		log.Info("checkout blocked", slog.String("state", string(decision.State)))
		return &CheckoutResult{Provider: adapter.Name(), Code: decision.State.Code()}, nil
	}

	meta, err := paymentprovider.EncodeMetadata(decision.UserID, items, s.source)
	if err != nil {
		log.Warn("cart rejected", slog.Int("items", len(items)), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess, err := adapter.CreateCheckout(ctx, paymentprovider.CheckoutRequest{
		UserID:   decision.UserID,
		Items:    items,
		Origin:   in.Origin,
		Metadata: meta,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("checkout created",
		slog.String("user_id", decision.UserID),
		slog.String("session_id", sess.ID),
		slog.Int("items", len(items)),
	)
	return &CheckoutResult{Provider: adapter.Name(), SessionID: sess.ID, URL: sess.URL}, nil
}

// GrantManual выдает доступ без оплаты, по решению администратора.
func (s *Service) GrantManual(ctx context.Context, userID string, item models.Item) (models.ItemResult, error) {
	const op = "fulfillment.GrantManual"

	items := paymentprovider.SanitizeItems([]models.Item{item})
	if len(items) == 0 {
		return models.ItemResult{}, fmt.Errorf("%s: %w", op, ErrEmptyInput)
	}

	provenance := fmt.Sprintf("manual_%d", s.now().UnixMilli())
	results, err := s.granter.Grant(ctx, userID, items, provenance)
	if err != nil {
		return models.ItemResult{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("manual grant",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("provenance", provenance),
		slog.String("outcome", string(results[0].Outcome)),
	)
	return results[0], nil
}

// HasAccess ищет покупку по точной паре категория/город.
func (s *Service) HasAccess(ctx context.Context, userID, category, city string) (*models.Purchase, bool, error) {
	const op = "fulfillment.HasAccess"

	category = strings.TrimSpace(category)
	city = strings.TrimSpace(city)
	if category == "" || city == "" {
		return nil, false, fmt.Errorf("%s: %w", op, ErrEmptyInput)
	}

	p, ok, err := s.purchases.FindPurchase(ctx, userID, category, city)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return p, ok, nil
}
