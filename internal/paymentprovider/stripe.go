package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/curadoria-elite-travel/fulfillment/internal/config"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/textkey"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

const cityGuideCategory = "city guide"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Stripe адаптер Stripe Checkout.
type Stripe struct {
	sessions stripeSessionAPI
	cfg      config.Stripe
	checkout config.Checkout
	log      *slog.Logger
	metrics  Metrics
}

// NewStripe создаёт адаптер. Без секретного ключа адаптер создаётся,
// но любые операции возвращают ErrNotConfigured.
func NewStripe(cfg config.Stripe, checkout config.Checkout, log *slog.Logger, metrics Metrics) *Stripe {
	var sessions stripeSessionAPI
	if strings.TrimSpace(cfg.SecretKey) != "" {
		sc := client.New(cfg.SecretKey, nil)
		sessions = sc.CheckoutSessions
	}
	return newStripe(sessions, cfg, checkout, log, metrics)
}

func newStripe(sessions stripeSessionAPI, cfg config.Stripe, checkout config.Checkout, log *slog.Logger, metrics Metrics) *Stripe {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Stripe{
		sessions: sessions,
		cfg:      cfg,
		checkout: checkout,
		log:      log,
		metrics:  metrics,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

// Confirm запрашивает checkout-сессию и проверяет, что она оплачена.
// Сессия в статусе complete засчитывается только при payment_status paid
// или no_payment_required.
func (s *Stripe) Confirm(ctx context.Context, reference string) (*models.Confirmation, error) {
	const op = "paymentprovider.Stripe.Confirm"
	log := s.log.With(slog.String("op", op), slog.String("reference", reference))

	if s.sessions == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyReference)
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	started := time.Now()
	sess, err := s.sessions.Get(reference, params)
	s.metrics.ObserveProvider(ProviderStripe, "confirm", started)
	if err != nil {
		log.Error("failed to retrieve checkout session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, mapStripeError(err))
	}

	status := stripeStatus(sess)
	conf := &models.Confirmation{
		Provider:   ProviderStripe,
		Reference:  sess.ID,
		Status:     status,
		RawStatus:  string(sess.PaymentStatus),
		OwnerClaim: OwnerClaim(sess.Metadata),
	}
	if conf.OwnerClaim == "" {
		conf.OwnerClaim = strings.TrimSpace(sess.ClientReferenceID)
	}
	if status != models.PaymentPaid {
		log.Info("checkout session not paid",
			slog.String("status", string(sess.Status)),
			slog.String("payment_status", string(sess.PaymentStatus)),
		)
		return nil, fmt.Errorf("%s: %w", op, &NotConfirmedError{Provider: ProviderStripe, Status: string(sess.PaymentStatus)})
	}

	items, err := ParseItems(sess.Metadata)
	if err != nil {
		log.Warn("paid session without items in metadata")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	conf.Items = items
	return conf, nil
}

// CreateCheckout создаёт checkout-сессию в режиме payment, по одной позиции на товар.
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	const op = "paymentprovider.Stripe.CreateCheckout"
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if s.sessions == nil || s.cfg.PriceID == "" || s.cfg.CityGuidePriceID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(s.priceFor(it.Category)),
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(s.successURL(req)),
		CancelURL:         stripe.String(s.cancelURL(req.Origin)),
		ClientReferenceID: stripe.String(req.UserID),
	}
	params.Context = ctx
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	started := time.Now()
	sess, err := s.sessions.New(params)
	s.metrics.ObserveProvider(ProviderStripe, "checkout", started)
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, mapStripeError(err))
	}

	log.Info("checkout session created", slog.String("session_id", sess.ID), slog.Int("items", len(req.Items)))
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) priceFor(category string) string {
	if textkey.Normalize(category) == cityGuideCategory {
		return s.cfg.CityGuidePriceID
	}
	return s.cfg.PriceID
}

// successURL возвращает адрес возврата после оплаты.
// Плейсхолдер {CHECKOUT_SESSION_ID} подставляет сам Stripe, поэтому он не экранируется.
func (s *Stripe) successURL(req CheckoutRequest) string {
	q := url.Values{}
	q.Set("checkout", "success")
	q.Set("provider", ProviderStripe)
	if len(req.Items) == 1 {
		q.Set("category", req.Items[0].Category)
		q.Set("city", req.Items[0].City)
	}
	return req.Origin + s.checkout.SuccessPath + "?" + q.Encode() + "&reference={CHECKOUT_SESSION_ID}"
}

func (s *Stripe) cancelURL(origin string) string {
	return origin + s.checkout.CancelPath + "?checkout=cancel"
}

func stripeStatus(sess *stripe.CheckoutSession) models.PaymentStatus {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return models.PaymentPaid
	case sess.Status == stripe.CheckoutSessionStatusComplete &&
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return models.PaymentPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return models.PaymentFailed
	case sess.Status == stripe.CheckoutSessionStatusOpen,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid:
		return models.PaymentPending
	default:
		return models.PaymentUnknown
	}
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrNotFound, se.Msg)
		}
		return &ProviderError{Provider: ProviderStripe, StatusCode: se.HTTPStatusCode, Message: se.Msg}
	}
	return &ProviderError{Provider: ProviderStripe, Message: err.Error()}
}
