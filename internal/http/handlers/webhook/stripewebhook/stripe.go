// Package stripewebhook принимает события Stripe о завершении checkout-сессий.
package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/paymentprovider"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
)

const maxBodyBytes = 65536

// События, после которых сессия может быть оплачена.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Service подтверждает оплату.
type Service interface {
	Confirm(ctx context.Context, in fulfillment.ConfirmInput) (*fulfillment.ConfirmResult, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
	secret  string
}

func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:     log,
		service: service,
		secret:  secret,
	}
}

// ServeHTTP godoc
// @Summary Вебхук Stripe
// @Description Проверяет подпись Stripe-Signature и выдает доступ по оплаченной сессии.
// @Description Владелец берется только из метаданных сессии. Повторная доставка безопасна.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Временная ошибка, Stripe повторит доставку"
// @Router /webhooks/stripe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.stripe"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if h.secret == "" {
		log.Error("stripe webhook secret is not configured")
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("webhook is not configured", response.CodeConfigError))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid body"))
		return
	}
	defer r.Body.Close()

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Error("invalid webhook signature", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}
	log = log.With(slog.String("event_id", event.ID), slog.String("event_type", string(event.Type)))

	switch string(event.Type) {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
	default:
		log.Info("ignored webhook event")
		render.JSON(w, r, map[string]bool{"received": true})
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil || sess.ID == "" {
		log.Error("failed to decode checkout session", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event payload"))
		return
	}

	res, err := h.service.Confirm(r.Context(), fulfillment.ConfirmInput{
		Provider:  paymentprovider.ProviderStripe,
		Reference: sess.ID,
	})
	if err != nil {
		if !fulfillment.Permanent(err) {
			log.Error("webhook confirmation failed", slog.String("session_id", sess.ID), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("temporary failure"))
			return
		}
		log.Warn("webhook confirmation skipped", slog.String("session_id", sess.ID), sl.Err(err))
		render.JSON(w, r, map[string]bool{"received": true})
		return
	}

	if res.HasStoreErrors() {
		log.Error("webhook grant incomplete, asking for redelivery", slog.String("session_id", sess.ID))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("temporary failure"))
		return
	}

	log.Info("webhook processed", slog.String("session_id", sess.ID), slog.Int("items", len(res.Items)))
	render.JSON(w, r, map[string]bool{"received": true})
}
