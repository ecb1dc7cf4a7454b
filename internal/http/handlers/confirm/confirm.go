// Package confirm обрабатывает подтверждение оплаты после возврата пользователя с сайта провайдера.
package confirm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/middlewarectx"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/paymentprovider"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/granter"
)

// Response результат подтверждения по всем позициям оплаты.
type Response struct {
	Reference string                `json:"reference" example:"cs_test_123"`
	Provider  string                `json:"provider" example:"stripe"`
	Items     []response.ItemResult `json:"items"`
}

// NotConfirmedResponse оплата найдена, но еще не оплачена.
type NotConfirmedResponse struct {
	Status        string `json:"status" example:"Error"`
	Error         string `json:"error" example:"payment not confirmed"`
	PaymentStatus string `json:"payment_status" example:"unpaid"`
}

// Service подтверждает оплату.
type Service interface {
	Confirm(ctx context.Context, in fulfillment.ConfirmInput) (*fulfillment.ConfirmResult, error)
}

// Handler обрабатывает GET /confirm.
type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Подтвердить оплату
// @Description Запрашивает оплату у провайдера и выдает доступ ко всем ее позициям.
// @Description Повторный вызов безопасен и возвращает те же ссылки.
// @Tags Checkout
// @Produce json
// @Param reference query string false "Идентификатор оплаты у провайдера"
// @Param session_id query string false "Идентификатор checkout-сессии Stripe"
// @Param payment_id query string false "Идентификатор платежа Mercado Pago"
// @Param provider query string false "stripe или mercadopago"
// @Success 200 {object} Response
// @Failure 400 {object} response.ErrorResponse "Не указана оплата"
// @Failure 401 {object} response.ErrorResponse "Нет пользователя"
// @Failure 402 {object} NotConfirmedResponse "Оплата не завершена"
// @Failure 403 {object} response.ErrorResponse "Оплата другого пользователя"
// @Failure 404 {object} response.ErrorResponse "Оплата не найдена"
// @Failure 422 {object} response.ErrorResponse "В оплате нет позиций"
// @Failure 502 {object} response.ErrorResponse "Ошибка провайдера"
// @Router /confirm [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.confirm"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	provider, reference := referenceFrom(r)
	if reference == "" {
		log.Error("missing payment reference")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing reference"))
		return
	}

	res, err := h.service.Confirm(r.Context(), fulfillment.ConfirmInput{
		Provider:      provider,
		Reference:     reference,
		SessionUserID: middlewarectx.UserIDFrom(r.Context()),
	})
	if err != nil {
		var nc *paymentprovider.NotConfirmedError
		if errors.As(err, &nc) {
			log.Info("payment not confirmed", slog.String("reference", reference), slog.String("payment_status", nc.Status))
			w.WriteHeader(http.StatusPaymentRequired)
			render.JSON(w, r, NotConfirmedResponse{
				Status:        response.StatusError,
				Error:         "payment not confirmed",
				PaymentStatus: nc.Status,
			})
			return
		}
		status, body := ErrorResponse(err)
		log.Error("confirmation failed", slog.String("reference", reference), slog.Int("status", status), sl.Err(err))
		w.WriteHeader(status)
		render.JSON(w, r, body)
		return
	}

	render.JSON(w, r, Response{
		Reference: res.Reference,
		Provider:  res.Provider,
		Items:     response.Items(res.Items),
	})
}

// referenceFrom читает оплату из query. session_id подразумевает Stripe,
// payment_id подразумевает Mercado Pago, если провайдер не указан явно.
func referenceFrom(r *http.Request) (provider, reference string) {
	q := r.URL.Query()
	provider = strings.TrimSpace(q.Get("provider"))
	reference = strings.TrimSpace(q.Get("reference"))
	if reference != "" {
		return provider, reference
	}
	if id := strings.TrimSpace(q.Get("session_id")); id != "" {
		if provider == "" {
			provider = paymentprovider.ProviderStripe
		}
		return provider, id
	}
	if id := strings.TrimSpace(q.Get("payment_id")); id != "" {
		if provider == "" {
			provider = paymentprovider.ProviderMercadoPago
		}
		return provider, id
	}
	return provider, ""
}

// ErrorResponse сопоставляет ошибку подтверждения со статусом ответа.
func ErrorResponse(err error) (int, response.ErrorResponse) {
	switch {
	case errors.Is(err, paymentprovider.ErrPaymentNotConfirmed):
		return http.StatusPaymentRequired, response.Error("payment not confirmed")
	case errors.Is(err, paymentprovider.ErrUnknownProvider), errors.Is(err, paymentprovider.ErrEmptyReference):
		return http.StatusBadRequest, response.Error("invalid payment reference")
	case errors.Is(err, paymentprovider.ErrNotFound):
		return http.StatusNotFound, response.Error("payment not found")
	case errors.Is(err, paymentprovider.ErrMetadataMissing):
		return http.StatusUnprocessableEntity, response.Error("payment has no items")
	case errors.Is(err, granter.ErrInvalidUser), errors.Is(err, granter.ErrEmptyUser), errors.Is(err, granter.ErrNoItems):
		return http.StatusUnprocessableEntity, response.Error("payment owner is invalid")
	case errors.Is(err, fulfillment.ErrOwnershipMismatch):
		return http.StatusForbidden, response.Error("payment belongs to another user")
	case errors.Is(err, fulfillment.ErrUnauthenticated):
		return http.StatusUnauthorized, response.ErrorWithCode("user identification missing", response.CodeLoginRequired)
	case errors.Is(err, paymentprovider.ErrNotConfigured):
		return http.StatusInternalServerError, response.ErrorWithCode("payment provider is not configured", response.CodeConfigError)
	case errors.Is(err, paymentprovider.ErrProvider):
		return http.StatusBadGateway, response.Error("payment provider error")
	default:
		return http.StatusInternalServerError, response.Error("internal error")
	}
}
