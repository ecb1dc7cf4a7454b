// Package checkout обрабатывает создание оплаты корзины.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/middlewarectx"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
	"github.com/curadoria-elite-travel/fulfillment/internal/paymentprovider"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
)

// Request тело запроса. Корзина передается списком items
// или одной парой category/city.
type Request struct {
	Provider string        `json:"provider,omitempty" validate:"omitempty,oneof=stripe mercadopago" example:"stripe"`
	Items    []models.Item `json:"items,omitempty"`
	Category string        `json:"category,omitempty" example:"City Guide"`
	City     string        `json:"city,omitempty" example:"New York - USA"`
}

// Response ссылка на оплату.
type Response struct {
	URL       string `json:"url" example:"https://checkout.stripe.com/c/pay/cs_test_123"`
	Provider  string `json:"provider" example:"stripe"`
	SessionID string `json:"session_id" example:"cs_test_123"`
}

// Service создает оплату.
type Service interface {
	Checkout(ctx context.Context, in fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error)
}

// Handler обрабатывает POST /checkout.
type Handler struct {
	log           *slog.Logger
	service       Service
	publicBaseURL string
	validate      *validator.Validate
}

// New создает Handler. publicBaseURL используется, если запрос пришел без Origin и Referer.
func New(log *slog.Logger, service Service, publicBaseURL string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		validate:      validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать оплату
// @Description Проверяет вход и профиль для счета, затем создает оплату у провайдера.
// @Description Для ожидаемых веток возвращает 200 с кодом LOGIN_REQUIRED или INVOICE_REQUIRED.
// @Tags Checkout
// @Accept json
// @Produce json
// @Param request body Request true "Корзина"
// @Success 200 {object} Response
// @Success 200 {object} response.CodeResponse
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 500 {object} response.ErrorResponse "Провайдер не настроен"
// @Failure 502 {object} response.ErrorResponse "Ошибка провайдера"
// @Router /checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	items := req.Items
	if len(items) == 0 {
		items = []models.Item{{Category: req.Category, City: req.City}}
	}

	res, err := h.service.Checkout(r.Context(), fulfillment.CheckoutInput{
		Provider: req.Provider,
		Token:    middlewarectx.TokenFrom(r.Context()),
		Items:    items,
		Origin:   h.origin(r),
	})
	if err != nil {
		status, body := errorResponse(err)
		log.Error("checkout failed", slog.Int("status", status), sl.Err(err))
		w.WriteHeader(status)
		render.JSON(w, r, body)
		return
	}

	if res.Code != "" {
		render.JSON(w, r, response.Code(res.Code))
		return
	}
	render.JSON(w, r, Response{URL: res.URL, Provider: res.Provider, SessionID: res.SessionID})
}

func errorResponse(err error) (int, response.ErrorResponse) {
	switch {
	case errors.Is(err, fulfillment.ErrNoItems):
		return http.StatusBadRequest, response.Error("category and city are required")
	case errors.Is(err, paymentprovider.ErrCartTooLarge):
		return http.StatusBadRequest, response.Error("too many items in cart")
	case errors.Is(err, paymentprovider.ErrUnknownProvider):
		return http.StatusBadRequest, response.Error("unknown payment provider")
	case errors.Is(err, paymentprovider.ErrNotConfigured):
		return http.StatusInternalServerError, response.ErrorWithCode("payment provider is not configured", response.CodeConfigError)
	case errors.Is(err, paymentprovider.ErrProvider):
		return http.StatusBadGateway, response.Error("payment provider error")
	default:
		return http.StatusInternalServerError, response.Error("internal error")
	}
}

// origin возвращает адрес сайта для ссылок возврата: Origin или Referer,
// если они абсолютные, иначе публичный адрес из конфига.
func (h *Handler) origin(r *http.Request) string {
	if o := strings.TrimSpace(r.Header.Get("Origin")); strings.HasPrefix(o, "http") {
		return strings.TrimRight(o, "/")
	}
	if ref := strings.TrimSpace(r.Header.Get("Referer")); strings.HasPrefix(ref, "http") {
		if u, err := url.Parse(ref); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return h.publicBaseURL
}
