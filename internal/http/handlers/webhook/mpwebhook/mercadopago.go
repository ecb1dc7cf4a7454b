// Package mpwebhook принимает уведомления Mercado Pago о платежах.
package mpwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/paymentprovider"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
)

const maxBodyBytes = 65536

// Service подтверждает оплату.
type Service interface {
	Confirm(ctx context.Context, in fulfillment.ConfirmInput) (*fulfillment.ConfirmResult, error)
}

// Notification тело уведомления. id приходит то строкой, то числом.
type Notification struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*f = ""
		return nil
	}
	*f = flexibleID(strings.Trim(raw, `"`))
	return nil
}

type Handler struct {
	log     *slog.Logger
	service Service
	secret  string
}

// New создает Handler. При пустом secret подпись x-signature не проверяется.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:     log,
		service: service,
		secret:  secret,
	}
}

// ServeHTTP godoc
// @Summary Вебхук Mercado Pago
// @Description Принимает уведомление о платеже, при настроенном секрете проверяет x-signature,
// @Description затем подтверждает платеж по id. Повторная доставка безопасна.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param data.id query string false "Идентификатор платежа"
// @Param type query string false "Тип уведомления"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} response.ErrorResponse "Некорректное уведомление"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Временная ошибка"
// @Router /webhooks/mercadopago [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.mercadopago"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid body"))
		return
	}
	defer r.Body.Close()

	var n Notification
	if len(body) > 0 {
		if err := json.Unmarshal(body, &n); err != nil {
			log.Error("failed to unmarshal notification", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid body"))
			return
		}
	}

	q := r.URL.Query()
	kind := firstNonEmpty(n.Type, q.Get("type"), q.Get("topic"))
	dataID := firstNonEmpty(q.Get("data.id"), string(n.Data.ID), q.Get("id"))

	if h.secret != "" && !VerifySignature(h.secret, r.Header.Get("x-signature"), r.Header.Get("x-request-id"), dataID) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	if kind != "payment" {
		log.Info("ignored notification", slog.String("type", kind), slog.String("action", n.Action))
		render.JSON(w, r, map[string]bool{"received": true})
		return
	}
	if dataID == "" {
		log.Error("notification without payment id")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing payment id"))
		return
	}

	res, err := h.service.Confirm(r.Context(), fulfillment.ConfirmInput{
		Provider:  paymentprovider.ProviderMercadoPago,
		Reference: dataID,
	})
	if err != nil {
		if !fulfillment.Permanent(err) {
			log.Error("webhook confirmation failed", slog.String("payment_id", dataID), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("temporary failure"))
			return
		}
		log.Warn("webhook confirmation skipped", slog.String("payment_id", dataID), sl.Err(err))
		render.JSON(w, r, map[string]bool{"received": true})
		return
	}

	if res.HasStoreErrors() {
		log.Error("webhook grant incomplete, asking for redelivery", slog.String("payment_id", dataID))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("temporary failure"))
		return
	}

	log.Info("webhook processed", slog.String("payment_id", dataID), slog.Int("items", len(res.Items)))
	render.JSON(w, r, map[string]bool{"received": true})
}

// VerifySignature проверяет заголовок x-signature вида "ts=...,v1=...".
// Подписывается строка "id:<data.id>;request-id:<x-request-id>;ts:<ts>;",
// части без значения пропускаются.
func VerifySignature(secret, header, requestID, dataID string) bool {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Manifest(dataID, requestID, ts)))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

// Manifest строка, которую подписывает Mercado Pago.
func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
