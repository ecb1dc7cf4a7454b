// Package access отвечает, владеет ли пользователь материалом.
package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/middlewarectx"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
)

// Response состояние доступа. PDFURL заполнен только при Has.
type Response struct {
	Logged bool    `json:"logged" example:"true"`
	Has    bool    `json:"has" example:"true"`
	PDFURL *string `json:"pdf_url" example:"https://cdn.example/ny.pdf"`
}

// Service проверяет наличие покупки.
type Service interface {
	HasAccess(ctx context.Context, userID, category, city string) (*models.Purchase, bool, error)
}

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
// @Summary Проверить доступ
// @Description Анонимный запрос получает logged=false без ошибки.
// @Tags Access
// @Produce json
// @Param category query string true "Категория"
// @Param city query string true "Город"
// @Success 200 {object} Response
// @Failure 400 {object} response.ErrorResponse "Не указаны категория или город"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Router /access [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	w.Header().Set("Cache-Control", "no-store")

	userID := middlewarectx.UserIDFrom(r.Context())
	if userID == "" {
		render.JSON(w, r, Response{})
		return
	}

	q := r.URL.Query()
	purchase, has, err := h.service.HasAccess(r.Context(), userID, q.Get("category"), q.Get("city"))
	if errors.Is(err, fulfillment.ErrEmptyInput) {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing category or city"))
		return
	}
	if err != nil {
		log.Error("purchase check failed", slog.String("user_id", userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("purchase check failed"))
		return
	}

	resp := Response{Logged: true, Has: has}
	if has && purchase.PDFURL != "" {
		resp.PDFURL = &purchase.PDFURL
	}
	render.JSON(w, r, resp)
}
