// Package grant выдает доступ к материалу вручную, без оплаты.
package grant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/curadoria-elite-travel/fulfillment/internal/http/response"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/granter"
)

type Request struct {
	UserID   string `json:"user_id" validate:"required,uuid" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Category string `json:"category" validate:"required" example:"City Guide"`
	City     string `json:"city" validate:"required" example:"New York - USA"`
}

// Service выдает доступ вручную.
type Service interface {
	GrantManual(ctx context.Context, userID string, item models.Item) (models.ItemResult, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выдать доступ вручную
// @Description Выдает пользователю доступ к материалу без оплаты. Требует заголовок X-Admin-Key.
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body Request true "Пользователь и материал"
// @Success 200 {object} response.ItemResult
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Неверный ключ"
// @Failure 404 {object} response.ItemResult "Материал не найден"
// @Failure 500 {object} response.ItemResult "Ошибка хранилища"
// @Router /admin/grants [post]
// @Security AdminKey
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"
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

	res, err := h.service.GrantManual(r.Context(), req.UserID, models.Item{Category: req.Category, City: req.City})
	if err != nil {
		log.Error("manual grant failed", sl.Err(err))
		switch {
		case errors.Is(err, fulfillment.ErrEmptyInput),
			errors.Is(err, granter.ErrEmptyUser),
			errors.Is(err, granter.ErrInvalidUser):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	switch res.Outcome {
	case models.OutcomeMaterialNotFound:
		w.WriteHeader(http.StatusNotFound)
	case models.OutcomeStoreError:
		w.WriteHeader(http.StatusInternalServerError)
	}
	log.Info("manual grant processed", slog.String("user_id", req.UserID), slog.String("outcome", string(res.Outcome)))
	render.JSON(w, r, response.Item(res))
}
