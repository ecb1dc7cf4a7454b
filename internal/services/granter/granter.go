// Package granter выдает доступ к материалам: для каждой позиции корзины
// гарантирует ровно одну запись в реестре покупок.
package granter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/resolver"
)

var (
	// ErrEmptyUser не указан владелец.
	ErrEmptyUser = errors.New("user id is required")
	// ErrInvalidUser идентификатор владельца не UUID. Колонка purchases.user_id
	// имеет тип UUID, поэтому такой вызов отклоняется до обращения к базе.
	ErrInvalidUser = errors.New("user id is not a valid uuid")
	// ErrNoItems пустой список позиций.
	ErrNoItems = errors.New("no items to grant")
)

// Resolver находит материал по паре категория/город.
type Resolver interface {
	Resolve(ctx context.Context, category, city string) (*models.Material, error)
}

// PurchaseStore реестр покупок.
type PurchaseStore interface {
	FindPurchase(ctx context.Context, userID, category, city string) (*models.Purchase, bool, error)
	InsertPurchase(ctx context.Context, p models.Purchase) (bool, error)
}

// Publisher отправляет событие о новой выдаче.
type Publisher interface {
	PublishGrant(ctx context.Context, event models.GrantEvent) error
}

// Metrics учитывает итоги выдачи.
type Metrics interface {
	GrantOutcome(outcome string)
}

// Granter выдает доступ по позициям независимо друг от друга.
type Granter struct {
	resolver  Resolver
	store     PurchaseStore
	publisher Publisher
	metrics   Metrics
	log       *slog.Logger
	now       func() time.Time
}

// New создает Granter. publisher и metrics могут быть nil.
func New(resolver Resolver, store PurchaseStore, publisher Publisher, metrics Metrics, log *slog.Logger) *Granter {
	return &Granter{
		resolver:  resolver,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// Grant выдает доступ к каждой позиции. Ошибка возвращается только для
// некорректного вызова (пустой или не-UUID userID, так как purchases.user_id
// хранится в колонке типа UUID; пустой список позиций). Сбои по отдельным
// позициям попадают в результаты, и остальные позиции обрабатываются дальше.
func (g *Granter) Grant(ctx context.Context, userID string, items []models.Item, provenance string) ([]models.ItemResult, error) {
	const op = "granter.Grant"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyUser)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidUser)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoItems)
	}

	log := g.log.With(
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("provenance", provenance),
	)

	results := make([]models.ItemResult, 0, len(items))
	for _, item := range items {
		res := g.grantOne(ctx, log, userID, item, provenance)
		if g.metrics != nil {
			g.metrics.GrantOutcome(string(res.Outcome))
		}
		results = append(results, res)
	}
	return results, nil
}

func (g *Granter) grantOne(ctx context.Context, log *slog.Logger, userID string, item models.Item, provenance string) models.ItemResult {
	log = log.With(sl.Item(item.Category, item.City))
	res := models.ItemResult{Item: item}

	material, err := g.resolver.Resolve(ctx, item.Category, item.City)
	if err != nil {
		if errors.Is(err, resolver.ErrMaterialNotFound) || errors.Is(err, resolver.ErrEmptyInput) {
			log.Warn("material not found", sl.Err(err))
			res.Outcome = models.OutcomeMaterialNotFound
		} else {
			log.Error("failed to resolve material", sl.Err(err))
			res.Outcome = models.OutcomeStoreError
		}
		res.Err = err
		return res
	}

	existing, ok, err := g.store.FindPurchase(ctx, userID, item.Category, item.City)
	if err != nil {
		log.Error("failed to look up purchase", sl.Err(err))
		res.Outcome = models.OutcomeStoreError
		res.Err = err
		return res
	}
	if ok {
		log.Debug("already owned")
		res.Outcome = models.OutcomeAlreadyOwned
		res.PDFURL = existing.PDFURL
		return res
	}

	purchase := models.Purchase{
		ID:                uuid.NewString(),
		UserID:            userID,
		Category:          item.Category,
		City:              item.City,
		PDFURL:            material.PDFURL,
		ProviderReference: provenance,
	}
	inserted, err := g.store.InsertPurchase(ctx, purchase)
	if err != nil {
		log.Error("failed to insert purchase", sl.Err(err))
		res.Outcome = models.OutcomeStoreError
		res.Err = err
		return res
	}
	if !inserted {
		// Параллельная выдача успела раньше.
		log.Info("concurrent grant detected, treating as already owned")
		res.Outcome = models.OutcomeAlreadyOwned
		res.PDFURL = material.PDFURL
		if winner, ok, err := g.store.FindPurchase(ctx, userID, item.Category, item.City); err == nil && ok {
			res.PDFURL = winner.PDFURL
		}
		return res
	}

	log.Info("access granted", slog.String("purchase_id", purchase.ID))
	res.Outcome = models.OutcomeGranted
	res.PDFURL = material.PDFURL
	g.publish(ctx, log, purchase)
	return res
}

func (g *Granter) publish(ctx context.Context, log *slog.Logger, p models.Purchase) {
	if g.publisher == nil {
		return
	}
	event := models.GrantEvent{
		ID:         uuid.NewString(),
		UserID:     p.UserID,
		Category:   p.Category,
		City:       p.City,
		PDFURL:     p.PDFURL,
		Provenance: p.ProviderReference,
		GrantedAt:  g.now().UTC(),
	}
	if err := g.publisher.PublishGrant(ctx, event); err != nil {
		log.Warn("failed to publish grant event", sl.Err(err))
	}
}
