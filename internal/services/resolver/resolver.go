// Package resolver находит активный материал каталога по паре категория/город,
// допуская расхождения в диакритике, тире и регистре между тем, что видел
// покупатель, и тем, что позже сохранил куратор.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/textkey"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

var (
	// ErrEmptyInput категория или город не переданы.
	ErrEmptyInput = errors.New("category and city are required")
	// ErrMaterialNotFound в каталоге нет подходящего активного материала.
	ErrMaterialNotFound = errors.New("material not found")
	// ErrStore каталог недоступен.
	ErrStore = errors.New("catalog store error")
)

// NotFoundError содержит нормализованные ключи, по которым шёл поиск.
type NotFoundError struct {
	Category    string
	City        string
	CategoryKey string
	CityKey     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("material not found for %q / %q (keys %q / %q)",
		e.Category, e.City, e.CategoryKey, e.CityKey)
}

func (e *NotFoundError) Unwrap() error {
	return ErrMaterialNotFound
}

// MaterialStore источник кандидатов. Порядок строк должен быть детерминирован.
type MaterialStore interface {
	ListActiveByCategory(ctx context.Context, pattern string, limit int) ([]models.Material, error)
}

// Cache кэш пулов кандидатов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Options ограничения размера пулов и время жизни кэша.
// ScanLimit ограничивает просмотр всего активного каталога, когда фильтр
// по категории не нашел совпадения.
type Options struct {
	ExactLimit    int
	FallbackLimit int
	ScanLimit     int
	CacheTTL      time.Duration
}

const (
	defaultExactLimit    = 500
	defaultFallbackLimit = 1000
	defaultScanLimit     = 2000

	phaseExact    = "exact"
	phaseFallback = "fallback"
	phaseScan     = "scan"

	matchAll = "%"
)

// Resolver реализует двухфазный поиск: грубый фильтр по категории в хранилище
// и точное сравнение нормализованных ключей в памяти. Фильтр ILIKE не видит
// расхождений в диакритике и тире, поэтому без совпадения в пуле категории
// просматривается весь активный каталог в пределах ScanLimit.
type Resolver struct {
	store MaterialStore
	cache Cache
	log   *slog.Logger
	opts  Options
}

// New создает Resolver. cache может быть nil.
func New(store MaterialStore, cache Cache, log *slog.Logger, opts Options) *Resolver {
	if opts.ExactLimit <= 0 {
		opts.ExactLimit = defaultExactLimit
	}
	if opts.FallbackLimit <= 0 {
		opts.FallbackLimit = defaultFallbackLimit
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = defaultScanLimit
	}
	return &Resolver{
		store: store,
		cache: cache,
		log:   log,
		opts:  opts,
	}
}

// Resolve возвращает первый активный материал с непустым pdf_url, чьи
// нормализованные категория и город равны нормализованным входным.
func (r *Resolver) Resolve(ctx context.Context, category, city string) (*models.Material, error) {
	const op = "resolver.Resolve"

	category = strings.TrimSpace(category)
	city = strings.TrimSpace(city)
	if category == "" || city == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyInput)
	}

	wantCategory := textkey.Normalize(category)
	wantCity := textkey.Normalize(city)
	log := r.log.With(slog.String("op", op), sl.Item(category, city), sl.Keys(wantCategory, wantCity))

	pool, err := r.pool(ctx, phaseExact, category, escapeLike(category), r.opts.ExactLimit)
	if err != nil {
		log.Error("failed to load candidates", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if len(pool) == 0 {
		log.Debug("exact category filter returned nothing, widening")
		pool, err = r.pool(ctx, phaseFallback, category, "%"+escapeLike(category)+"%", r.opts.FallbackLimit)
		if err != nil {
			log.Error("failed to load fallback candidates", sl.Err(err))
			return nil, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
		}
	}

	if m := match(pool, wantCategory, wantCity); m != nil {
		log.Debug("material resolved", slog.Int64("material_id", m.ID))
		return m, nil
	}

	log.Debug("category filter found no match, scanning catalog", slog.Int("candidates", len(pool)))
	pool, err = r.pool(ctx, phaseScan, "", matchAll, r.opts.ScanLimit)
	if err != nil {
		log.Error("failed to scan catalog", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
	if m := match(pool, wantCategory, wantCity); m != nil {
		log.Info("material resolved by catalog scan", slog.Int64("material_id", m.ID))
		return m, nil
	}

	log.Info("material not found", slog.Int("scanned", len(pool)))
	return nil, &NotFoundError{
		Category:    category,
		City:        city,
		CategoryKey: wantCategory,
		CityKey:     wantCity,
	}
}

func match(pool []models.Material, wantCategory, wantCity string) *models.Material {
	for i := range pool {
		m := pool[i]
		if strings.TrimSpace(m.PDFURL) == "" {
			continue
		}
		if textkey.Normalize(m.Category) == wantCategory && textkey.Normalize(m.CityLabel) == wantCity {
			return &m
		}
	}
	return nil
}

func (r *Resolver) pool(ctx context.Context, phase, category, pattern string, limit int) ([]models.Material, error) {
	key := cacheKey(phase, category)
	if r.cache != nil {
		var cached []models.Material
		found, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			r.log.Warn("failed to read candidates from cache", slog.String("key", key), sl.Err(err))
		} else if found {
			return cached, nil
		}
	}

	pool, err := r.store.ListActiveByCategory(ctx, pattern, limit)
	if err != nil {
		return nil, err
	}

	// Пустые пулы не кэшируются, чтобы новый материал был виден сразу.
	if r.cache != nil && len(pool) > 0 && r.opts.CacheTTL > 0 {
		if err := r.cache.Set(ctx, key, pool, r.opts.CacheTTL); err != nil {
			r.log.Warn("failed to cache candidates", slog.String("key", key), sl.Err(err))
		}
	}
	return pool, nil
}

// cacheKey для фаз с фильтром по категории. Ключ приводится к нижнему
// регистру, как ILIKE: разные по диакритике категории дают разные пулы.
func cacheKey(phase, category string) string {
	if category == "" {
		return "materials:" + phase
	}
	return "materials:" + phase + ":" + strings.ToLower(category)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
