package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

type StoreMock struct{ mock.Mock }

func (m *StoreMock) ListActiveByCategory(ctx context.Context, pattern string, limit int) ([]models.Material, error) {
	args := m.Called(ctx, pattern, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Material), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var catalog = []models.Material{
	{ID: 3, Category: "City Guide", CityLabel: "Paris - France", PDFURL: "https://x/paris.pdf", IsActive: true},
	{ID: 1, Category: "City Guide", CityLabel: "New York - USA", PDFURL: "https://x/ny.pdf", IsActive: true},
	{ID: 2, Category: "City Guide", CityLabel: "São Paulo", PDFURL: "", IsActive: true},
	{ID: 4, Category: "City Guide", CityLabel: "Sao Paulo", PDFURL: "https://x/sp.pdf", IsActive: true},
}

// scanCatalog каталог, категории которого не совпадают с запросом под ILIKE.
var scanCatalog = []models.Material{
	{ID: 21, Category: "Gastronômia", CityLabel: "São Paulo", PDFURL: "https://x/gastro-sp.pdf", IsActive: true},
	{ID: 22, Category: "City Guide", CityLabel: "Rio – RJ", PDFURL: "https://x/rio.pdf", IsActive: true},
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		category   string
		city       string
		setupMocks func(s *StoreMock)
		wantID     int64
		wantErr    error
	}{
		{
			name:     "dash variant matches",
			category: "City Guide",
			city:     "New York – USA",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return(catalog, nil).Once()
			},
			wantID: 1,
		},
		{
			name:     "casing and accents tolerated",
			category: "city guide",
			city:     "SÃO  PAULO",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "city guide", 500).Return(catalog, nil).Once()
			},
			wantID: 4,
		},
		{
			name:     "falls back to substring when exact is empty",
			category: "City Guide",
			city:     "Paris – France",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%City Guide%", 1000).Return([]models.Material{
					{ID: 8, Category: "City Guide ", CityLabel: "Paris  -  France", PDFURL: "https://x/paris.pdf", IsActive: true},
				}, nil).Once()
			},
			wantID: 8,
		},
		{
			name:     "no partial city match",
			category: "City Guide",
			city:     "New York",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return(catalog, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%", 2000).Return(catalog, nil).Once()
			},
			wantErr: ErrMaterialNotFound,
		},
		{
			name:     "like metacharacters escaped",
			category: "50%_off",
			city:     "Paris",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, `50\%\_off`, 500).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, `%50\%\_off%`, 1000).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%", 2000).Return([]models.Material{}, nil).Once()
			},
			wantErr: ErrMaterialNotFound,
		},
		{
			name:     "accented catalog category found by scan",
			category: "Gastronomia",
			city:     "Sao Paulo",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "Gastronomia", 500).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%Gastronomia%", 1000).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%", 2000).Return(scanCatalog, nil).Once()
			},
			wantID: 21,
		},
		{
			name:     "doubled space in category found by scan",
			category: "City  Guide",
			city:     "Rio - RJ",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "City  Guide", 500).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%City  Guide%", 1000).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%", 2000).Return(scanCatalog, nil).Once()
			},
			wantID: 22,
		},
		{
			name:     "scan failure is a store error",
			category: "Gastronomia",
			city:     "Sao Paulo",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "Gastronomia", 500).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%Gastronomia%", 1000).Return([]models.Material{}, nil).Once()
				s.On("ListActiveByCategory", mock.Anything, "%", 2000).Return(nil, errors.New("timeout")).Once()
			},
			wantErr: ErrStore,
		},
		{
			name:     "store error is not a not found",
			category: "City Guide",
			city:     "Paris",
			setupMocks: func(s *StoreMock) {
				s.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return(nil, errors.New("connection refused")).Once()
			},
			wantErr: ErrStore,
		},
		{
			name:       "empty city",
			category:   "City Guide",
			city:       "   ",
			setupMocks: func(_ *StoreMock) {},
			wantErr:    ErrEmptyInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(StoreMock)
			tt.setupMocks(store)
			r := New(store, nil, newNoopLogger(), Options{})

			got, err := r.Resolve(context.Background(), tt.category, tt.city)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, got.ID)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestResolver_NotFoundCarriesKeys(t *testing.T) {
	store := new(StoreMock)
	store.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return(catalog, nil)
	store.On("ListActiveByCategory", mock.Anything, "%", 2000).Return(catalog, nil)
	r := New(store, nil, newNoopLogger(), Options{})

	_, err := r.Resolve(context.Background(), "City Guide", "Lisboa — Portugal")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "city guide", nf.CategoryKey)
	assert.Equal(t, "lisboa - portugal", nf.CityKey)
	assert.Contains(t, nf.Error(), "lisboa - portugal")
}

func TestResolver_Deterministic(t *testing.T) {
	pool := []models.Material{
		{ID: 9, Category: "City Guide", CityLabel: "New York – USA", PDFURL: "https://x/newer.pdf", IsActive: true},
		{ID: 1, Category: "City Guide", CityLabel: "New York - USA", PDFURL: "https://x/older.pdf", IsActive: true},
	}
	store := new(StoreMock)
	store.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return(pool, nil)
	r := New(store, nil, newNoopLogger(), Options{})

	first, err := r.Resolve(context.Background(), "City Guide", "New York - USA")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "City Guide", "New York - USA")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "https://x/newer.pdf", first.PDFURL)
}

func TestResolver_UsesCache(t *testing.T) {
	store := new(StoreMock)
	cache := new(CacheMock)

	cache.On("Get", mock.Anything, "materials:exact:city guide", mock.Anything).
		Run(func(args mock.Arguments) {
			out := args.Get(2).(*[]models.Material)
			*out = catalog
		}).
		Return(true, nil).Once()

	r := New(store, cache, newNoopLogger(), Options{CacheTTL: time.Minute})
	got, err := r.Resolve(context.Background(), "City Guide", "New York - USA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	store.AssertNotCalled(t, "ListActiveByCategory", mock.Anything, mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestResolver_CacheFailureIgnored(t *testing.T) {
	store := new(StoreMock)
	cache := new(CacheMock)

	cache.On("Get", mock.Anything, "materials:exact:city guide", mock.Anything).Return(false, errors.New("redis down")).Once()
	store.On("ListActiveByCategory", mock.Anything, "City Guide", 500).Return(catalog, nil).Once()
	cache.On("Set", mock.Anything, "materials:exact:city guide", catalog, time.Minute).Return(errors.New("redis down")).Once()

	r := New(store, cache, newNoopLogger(), Options{CacheTTL: time.Minute})
	got, err := r.Resolve(context.Background(), "City Guide", "Paris – France")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)

	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestResolver_ScanPoolCached(t *testing.T) {
	store := new(StoreMock)
	cache := new(CacheMock)

	cache.On("Get", mock.Anything, "materials:exact:gastronomia", mock.Anything).Return(false, nil).Once()
	store.On("ListActiveByCategory", mock.Anything, "Gastronomia", 500).Return([]models.Material{}, nil).Once()
	cache.On("Get", mock.Anything, "materials:fallback:gastronomia", mock.Anything).Return(false, nil).Once()
	store.On("ListActiveByCategory", mock.Anything, "%Gastronomia%", 1000).Return([]models.Material{}, nil).Once()
	cache.On("Get", mock.Anything, "materials:scan", mock.Anything).Return(false, nil).Once()
	store.On("ListActiveByCategory", mock.Anything, "%", 2000).Return(scanCatalog, nil).Once()
	cache.On("Set", mock.Anything, "materials:scan", scanCatalog, time.Minute).Return(nil).Once()

	r := New(store, cache, newNoopLogger(), Options{CacheTTL: time.Minute})
	got, err := r.Resolve(context.Background(), "Gastronomia", "São Paulo")
	require.NoError(t, err)
	assert.Equal(t, int64(21), got.ID)

	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}
