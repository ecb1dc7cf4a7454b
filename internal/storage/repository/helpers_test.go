package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/curadoria-elite-travel/fulfillment/internal/migrations"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateMaterial создает материал каталога и возвращает его id
func (f *TestDataFactory) CreateMaterial(t *testing.T, category, city, pdfURL string, active bool, updatedAt time.Time) int64 {
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO curadoria_materials
		(category, city_label, pdf_url, is_active, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5) RETURNING id`,
		category, city, pdfURL, active, updatedAt).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateInvoiceProfile создает профиль для выставления счета
func (f *TestDataFactory) CreateInvoiceProfile(t *testing.T, userID string) {
	_, err := f.storage.DB.Exec(`INSERT INTO invoice_profiles (user_id, full_name, tax_id)
		VALUES ($1, 'Test User', '000.000.000-00')`, userID)
	require.NoError(t, err)
}

// CountPurchases возвращает число строк покупок для пары пользователь/позиция
func (f *TestDataFactory) CountPurchases(t *testing.T, userID, category, city string) int {
	var n int
	err := f.storage.DB.QueryRow(`SELECT COUNT(*) FROM purchase
		WHERE user_id = $1 AND category = $2 AND city = $3`, userID, category, city).Scan(&n)
	require.NoError(t, err)
	return n
}

func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(ctx, dsn)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		if storage != nil && storage.DB != nil {
			_ = storage.DB.Close()
		}
		if postgresContainer != nil {
			_ = postgresContainer.Terminate(ctx)
		}
	}

	return storage, cleanup
}
