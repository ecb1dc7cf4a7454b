package fulfillment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/curadoria-elite-travel/fulfillment/internal/config"
	"github.com/curadoria-elite-travel/fulfillment/internal/metrics"
	fulfillmentservice "github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
)

type IdentifierMock struct {
	mock.Mock
}

func (m *IdentifierMock) Identify(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func newTestRouter(t *testing.T) (http.Handler, *IdentifierMock) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	cfg := &config.Config{HTTPServer: config.HTTPServer{RateLimit: 100, RateBurst: 100}}
	identifier := new(IdentifierMock)

	r := chi.NewRouter()
	RegisterRoutes(r, log, cfg, Deps{
		Service:    fulfillmentservice.New(nil, nil, nil, nil, nil, "", log),
		Identifier: identifier,
		Metrics:    metrics.New().Handler(),
	})
	return r, identifier
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		headers        map[string]string
		setupMock      func(*IdentifierMock)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "health without checks",
			method:         http.MethodGet,
			path:           "/healthz",
			setupMock:      func(_ *IdentifierMock) {},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"ok"`,
		},
		{
			name:           "metrics",
			method:         http.MethodGet,
			path:           "/metrics",
			setupMock:      func(_ *IdentifierMock) {},
			expectedStatus: http.StatusOK,
			expectedBody:   "go_goroutines",
		},
		{
			name:   "anonymous access check",
			method: http.MethodGet,
			path:           "/api/v1/access?category=City%20Guide&city=Rio",
			setupMock:      func(_ *IdentifierMock) {},
			expectedStatus: http.StatusOK,
			expectedBody:   `"logged":false`,
		},
		{
			name:   "access check with token",
			method: http.MethodGet,
			path:   "/api/v1/access?category=City%20Guide&city=Rio",
			setupMock: func(m *IdentifierMock) {
				m.On("Identify", mock.Anything, "expired").Return("", nil)
			},
			headers:        map[string]string{"Authorization": "Bearer expired"},
			expectedStatus: http.StatusOK,
			expectedBody:   `"logged":false`,
		},
		{
			name:           "admin grant without configured key",
			method:         http.MethodPost,
			path:           "/api/v1/admin/grants",
			body:           `{}`,
			setupMock:      func(_ *IdentifierMock) {},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "CONFIG_ERROR",
		},
		{
			name:           "stripe webhook without secret",
			method:         http.MethodPost,
			path:           "/api/v1/webhooks/stripe",
			body:           `{}`,
			setupMock:      func(_ *IdentifierMock) {},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "CONFIG_ERROR",
		},
		{
			name:           "mercado pago merchant order is acknowledged",
			method:         http.MethodPost,
			path:           "/api/v1/webhooks/mercadopago?topic=merchant_order&id=1",
			setupMock:      func(_ *IdentifierMock) {},
			expectedStatus: http.StatusOK,
			expectedBody:   `"received":true`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, identifier := newTestRouter(t)
			tt.setupMock(identifier)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			identifier.AssertExpectations(t)
		})
	}
}
