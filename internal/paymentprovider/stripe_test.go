package paymentprovider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"github.com/curadoria-elite-travel/fulfillment/internal/config"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type SessionAPIMock struct {
	mock.Mock
}

func (m *SessionAPIMock) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	args := m.Called(params)
	sess, _ := args.Get(0).(*stripe.CheckoutSession)
	return sess, args.Error(1)
}

func (m *SessionAPIMock) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	args := m.Called(id, params)
	sess, _ := args.Get(0).(*stripe.CheckoutSession)
	return sess, args.Error(1)
}

type MetricsMock struct {
	mock.Mock
}

func (m *MetricsMock) ObserveProvider(provider, operation string, started time.Time) {
	m.Called(provider, operation, started)
}

var (
	testStripeConfig = config.Stripe{
		SecretKey:        "sk_test",
		PriceID:          "price_default",
		CityGuidePriceID: "price_city_guide",
	}
	testCheckoutConfig = config.Checkout{
		SuccessPath: "/checkout-success.html",
		CancelPath:  "/",
	}
)

func TestStripe_Confirm(t *testing.T) {
	paidMeta := map[string]string{
		"user_id":  "user-1",
		"category": "City Guide",
		"city":     "New York - USA",
	}

	tests := []struct {
		name       string
		session    *stripe.CheckoutSession
		getErr     error
		wantErr    error
		wantStatus string
		wantOwner  string
		wantItems  []models.Item
	}{
		{
			name: "paid session",
			session: &stripe.CheckoutSession{
				ID: "cs_1", Status: stripe.CheckoutSessionStatusComplete,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid, Metadata: paidMeta,
			},
			wantOwner: "user-1",
			wantItems: []models.Item{{Category: "City Guide", City: "New York - USA"}},
		},
		{
			name: "complete without payment required",
			session: &stripe.CheckoutSession{
				ID: "cs_2", Status: stripe.CheckoutSessionStatusComplete,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusNoPaymentRequired, Metadata: paidMeta,
			},
			wantOwner: "user-1",
			wantItems: []models.Item{{Category: "City Guide", City: "New York - USA"}},
		},
		{
			name: "complete but unpaid is not confirmed",
			session: &stripe.CheckoutSession{
				ID: "cs_3", Status: stripe.CheckoutSessionStatusComplete,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid, Metadata: paidMeta,
			},
			wantErr:    ErrPaymentNotConfirmed,
			wantStatus: "unpaid",
		},
		{
			name: "open session is not confirmed",
			session: &stripe.CheckoutSession{
				ID: "cs_4", Status: stripe.CheckoutSessionStatusOpen,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
			},
			wantErr:    ErrPaymentNotConfirmed,
			wantStatus: "unpaid",
		},
		{
			name: "paid without items",
			session: &stripe.CheckoutSession{
				ID: "cs_5", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				Metadata: map[string]string{"user_id": "user-1"},
			},
			wantErr: ErrMetadataMissing,
		},
		{
			name: "owner from client reference id",
			session: &stripe.CheckoutSession{
				ID: "cs_6", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				ClientReferenceID: "user-2",
				Metadata:          map[string]string{"category": "Bares", "city": "Rio"},
			},
			wantOwner: "user-2",
			wantItems: []models.Item{{Category: "Bares", City: "Rio"}},
		},
		{
			name:    "unknown session",
			getErr:  &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing, Msg: "No such checkout.session"},
			wantErr: ErrNotFound,
		},
		{
			name:    "provider outage",
			getErr:  &stripe.Error{HTTPStatusCode: http.StatusInternalServerError, Msg: "boom"},
			wantErr: ErrProvider,
		},
		{
			name:    "network failure",
			getErr:  errors.New("dial tcp: timeout"),
			wantErr: ErrProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(SessionAPIMock)
			api.On("Get", "cs_ref", mock.MatchedBy(func(p *stripe.CheckoutSessionParams) bool {
				return p.Context != nil
			})).Return(tt.session, tt.getErr)

			metrics := new(MetricsMock)
			metrics.On("ObserveProvider", ProviderStripe, "confirm", mock.AnythingOfType("time.Time")).Return()

			s := newStripe(api, testStripeConfig, testCheckoutConfig, newNoopLogger(), metrics)
			conf, err := s.Confirm(context.Background(), " cs_ref ")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, conf)
				if tt.wantStatus != "" {
					var nc *NotConfirmedError
					require.ErrorAs(t, err, &nc)
					assert.Equal(t, tt.wantStatus, nc.Status)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.PaymentPaid, conf.Status)
				assert.Equal(t, ProviderStripe, conf.Provider)
				assert.Equal(t, tt.wantOwner, conf.OwnerClaim)
				assert.Equal(t, tt.wantItems, conf.Items)
			}
			api.AssertExpectations(t)
			metrics.AssertExpectations(t)
		})
	}
}

func TestStripe_Confirm_ProviderErrorCarriesStatus(t *testing.T) {
	api := new(SessionAPIMock)
	api.On("Get", "cs_x", mock.Anything).Return(nil, &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests, Msg: "rate limited"})

	s := newStripe(api, testStripeConfig, testCheckoutConfig, newNoopLogger(), nil)
	_, err := s.Confirm(context.Background(), "cs_x")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, ProviderStripe, pe.Provider)
}

func TestStripe_NotConfigured(t *testing.T) {
	s := NewStripe(config.Stripe{}, testCheckoutConfig, newNoopLogger(), nil)

	_, err := s.Confirm(context.Background(), "cs_1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = s.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripe_Confirm_EmptyReference(t *testing.T) {
	s := newStripe(new(SessionAPIMock), testStripeConfig, testCheckoutConfig, newNoopLogger(), nil)
	_, err := s.Confirm(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestStripe_CreateCheckout(t *testing.T) {
	api := new(SessionAPIMock)
	var captured *stripe.CheckoutSessionParams
	api.On("New", mock.AnythingOfType("*stripe.CheckoutSessionParams")).
		Run(func(args mock.Arguments) {
			captured = args.Get(0).(*stripe.CheckoutSessionParams)
		}).
		Return(&stripe.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.com/c/pay/cs_new"}, nil)

	s := newStripe(api, testStripeConfig, testCheckoutConfig, newNoopLogger(), nil)
	items := []models.Item{
		{Category: "city guide", City: "Paris - França"},
		{Category: "Restaurantes", City: "Roma - Itália"},
	}
	meta, err := EncodeMetadata("user-1", items, "curadoria-elite-travel")
	require.NoError(t, err)
	sess, err := s.CreateCheckout(context.Background(), CheckoutRequest{
		UserID:   "user-1",
		Items:    items,
		Origin:   "https://curadoria.example",
		Metadata: meta,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_new", sess.URL)

	require.NotNil(t, captured)
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *captured.Mode)
	require.Len(t, captured.LineItems, 2)
	assert.Equal(t, "price_city_guide", *captured.LineItems[0].Price)
	assert.Equal(t, "price_default", *captured.LineItems[1].Price)
	assert.Equal(t, int64(1), *captured.LineItems[0].Quantity)
	assert.Equal(t, "user-1", *captured.ClientReferenceID)
	assert.Equal(t, "user-1", captured.Metadata["user_id"])
	assert.NotEmpty(t, captured.Metadata["items"])
	assert.NotNil(t, captured.Context)

	success := *captured.SuccessURL
	assert.True(t, strings.HasPrefix(success, "https://curadoria.example/checkout-success.html?"))
	assert.True(t, strings.HasSuffix(success, "&reference={CHECKOUT_SESSION_ID}"))
	assert.Contains(t, success, "provider=stripe")
	assert.NotContains(t, success, "category=")
	assert.Equal(t, "https://curadoria.example/?checkout=cancel", *captured.CancelURL)
	api.AssertExpectations(t)
}

func TestStripe_CreateCheckout_SingleItemSuccessURL(t *testing.T) {
	api := new(SessionAPIMock)
	api.On("New", mock.Anything).Return(&stripe.CheckoutSession{ID: "cs", URL: "u"}, nil)

	s := newStripe(api, testStripeConfig, testCheckoutConfig, newNoopLogger(), nil)
	_, err := s.CreateCheckout(context.Background(), CheckoutRequest{
		UserID: "user-1",
		Items:  []models.Item{{Category: "Bares", City: "Rio de Janeiro"}},
		Origin: "https://curadoria.example",
	})
	require.NoError(t, err)

	params := api.Calls[0].Arguments.Get(0).(*stripe.CheckoutSessionParams)
	assert.Contains(t, *params.SuccessURL, "category=Bares")
	assert.Contains(t, *params.SuccessURL, "city=Rio+de+Janeiro")
}

func TestStripe_CreateCheckout_MissingPrices(t *testing.T) {
	cfg := testStripeConfig
	cfg.CityGuidePriceID = ""
	s := newStripe(new(SessionAPIMock), cfg, testCheckoutConfig, newNoopLogger(), nil)

	_, err := s.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripe_CreateCheckout_ProviderFailure(t *testing.T) {
	api := new(SessionAPIMock)
	api.On("New", mock.Anything).Return(nil, &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "No such price"})

	s := newStripe(api, testStripeConfig, testCheckoutConfig, newNoopLogger(), nil)
	_, err := s.CreateCheckout(context.Background(), CheckoutRequest{
		UserID: "u",
		Items:  []models.Item{{Category: "A", City: "B"}},
	})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
}
