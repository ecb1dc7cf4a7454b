package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curadoria-elite-travel/fulfillment/internal/config"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/textkey"
	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

// MercadoPago адаптер REST API Mercado Pago.
type MercadoPago struct {
	cfg        config.MercadoPago
	checkout   config.Checkout
	env        string
	httpClient *http.Client
	log        *slog.Logger
	metrics    Metrics
	now        func() time.Time
}

// NewMercadoPago создаёт клиент Mercado Pago.
func NewMercadoPago(cfg config.MercadoPago, checkout config.Checkout, env string, log *slog.Logger, metrics Metrics) *MercadoPago {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MercadoPago{
		cfg:        cfg,
		checkout:   checkout,
		env:        env,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		metrics:    metrics,
		now:        time.Now,
	}
}

func (m *MercadoPago) Name() string { return ProviderMercadoPago }

func (m *MercadoPago) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, m.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do выполняет запрос и декодирует успешный ответ в out.
// Ответы вне 2xx превращаются в ProviderError, 404 в ErrNotFound.
func (m *MercadoPago) do(req *http.Request, out interface{}) error {
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: ProviderMercadoPago, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{
			Provider:   ProviderMercadoPago,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body, resp.Status),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: ProviderMercadoPago, StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func readErrorMessage(r io.Reader, fallback string) string {
	var e mpErrorResponse
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return fallback
}

// Confirm запрашивает платёж по id и проверяет, что он одобрен.
func (m *MercadoPago) Confirm(ctx context.Context, reference string) (*models.Confirmation, error) {
	const op = "paymentprovider.MercadoPago.Confirm"
	log := m.log.With(slog.String("op", op), slog.String("reference", reference))

	if m.cfg.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyReference)
	}

	req, err := m.newRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var payment mpPayment
	started := time.Now()
	err = m.do(req, &payment)
	m.metrics.ObserveProvider(ProviderMercadoPago, "confirm", started)
	if err != nil {
		log.Error("failed to fetch payment", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	meta := flattenMetadata(payment.Metadata)
	status := mpStatus(payment.Status)
	if status != models.PaymentPaid {
		log.Info("payment not approved", slog.String("status", payment.Status), slog.String("status_detail", payment.StatusDetail))
		return nil, fmt.Errorf("%s: %w", op, &NotConfirmedError{Provider: ProviderMercadoPago, Status: payment.Status})
	}

	items, err := ParseItems(meta)
	if err != nil {
		log.Warn("approved payment without items in metadata")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.Confirmation{
		Provider:   ProviderMercadoPago,
		Reference:  strconv.FormatInt(payment.ID, 10),
		Status:     status,
		RawStatus:  payment.Status,
		OwnerClaim: OwnerClaim(meta),
		Items:      items,
	}, nil
}

// CreateCheckout создаёт предпочтение оплаты и возвращает ссылку на оплату.
// В песочнице используется sandbox_init_point.
func (m *MercadoPago) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	const op = "paymentprovider.MercadoPago.CreateCheckout"
	log := m.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if m.cfg.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	items := make([]mpPreferenceItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, mpPreferenceItem{
			Title:      it.City + " — " + it.Category,
			Quantity:   1,
			UnitPrice:  m.priceFor(it.Category),
			CurrencyID: m.cfg.CurrencyID,
		})
	}

	meta := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[MetaEnv] = m.env

	back := req.Origin + m.checkout.SuccessPath + "?provider=" + ProviderMercadoPago + "&mp="
	body := mpPreferenceRequest{
		Items: items,
		BackURLs: mpBackURLs{
			Success: back + "success",
			Pending: back + "pending",
			Failure: back + "failure",
		},
		AutoReturn:        "approved",
		ExternalReference: fmt.Sprintf("cet_%s_%d", req.UserID, m.now().UnixMilli()),
		Metadata:          meta,
	}

	httpReq, err := m.newRequest(ctx, http.MethodPost, "/checkout/preferences", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("X-Idempotency-Key", uuid.NewString())

	var pref mpPreferenceResponse
	started := time.Now()
	err = m.do(httpReq, &pref)
	m.metrics.ObserveProvider(ProviderMercadoPago, "checkout", started)
	if err != nil {
		log.Error("failed to create preference", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link := pref.InitPoint
	if m.cfg.Sandbox && pref.SandboxInitPoint != "" {
		link = pref.SandboxInitPoint
	}
	if link == "" {
		return nil, fmt.Errorf("%s: %w", op, &ProviderError{Provider: ProviderMercadoPago, Message: "preference has no init point"})
	}

	log.Info("preference created", slog.String("preference_id", pref.ID), slog.Int("items", len(req.Items)))
	return &CheckoutSession{ID: pref.ID, URL: link}, nil
}

func (m *MercadoPago) priceFor(category string) float64 {
	if textkey.Normalize(category) == cityGuideCategory {
		return m.cfg.CityGuideUnitPrice
	}
	return m.cfg.UnitPrice
}

func mpStatus(status string) models.PaymentStatus {
	switch status {
	case "approved":
		return models.PaymentPaid
	case "pending", "in_process", "authorized", "in_mediation":
		return models.PaymentPending
	case "rejected", "cancelled", "refunded", "charged_back":
		return models.PaymentFailed
	default:
		return models.PaymentUnknown
	}
}

// flattenMetadata приводит значения метаданных к строкам.
// Нестроковые значения сериализуются обратно в JSON.
func flattenMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			if raw, err := json.Marshal(val); err == nil {
				out[k] = string(raw)
			}
		}
	}
	return out
}
