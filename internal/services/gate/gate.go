// Package gate проверяет предусловия оформления покупки: пользователь
// аутентифицирован и заполнил профиль для выставления счета.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curadoria-elite-travel/fulfillment/internal/lib/jwt"
	"github.com/curadoria-elite-travel/fulfillment/internal/lib/sl"
)

// State решение проверки.
type State string

const (
	StateReady           State = "ready"
	StateLoginRequired   State = "login_required"
	StateInvoiceRequired State = "invoice_required"
)

// Code возвращает код ответа клиенту для ожидаемых веток.
func (s State) Code() string {
	switch s {
	case StateLoginRequired:
		return "LOGIN_REQUIRED"
	case StateInvoiceRequired:
		return "INVOICE_REQUIRED"
	default:
		return ""
	}
}

var (
	// ErrAuth провайдер идентификации недоступен или не настроен.
	ErrAuth = errors.New("identity provider error")
	// ErrStore не удалось прочитать профиль.
	ErrStore = errors.New("invoice profile store error")
)

// Decision результат проверки. UserID заполнен для Ready и InvoiceRequired.
type Decision struct {
	State  State
	UserID string
}

// Ready сообщает, можно ли продолжать.
func (d Decision) Ready() bool {
	return d.State == StateReady
}

// IdentityProvider превращает bearer-токен в идентификатор пользователя.
// Для отсутствующего или некорректного токена возвращает jwt.ErrInvalidToken.
type IdentityProvider interface {
	ResolveUser(ctx context.Context, token string) (string, error)
}

// InvoiceStore сообщает о наличии профиля для выставления счета.
type InvoiceStore interface {
	HasInvoiceProfile(ctx context.Context, userID string) (bool, error)
}

// Metrics учитывает решения.
type Metrics interface {
	GateDecision(state string)
}

// Gate проверка предусловий.
type Gate struct {
	identity IdentityProvider
	invoices InvoiceStore
	metrics  Metrics
	log      *slog.Logger
}

// New создает Gate. metrics может быть nil.
func New(identity IdentityProvider, invoices InvoiceStore, metrics Metrics, log *slog.Logger) *Gate {
	return &Gate{
		identity: identity,
		invoices: invoices,
		metrics:  metrics,
		log:      log,
	}
}

// Check проверяет токен и профиль. Ожидаемые ветки (нет входа, нет профиля)
// возвращаются решением без ошибки, ошибки только для сбоев инфраструктуры.
func (g *Gate) Check(ctx context.Context, authToken string) (Decision, error) {
	const op = "gate.Check"
	log := g.log.With(slog.String("op", op))

	decision, err := g.check(ctx, log, authToken)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if g.metrics != nil {
		g.metrics.GateDecision(string(decision.State))
	}
	return decision, nil
}

// Identify разрешает токен в пользователя без проверки профиля.
// Пустая строка без ошибки означает, что пользователь не вошел.
func (g *Gate) Identify(ctx context.Context, authToken string) (string, error) {
	const op = "gate.Identify"
	userID, err := g.resolve(ctx, authToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userID, nil
}

func (g *Gate) check(ctx context.Context, log *slog.Logger, authToken string) (Decision, error) {
	userID, err := g.resolve(ctx, authToken)
	if err != nil {
		log.Error("identity provider failed", sl.Err(err))
		return Decision{}, err
	}
	if userID == "" {
		return Decision{State: StateLoginRequired}, nil
	}

	ok, err := g.invoices.HasInvoiceProfile(ctx, userID)
	if err != nil {
		log.Error("failed to check invoice profile", slog.String("user_id", userID), sl.Err(err))
		return Decision{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !ok {
		log.Info("invoice profile missing", slog.String("user_id", userID))
		return Decision{State: StateInvoiceRequired, UserID: userID}, nil
	}
	return Decision{State: StateReady, UserID: userID}, nil
}

func (g *Gate) resolve(ctx context.Context, authToken string) (string, error) {
	authToken = strings.TrimSpace(authToken)
	if authToken == "" {
		return "", nil
	}
	userID, err := g.identity.ResolveUser(ctx, authToken)
	if errors.Is(err, jwt.ErrInvalidToken) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return userID, nil
}
