package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/payments"
	"github.com/bookable/api/internal/repositories"
)

const transactionIDPrefix = "txn_"

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutNotFound indicates the order does not exist or is not visible to
// the caller.
var ErrCheckoutNotFound = errors.New("checkout service: not found")

// ErrCheckoutInvalidState indicates the order is not payable, either because
// it left the pending status or payment already settled.
var ErrCheckoutInvalidState = errors.New("checkout service: order is not payable")

// ErrCheckoutGatewayUnavailable indicates the payment gateway could not be reached.
var ErrCheckoutGatewayUnavailable = errors.New("checkout service: gateway unavailable")

// ErrCheckoutUnavailable indicates the checkout backend cannot fulfil the request.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

var (
	errCheckoutOrdersRequired   = errors.New("checkout service: orders repository is required")
	errCheckoutSessionsRequired = errors.New("checkout service: sessions repository is required")
	errCheckoutGatewayRequired  = errors.New("checkout service: gateway is required")
	errCheckoutClockRequired    = errors.New("checkout service: clock is required")
)

type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, preferred string, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires order persistence and the PSP manager for session
// creation.
type CheckoutServiceDeps struct {
	Orders     repositories.OrderRepository
	Sessions   repositories.PaymentSessionRepository
	Gateway    checkoutGateway
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
	Currency   string
	SuccessURL string
	CancelURL  string
}

type checkoutService struct {
	orders     repositories.OrderRepository
	sessions   repositories.PaymentSessionRepository
	gateway    checkoutGateway
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
	currency   string
	successURL string
	cancelURL  string
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Sessions == nil {
		return nil, errCheckoutSessionsRequired
	}
	if deps.Gateway == nil {
		return nil, errCheckoutGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}

	return &checkoutService{
		orders:     deps.Orders,
		sessions:   deps.Sessions,
		gateway:    deps.Gateway,
		now:        func() time.Time { return deps.Clock().UTC() },
		logger:     logger,
		currency:   currency,
		successURL: deps.SuccessURL,
		cancelURL:  deps.CancelURL,
	}, nil
}

// TransactionIDForOrder derives the reconciliation key handed to the gateway.
// The mapping is deterministic so retried checkouts reuse the same key and a
// callback always resolves to exactly one order.
func TransactionIDForOrder(orderID string) string {
	return transactionIDPrefix + orderID
}

// OrderIDFromTransaction reverses TransactionIDForOrder.
func OrderIDFromTransaction(transactionID string) (string, bool) {
	rest, ok := strings.CutPrefix(transactionID, transactionIDPrefix)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// CreateSession opens a gateway checkout session for a pending unpaid order.
// The charged amount always comes from the stored order total, never from the
// caller.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error) {
	if s == nil || s.orders == nil {
		return CheckoutSessionResult{}, ErrCheckoutUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	uid := strings.TrimSpace(cmd.UserID)
	if orderID == "" || uid == "" {
		return CheckoutSessionResult{}, ErrCheckoutInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CheckoutSessionResult{}, s.translateRepoError(err)
	}
	if order.UserID != uid {
		return CheckoutSessionResult{}, ErrCheckoutNotFound
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusUnpaid {
		return CheckoutSessionResult{}, fmt.Errorf("%w: status %s payment %s",
			ErrCheckoutInvalidState, order.Status, order.PaymentStatus)
	}
	if order.TotalAmount <= 0 {
		return CheckoutSessionResult{}, fmt.Errorf("%w: order has no chargeable amount", ErrCheckoutInvalidState)
	}

	txnID := TransactionIDForOrder(order.ID)
	req := payments.CheckoutSessionRequest{
		TransactionID:  txnID,
		Amount:         order.TotalAmount,
		Currency:       s.currency,
		SuccessURL:     callbackURLForTransaction(s.successURL, txnID),
		CancelURL:      callbackURLForTransaction(s.cancelURL, txnID),
		IdempotencyKey: txnID,
		Metadata: map[string]string{
			"order_id": order.ID,
			"user_id":  order.UserID,
		},
		Items: checkoutLineItems(order, s.currency),
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, cmd.Provider, req)
	if err != nil {
		if errors.Is(err, payments.ErrGatewayUnavailable) {
			return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutGatewayUnavailable, err)
		}
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return CheckoutSessionResult{}, fmt.Errorf("%w: provider %q", ErrCheckoutInvalidInput, cmd.Provider)
		}
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	record := domain.PaymentSession{
		TransactionID: txnID,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Provider:      session.Provider,
		Amount:        order.TotalAmount,
		RedirectURL:   session.RedirectURL,
		Payload:       session.Raw,
		CreatedAt:     s.now(),
	}
	if err := s.sessions.Save(ctx, record); err != nil {
		return CheckoutSessionResult{}, s.translateRepoError(err)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":       order.ID,
		"transactionId": txnID,
		"provider":      session.Provider,
		"amount":        order.TotalAmount,
	})
	return CheckoutSessionResult{
		TransactionID: txnID,
		SessionID:     session.ID,
		Provider:      session.Provider,
		RedirectURL:   session.RedirectURL,
		ClientSecret:  session.ClientSecret,
		Amount:        order.TotalAmount,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

// callbackURLForTransaction carries the transaction ID on the gateway's
// redirect back so the callback endpoint can correlate it with an order even
// when the gateway sends a bare GET.
func callbackURLForTransaction(base, transactionID string) string {
	if base == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("transactionId", transactionID)
	u.RawQuery = q.Encode()
	return u.String()
}

func checkoutLineItems(order domain.Order, currency string) []payments.CheckoutLineItem {
	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		sku := ""
		if item.ServiceRef != nil {
			sku = *item.ServiceRef
		}
		items = append(items, payments.CheckoutLineItem{
			Name:     item.Title,
			SKU:      sku,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
			Currency: currency,
		})
	}
	return items
}

func (s *checkoutService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrCheckoutNotFound
	}
	return ErrCheckoutUnavailable
}
