package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/repositories"
)

// ErrPaymentUnknownTransaction indicates the callback's transaction ID does
// not resolve to an existing order.
var ErrPaymentUnknownTransaction = errors.New("payment reconciler: unknown transaction")

// ErrPaymentInvalidTransition indicates the callback outcome conflicts with
// the order's settled state.
var ErrPaymentInvalidTransition = errors.New("payment reconciler: invalid transition")

// ErrPaymentUnavailable indicates the reconciliation backend cannot fulfil
// the request.
var ErrPaymentUnavailable = errors.New("payment reconciler: unavailable")

var (
	errReconcilerOrdersRequired   = errors.New("payment reconciler: orders repository is required")
	errReconcilerSessionsRequired = errors.New("payment reconciler: sessions repository is required")
	errReconcilerUowRequired      = errors.New("payment reconciler: unit of work is required")
	errReconcilerClockRequired    = errors.New("payment reconciler: clock is required")
)

// PaymentReconcilerDeps wires order and session persistence for callback
// reconciliation.
type PaymentReconcilerDeps struct {
	Orders    repositories.OrderRepository
	Sessions  repositories.PaymentSessionRepository
	Uow       repositories.UnitOfWork
	Publisher OrderEventPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type paymentReconciler struct {
	orders    repositories.OrderRepository
	sessions  repositories.PaymentSessionRepository
	uow       repositories.UnitOfWork
	publisher OrderEventPublisher
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewPaymentReconciler constructs a PaymentReconciler enforcing dependency validation.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (PaymentReconciler, error) {
	if deps.Orders == nil {
		return nil, errReconcilerOrdersRequired
	}
	if deps.Sessions == nil {
		return nil, errReconcilerSessionsRequired
	}
	if deps.Uow == nil {
		return nil, errReconcilerUowRequired
	}
	if deps.Clock == nil {
		return nil, errReconcilerClockRequired
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = NoopOrderEventPublisher{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentReconciler{
		orders:    deps.Orders,
		sessions:  deps.Sessions,
		uow:       deps.Uow,
		publisher: publisher,
		now:       func() time.Time { return deps.Clock().UTC() },
		logger:    logger,
	}, nil
}

// OnSuccess marks the order behind the transaction as confirmed and paid.
// Replayed callbacks are no-ops.
func (r *paymentReconciler) OnSuccess(ctx context.Context, transactionID string) (domain.Order, error) {
	return r.reconcile(ctx, transactionID, reconcileOutcome{
		event:         OrderEventPaid,
		logEvent:      "payments.reconcile.success",
		targetStatus:  domain.OrderStatusConfirmed,
		targetPayment: domain.PaymentStatusPaid,
	})
}

// OnFail cancels the order behind the transaction and records the failed
// payment. Replayed callbacks and late failures after a success are no-ops.
func (r *paymentReconciler) OnFail(ctx context.Context, transactionID string) (domain.Order, error) {
	return r.reconcile(ctx, transactionID, reconcileOutcome{
		event:           OrderEventPaymentFailed,
		logEvent:        "payments.reconcile.fail",
		targetStatus:    domain.OrderStatusCancelled,
		targetPayment:   domain.PaymentStatusFailed,
		tolerateSettled: true,
	})
}

// OnCancel handles a payer abandoning the session. It shares the failure
// outcome so abandoned orders free up immediately.
func (r *paymentReconciler) OnCancel(ctx context.Context, transactionID string) (domain.Order, error) {
	return r.reconcile(ctx, transactionID, reconcileOutcome{
		event:           OrderEventPaymentFailed,
		logEvent:        "payments.reconcile.cancel",
		targetStatus:    domain.OrderStatusCancelled,
		targetPayment:   domain.PaymentStatusFailed,
		tolerateSettled: true,
	})
}

type reconcileOutcome struct {
	event         string
	logEvent      string
	targetStatus  domain.OrderStatus
	targetPayment domain.PaymentStatus

	// tolerateSettled treats any non-pending order as a no-op instead of a
	// transition conflict. Gateways retry fail/cancel callbacks after a
	// success has already confirmed the order; those must never move a
	// settled state backward or surface an error.
	tolerateSettled bool
}

func (r *paymentReconciler) reconcile(ctx context.Context, transactionID string, outcome reconcileOutcome) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, ErrPaymentUnavailable
	}

	txnID := strings.TrimSpace(transactionID)
	orderID, ok := OrderIDFromTransaction(txnID)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %q", ErrPaymentUnknownTransaction, transactionID)
	}

	session, err := r.sessions.FindByTransactionID(ctx, txnID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %q", ErrPaymentUnknownTransaction, transactionID)
		}
		return domain.Order{}, ErrPaymentUnavailable
	}
	// The session's order reference is authoritative; the parsed ID only
	// guards against malformed callbacks.
	if session.OrderID != "" {
		orderID = session.OrderID
	}

	var (
		order   domain.Order
		applied bool
	)
	err = r.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := r.orders.FindByID(ctx, orderID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: %q", ErrPaymentUnknownTransaction, transactionID)
			}
			return ErrPaymentUnavailable
		}

		if current.Status == outcome.targetStatus && current.PaymentStatus == outcome.targetPayment {
			order = current
			return nil
		}
		if current.Status != domain.OrderStatusPending {
			if outcome.tolerateSettled {
				order = current
				return nil
			}
			return fmt.Errorf("%w: order %s is %s", ErrPaymentInvalidTransition, current.ID, current.Status)
		}

		current.Status = outcome.targetStatus
		current.PaymentStatus = outcome.targetPayment
		current.UpdatedAt = r.now()
		if err := r.orders.Update(ctx, current); err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: %q", ErrPaymentUnknownTransaction, transactionID)
			}
			return ErrPaymentUnavailable
		}
		order = current
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentUnknownTransaction) || errors.Is(err, ErrPaymentInvalidTransition) {
			return domain.Order{}, err
		}
		return domain.Order{}, ErrPaymentUnavailable
	}

	if applied {
		r.publishEvent(ctx, outcome.event, order, txnID)
	}
	r.logger(ctx, outcome.logEvent, map[string]any{
		"transactionId": txnID,
		"orderId":       order.ID,
		"status":        string(order.Status),
		"paymentStatus": string(order.PaymentStatus),
		"applied":       applied,
	})
	return order, nil
}

func (r *paymentReconciler) publishEvent(ctx context.Context, eventType string, order domain.Order, transactionID string) {
	msg := OrderEventMessage{
		EventType:     eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TransactionID: transactionID,
		Amount:        order.TotalAmount,
		OccurredAt:    r.now(),
	}
	if _, err := r.publisher.PublishOrderEvent(ctx, msg); err != nil {
		r.logger(ctx, "payments.event.publish_failed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}
