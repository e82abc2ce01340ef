package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/repositories"
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist or is not
// visible to the caller.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// ErrOrderEmptyCart indicates conversion was attempted on an empty or missing cart.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderCatalogReference indicates a cart item references a catalog service
// that no longer exists.
var ErrOrderCatalogReference = errors.New("order service: invalid catalog reference")

// ErrOrderInvalidTransition indicates the requested status change is not
// allowed from the order's current status.
var ErrOrderInvalidTransition = errors.New("order service: invalid status transition")

var (
	errOrderOrdersRequired  = errors.New("order service: orders repository is required")
	errOrderCartsRequired   = errors.New("order service: carts repository is required")
	errOrderCatalogRequired = errors.New("order service: catalog repository is required")
	errOrderUowRequired     = errors.New("order service: unit of work is required")
	errOrderClockRequired   = errors.New("order service: clock is required")
)

// allowedTransitions is the order lifecycle state machine. Terminal statuses
// have no outgoing edges.
var allowedTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusInProgress, domain.OrderStatusCancelled},
	domain.OrderStatusInProgress: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

func transitionAllowed(from, to domain.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps wires persistence, catalog lookups and event publishing
// for the order lifecycle.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Uow         repositories.UnitOfWork
	Publisher   OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	carts     repositories.CartRepository
	catalog   repositories.CatalogRepository
	uow       repositories.UnitOfWork
	publisher OrderEventPublisher
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderOrdersRequired
	}
	if deps.Carts == nil {
		return nil, errOrderCartsRequired
	}
	if deps.Catalog == nil {
		return nil, errOrderCatalogRequired
	}
	if deps.Uow == nil {
		return nil, errOrderUowRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = NoopOrderEventPublisher{}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		uow:       deps.Uow,
		publisher: publisher,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// CreateFromCart converts the user's cart into a pending order. The cart
// read, order insert and cart delete run in a single transaction so a cart
// converts exactly once even under concurrent submissions.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}

	var order domain.Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetCart(ctx, uid)
		if err != nil {
			if isRepoNotFound(err) {
				return ErrOrderEmptyCart
			}
			return s.translateRepoError(err)
		}
		if len(cart.Items) == 0 {
			return ErrOrderEmptyCart
		}

		items := make([]domain.OrderItem, 0, len(cart.Items))
		var total int64
		for _, item := range cart.Items {
			svc, err := s.catalog.FindByID(ctx, item.ServiceID)
			if err != nil {
				if isRepoNotFound(err) {
					return fmt.Errorf("%w: service %s", ErrOrderCatalogReference, item.ServiceID)
				}
				return s.translateRepoError(err)
			}

			ref := svc.ID
			subtotal := svc.Price * int64(item.Quantity)
			items = append(items, domain.OrderItem{
				ServiceRef: &ref,
				Title:      svc.Title,
				UnitPrice:  svc.Price,
				Quantity:   item.Quantity,
				Subtotal:   subtotal,
			})
			total += subtotal
		}

		now := s.now()
		order = domain.Order{
			ID:            s.newID(),
			UserID:        uid,
			Status:        domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusUnpaid,
			Items:         items,
			TotalAmount:   total,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.orders.Insert(ctx, order); err != nil {
			return s.translateRepoError(err)
		}
		if err := s.carts.DeleteCart(ctx, uid); err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderEmptyCart) || errors.Is(err, ErrOrderCatalogReference) ||
			errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderUnavailable) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEventCreated, order, "")
	s.logger(ctx, "orders.created", map[string]any{
		"orderId":     order.ID,
		"userId":      uid,
		"totalAmount": order.TotalAmount,
		"items":       len(order.Items),
	})
	return order, nil
}

// GetOrder returns an order. Non-admin callers only see their own orders;
// other users' orders read as not found.
func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}

	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	if !opts.Admin && order.UserID != strings.TrimSpace(opts.UserID) {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *orderService) ListOrders(ctx context.Context, userID string, pager domain.Pagination) ([]domain.Order, error) {
	if s == nil || s.orders == nil {
		return nil, ErrOrderUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrOrderInvalidInput
	}

	orders, err := s.orders.ListByUser(ctx, uid, pager)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// TransitionStatus moves an order along its lifecycle. Repeating the current
// status is a no-op; anything outside the state machine is rejected.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}

	id := strings.TrimSpace(cmd.OrderID)
	if id == "" || !cmd.Status.Valid() {
		return domain.Order{}, ErrOrderInvalidInput
	}

	var (
		order   domain.Order
		applied bool
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return s.translateRepoError(err)
		}
		if current.Status == cmd.Status {
			order = current
			return nil
		}
		if !transitionAllowed(current.Status, cmd.Status) {
			return fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, current.Status, cmd.Status)
		}

		current.Status = cmd.Status
		current.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, current); err != nil {
			return s.translateRepoError(err)
		}
		order = current
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidTransition) || errors.Is(err, ErrOrderNotFound) ||
			errors.Is(err, ErrOrderUnavailable) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.translateRepoError(err)
	}

	if applied {
		s.publishEvent(ctx, OrderEventStatusChanged, order, "")
		s.logger(ctx, "orders.status.changed", map[string]any{
			"orderId": order.ID,
			"status":  string(order.Status),
			"actor":   cmd.Actor,
		})
	}
	return order, nil
}

// publishEvent emits an order lifecycle event. Publish failures are logged
// and do not fail the originating operation.
func (s *orderService) publishEvent(ctx context.Context, eventType string, order domain.Order, transactionID string) {
	msg := OrderEventMessage{
		EventType:     eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TransactionID: transactionID,
		Amount:        order.TotalAmount,
		OccurredAt:    s.now(),
	}
	if _, err := s.publisher.PublishOrderEvent(ctx, msg); err != nil {
		s.logger(ctx, "orders.event.publish_failed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrOrderNotFound
	}
	return ErrOrderUnavailable
}
