package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/repositories"
)

type stubOrderRepository struct {
	insert     func(ctx context.Context, order domain.Order) error
	update     func(ctx context.Context, order domain.Order) error
	findByID   func(ctx context.Context, orderID string) (domain.Order, error)
	listByUser func(ctx context.Context, userID string, pager domain.Pagination) ([]domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, order)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByID == nil {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return s.findByID(ctx, orderID)
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) ([]domain.Order, error) {
	if s.listByUser == nil {
		return nil, nil
	}
	return s.listByUser(ctx, userID, pager)
}

type stubCatalogRepository struct {
	insert   func(ctx context.Context, svc domain.Service) error
	update   func(ctx context.Context, svc domain.Service) error
	delete   func(ctx context.Context, serviceID string) error
	findByID func(ctx context.Context, serviceID string) (domain.Service, error)
	list     func(ctx context.Context, filter repositories.ServiceListFilter) ([]domain.Service, error)
}

func (s *stubCatalogRepository) Insert(ctx context.Context, svc domain.Service) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, svc)
}

func (s *stubCatalogRepository) Update(ctx context.Context, svc domain.Service) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, svc)
}

func (s *stubCatalogRepository) Delete(ctx context.Context, serviceID string) error {
	if s.delete == nil {
		return nil
	}
	return s.delete(ctx, serviceID)
}

func (s *stubCatalogRepository) FindByID(ctx context.Context, serviceID string) (domain.Service, error) {
	if s.findByID == nil {
		return domain.Service{ID: serviceID}, nil
	}
	return s.findByID(ctx, serviceID)
}

func (s *stubCatalogRepository) List(ctx context.Context, filter repositories.ServiceListFilter) ([]domain.Service, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, filter)
}

type stubUnitOfWork struct {
	runs int
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.runs++
	return fn(ctx)
}

type recordingPublisher struct {
	messages []OrderEventMessage
	err      error
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, msg OrderEventMessage) (string, error) {
	p.messages = append(p.messages, msg)
	return "msg-1", p.err
}

type orderServiceFixture struct {
	orders    *stubOrderRepository
	carts     *stubCartRepository
	catalog   *stubCatalogRepository
	uow       *stubUnitOfWork
	publisher *recordingPublisher
}

func newTestOrderService(t *testing.T, fx *orderServiceFixture) OrderService {
	t.Helper()

	if fx.orders == nil {
		fx.orders = &stubOrderRepository{}
	}
	if fx.carts == nil {
		fx.carts = &stubCartRepository{}
	}
	if fx.catalog == nil {
		fx.catalog = &stubCatalogRepository{}
	}
	if fx.uow == nil {
		fx.uow = &stubUnitOfWork{}
	}
	if fx.publisher == nil {
		fx.publisher = &recordingPublisher{}
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      fx.orders,
		Carts:       fx.carts,
		Catalog:     fx.catalog,
		Uow:         fx.uow,
		Publisher:   fx.publisher,
		Clock:       fixedClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "order-1" },
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestCreateFromCartSnapshotsItemsAndClearsCart(t *testing.T) {
	var inserted *domain.Order
	var deletedCart string

	fx := &orderServiceFixture{
		carts: &stubCartRepository{
			getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
				return domain.Cart{
					ID:     userID,
					UserID: userID,
					Items: []domain.CartItem{
						{ID: "item-a", ServiceID: "svc-1", Quantity: 2},
						{ID: "item-b", ServiceID: "svc-2", Quantity: 1},
					},
				}, nil
			},
			deleteCart: func(ctx context.Context, userID string) error {
				deletedCart = userID
				return nil
			},
		},
		catalog: &stubCatalogRepository{
			findByID: func(ctx context.Context, serviceID string) (domain.Service, error) {
				prices := map[string]int64{"svc-1": 1500, "svc-2": 4000}
				return domain.Service{ID: serviceID, Title: "Service " + serviceID, Price: prices[serviceID]}, nil
			},
		},
		orders: &stubOrderRepository{
			insert: func(ctx context.Context, order domain.Order) error {
				inserted = &order
				return nil
			},
		},
	}

	svc := newTestOrderService(t, fx)

	order, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateFromCart returned error: %v", err)
	}
	if inserted == nil {
		t.Fatal("expected the order to be persisted")
	}
	if fx.uow.runs != 1 {
		t.Errorf("expected one transaction, got %d", fx.uow.runs)
	}
	if deletedCart != "user-1" {
		t.Errorf("expected the cart to be deleted in the same transaction, got %q", deletedCart)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %q", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Errorf("expected unpaid payment status, got %q", order.PaymentStatus)
	}
	if want := int64(2*1500 + 4000); order.TotalAmount != want {
		t.Errorf("expected total %d, got %d", want, order.TotalAmount)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected two items, got %d", len(order.Items))
	}
	if order.Items[0].Subtotal != 3000 || order.Items[0].UnitPrice != 1500 {
		t.Errorf("unexpected first item snapshot: %+v", order.Items[0])
	}
	if order.Items[0].ServiceRef == nil || *order.Items[0].ServiceRef != "svc-1" {
		t.Errorf("expected service reference svc-1, got %v", order.Items[0].ServiceRef)
	}
	if len(fx.publisher.messages) != 1 || fx.publisher.messages[0].EventType != OrderEventCreated {
		t.Errorf("expected a single %s event, got %+v", OrderEventCreated, fx.publisher.messages)
	}
}

func TestCreateFromCartRejectsEmptyCart(t *testing.T) {
	for name, getCart := range map[string]func(ctx context.Context, userID string) (domain.Cart, error){
		"missing cart": func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, stubRepoError{notFound: true}
		},
		"empty cart": func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID, Items: []domain.CartItem{}}, nil
		},
	} {
		t.Run(name, func(t *testing.T) {
			fx := &orderServiceFixture{carts: &stubCartRepository{getCart: getCart}}
			svc := newTestOrderService(t, fx)

			_, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
			if !errors.Is(err, ErrOrderEmptyCart) {
				t.Fatalf("expected ErrOrderEmptyCart, got %v", err)
			}
			if len(fx.publisher.messages) != 0 {
				t.Errorf("expected no events, got %d", len(fx.publisher.messages))
			}
		})
	}
}

func TestCreateFromCartDrainedCartYieldsSingleOrder(t *testing.T) {
	// Two conversions racing over the same cart serialize on the transaction.
	// The loser re-reads the cart after the winner drained it and must come
	// away with ErrOrderEmptyCart, not a duplicate order.
	reads := 0
	inserts := 0

	fx := &orderServiceFixture{
		carts: &stubCartRepository{
			getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
				reads++
				if reads > 1 {
					return domain.Cart{}, stubRepoError{notFound: true}
				}
				return domain.Cart{
					ID:     userID,
					UserID: userID,
					Items:  []domain.CartItem{{ID: "item-a", ServiceID: "svc-1", Quantity: 1}},
				}, nil
			},
		},
		orders: &stubOrderRepository{
			insert: func(ctx context.Context, order domain.Order) error {
				inserts++
				return nil
			},
		},
	}

	svc := newTestOrderService(t, fx)

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"}); err != nil {
		t.Fatalf("first conversion returned error: %v", err)
	}

	_, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if !errors.Is(err, ErrOrderEmptyCart) {
		t.Fatalf("expected ErrOrderEmptyCart for the drained cart, got %v", err)
	}

	if inserts != 1 {
		t.Errorf("expected exactly one order insert, got %d", inserts)
	}
	if len(fx.publisher.messages) != 1 {
		t.Errorf("expected a single created event, got %d", len(fx.publisher.messages))
	}
}

func TestCreateFromCartRejectsRemovedCatalogService(t *testing.T) {
	fx := &orderServiceFixture{
		carts: &stubCartRepository{
			getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
				return domain.Cart{
					ID:     userID,
					UserID: userID,
					Items:  []domain.CartItem{{ID: "item-a", ServiceID: "svc-gone", Quantity: 1}},
				}, nil
			},
		},
		catalog: &stubCatalogRepository{
			findByID: func(ctx context.Context, serviceID string) (domain.Service, error) {
				return domain.Service{}, stubRepoError{notFound: true}
			},
		},
	}

	svc := newTestOrderService(t, fx)

	_, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"})
	if !errors.Is(err, ErrOrderCatalogReference) {
		t.Fatalf("expected ErrOrderCatalogReference, got %v", err)
	}
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepository{
			findByID: func(ctx context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "owner"}, nil
			},
		},
	}

	svc := newTestOrderService(t, fx)

	if _, err := svc.GetOrder(context.Background(), "order-1", OrderReadOptions{UserID: "owner"}); err != nil {
		t.Fatalf("owner read returned error: %v", err)
	}

	_, err := svc.GetOrder(context.Background(), "order-1", OrderReadOptions{UserID: "intruder"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), "order-1", OrderReadOptions{UserID: "intruder", Admin: true}); err != nil {
		t.Fatalf("admin read returned error: %v", err)
	}
}

func TestTransitionStatusFollowsStateMachine(t *testing.T) {
	cases := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		wantErr bool
	}{
		{"pending to confirmed", domain.OrderStatusPending, domain.OrderStatusConfirmed, false},
		{"pending to cancelled", domain.OrderStatusPending, domain.OrderStatusCancelled, false},
		{"confirmed to in_progress", domain.OrderStatusConfirmed, domain.OrderStatusInProgress, false},
		{"confirmed to cancelled", domain.OrderStatusConfirmed, domain.OrderStatusCancelled, false},
		{"in_progress to completed", domain.OrderStatusInProgress, domain.OrderStatusCompleted, false},
		{"pending to completed", domain.OrderStatusPending, domain.OrderStatusCompleted, true},
		{"completed to cancelled", domain.OrderStatusCompleted, domain.OrderStatusCancelled, true},
		{"cancelled to pending", domain.OrderStatusCancelled, domain.OrderStatusPending, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := &orderServiceFixture{
				orders: &stubOrderRepository{
					findByID: func(ctx context.Context, orderID string) (domain.Order, error) {
						return domain.Order{ID: orderID, UserID: "user-1", Status: tc.from}, nil
					},
				},
			}

			svc := newTestOrderService(t, fx)

			order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID: "order-1",
				Status:  tc.to,
				Actor:   "admin-1",
			})
			if tc.wantErr {
				if !errors.Is(err, ErrOrderInvalidTransition) {
					t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("TransitionStatus returned error: %v", err)
			}
			if order.Status != tc.to {
				t.Errorf("expected status %q, got %q", tc.to, order.Status)
			}
		})
	}
}

func TestTransitionStatusSameStatusIsNoOp(t *testing.T) {
	updated := false
	fx := &orderServiceFixture{
		orders: &stubOrderRepository{
			findByID: func(ctx context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, Status: domain.OrderStatusConfirmed}, nil
			},
			update: func(ctx context.Context, order domain.Order) error {
				updated = true
				return nil
			},
		},
	}

	svc := newTestOrderService(t, fx)

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: "order-1",
		Status:  domain.OrderStatusConfirmed,
	})
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if updated {
		t.Error("expected no write for a same-status transition")
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("unexpected status %q", order.Status)
	}
}

func TestCreateFromCartSurvivesPublishFailure(t *testing.T) {
	fx := &orderServiceFixture{
		carts: &stubCartRepository{
			getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
				return domain.Cart{
					ID:     userID,
					UserID: userID,
					Items:  []domain.CartItem{{ID: "item-a", ServiceID: "svc-1", Quantity: 1}},
				}, nil
			},
		},
		publisher: &recordingPublisher{err: errors.New("broker down")},
	}

	svc := newTestOrderService(t, fx)

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderFromCartCommand{UserID: "user-1"}); err != nil {
		t.Fatalf("CreateFromCart returned error: %v", err)
	}
}
