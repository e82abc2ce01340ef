package services

import (
	"context"
	"errors"
	"time"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/repositories"
)

// CatalogService manages the bookable service catalog.
type CatalogService interface {
	List(ctx context.Context, filter CatalogListFilter) ([]domain.Service, error)
	Get(ctx context.Context, serviceID string) (domain.Service, error)
	Create(ctx context.Context, cmd UpsertServiceCommand) (domain.Service, error)
	Update(ctx context.Context, serviceID string, cmd UpsertServiceCommand) (domain.Service, error)
	Delete(ctx context.Context, serviceID string) error
}

// CatalogListFilter narrows and orders catalog listings.
type CatalogListFilter struct {
	Sort  domain.ServiceSort
	Pager domain.Pagination
}

// UpsertServiceCommand carries catalog entry fields for create and update.
type UpsertServiceCommand struct {
	Title           string
	Description     string
	Price           int64
	DurationMinutes int
}

// CartService manages the per-user cart.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (domain.Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// AddCartItemCommand adds a catalog service to the user's cart. Adding a
// service already present merges quantities.
type AddCartItemCommand struct {
	UserID    string
	ServiceID string
	Quantity  int
}

// UpdateCartItemCommand replaces the quantity for an existing cart item.
type UpdateCartItemCommand struct {
	UserID    string
	ServiceID string
	Quantity  int
}

// RemoveCartItemCommand removes a cart item by its catalog reference.
type RemoveCartItemCommand struct {
	UserID    string
	ServiceID string
}

// OrderService encapsulates order creation and lifecycle transitions.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (domain.Order, error)
	ListOrders(ctx context.Context, userID string, pager domain.Pagination) ([]domain.Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error)
}

// CreateOrderFromCartCommand converts the user's cart into an order.
type CreateOrderFromCartCommand struct {
	UserID string
}

// OrderReadOptions controls access checks on order reads.
type OrderReadOptions struct {
	UserID string
	Admin  bool
}

// OrderStatusTransitionCommand moves an order to a new lifecycle status.
type OrderStatusTransitionCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Actor   string
}

// CheckoutService coordinates PSP session creation for pending orders.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error)
}

// CreateCheckoutSessionCommand requests a gateway session for an order.
type CreateCheckoutSessionCommand struct {
	OrderID  string
	UserID   string
	Provider string
}

// CheckoutSessionResult returns the gateway session details to the caller.
type CheckoutSessionResult struct {
	TransactionID string
	SessionID     string
	Provider      string
	RedirectURL   string
	ClientSecret  string
	Amount        int64
	ExpiresAt     time.Time
}

// PaymentReconciler applies gateway callback outcomes to orders.
type PaymentReconciler interface {
	OnSuccess(ctx context.Context, transactionID string) (domain.Order, error)
	OnFail(ctx context.Context, transactionID string) (domain.Order, error)
	OnCancel(ctx context.Context, transactionID string) (domain.Order, error)
}

// ReviewService manages reviews and their catalog rating aggregates.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (domain.Review, error)
	ListByService(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error)
}

// CreateReviewCommand records user feedback against a catalog service.
type CreateReviewCommand struct {
	ServiceID string
	UserID    string
	OrderRef  string
	Rating    int
	Comment   string
}

// SystemService exposes readiness information for health endpoints.
type SystemService interface {
	Readiness(ctx context.Context) error
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
