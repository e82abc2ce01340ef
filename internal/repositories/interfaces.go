package repositories

import (
	"context"

	"github.com/bookable/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	PaymentSessions() PaymentSessionRepository
	Reviews() ReviewRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository persists bookable service offerings.
type CatalogRepository interface {
	Insert(ctx context.Context, svc domain.Service) error
	Update(ctx context.Context, svc domain.Service) error
	Delete(ctx context.Context, serviceID string) error
	FindByID(ctx context.Context, serviceID string) (domain.Service, error)
	List(ctx context.Context, filter ServiceListFilter) ([]domain.Service, error)
}

// ServiceListFilter narrows and orders catalog listings.
type ServiceListFilter struct {
	Sort  domain.ServiceSort
	Pager domain.Pagination
}

// CartRepository owns cart persistence keyed by the owning user.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// OrderRepository persists orders and their embedded item snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) ([]domain.Order, error)
}

// PaymentSessionRepository stores gateway sessions keyed by transaction ID.
type PaymentSessionRepository interface {
	Save(ctx context.Context, session domain.PaymentSession) error
	FindByTransactionID(ctx context.Context, transactionID string) (domain.PaymentSession, error)
}

// ReviewRepository persists service reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	FindByID(ctx context.Context, serviceID, reviewID string) (domain.Review, error)
	ListByService(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error)
}

// HealthRepository verifies backend connectivity for readiness probes.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
