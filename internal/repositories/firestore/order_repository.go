package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bookable/api/internal/domain"
	pfirestore "github.com/bookable/api/internal/platform/firestore"
	"github.com/bookable/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders with embedded item snapshots.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert persists a newly created order.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, id, encodeOrder(order))
	return err
}

// Update overwrites the stored order. Items are immutable after creation so
// callers only change status, payment status, and timestamps.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.Insert(ctx, order)
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("userId", "==", uid).OrderBy("createdAt", firestore.Desc)
		if pager.Offset > 0 {
			query = query.Offset(pager.Offset)
		}
		if pager.Limit > 0 {
			query = query.Limit(pager.Limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc := orderItemDocument{
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		}
		if item.ServiceRef != nil {
			ref := strings.TrimSpace(*item.ServiceRef)
			if ref != "" {
				doc.ServiceRef = &ref
			}
		}
		items = append(items, doc)
	}

	return orderDocument{
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Items:         items,
		TotalAmount:   order.TotalAmount,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		decoded := domain.OrderItem{
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		}
		if item.ServiceRef != nil {
			ref := *item.ServiceRef
			decoded.ServiceRef = &ref
		}
		items = append(items, decoded)
	}

	return domain.Order{
		ID:            id,
		UserID:        doc.UserID,
		Status:        domain.OrderStatus(doc.Status),
		PaymentStatus: domain.PaymentStatus(doc.PaymentStatus),
		Items:         items,
		TotalAmount:   doc.TotalAmount,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	Items         []orderItemDocument `firestore:"items"`
	TotalAmount   int64               `firestore:"totalAmount"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ServiceRef *string `firestore:"serviceRef,omitempty"`
	Title      string  `firestore:"title"`
	UnitPrice  int64   `firestore:"unitPrice"`
	Quantity   int     `firestore:"quantity"`
	Subtotal   int64   `firestore:"subtotal"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
