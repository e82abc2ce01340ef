package domain

import (
	"time"
)

// Service is a bookable catalog entry. Prices are stored in the smallest
// currency unit.
type Service struct {
	ID              string
	Title           string
	Description     string
	Price           int64
	DurationMinutes int
	AverageRating   float64
	RatingCount     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Cart aggregates the mutable pre-purchase state for a user. There is at most
// one cart per user; the user ID doubles as the cart document identifier.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem stores a single catalog selection within a cart. At most one item
// exists per (cart, service) pair; repeated adds merge quantities.
type CartItem struct {
	ID        string
	ServiceID string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusInProgress indicates fulfilment has started.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted indicates fulfilment finished. Terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled or payment
	// failed. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusInProgress,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks the payment outcome independently of the order status.
// The two fields overlap in meaning for historical reasons; reconciliation
// always writes them together.
type PaymentStatus string

const (
	// PaymentStatusUnpaid is the initial payment state.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid indicates the gateway reported success.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the gateway reported failure or the payer
	// abandoned the session.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Order is the immutable record of a cart conversion. Only Status,
// PaymentStatus and UpdatedAt change after creation.
type Order struct {
	ID            string
	UserID        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Items         []OrderItem
	TotalAmount   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem mirrors one cart item at conversion time. Title and UnitPrice are
// snapshots so later catalog edits cannot alter historical orders; ServiceRef
// becomes nil when the catalog entry is removed afterwards.
type OrderItem struct {
	ServiceRef *string
	Title      string
	UnitPrice  int64
	Quantity   int
	Subtotal   int64
}

// PaymentSession records the gateway session created for an order, one-to-one
// with the order. The transaction ID is the reconciliation key handed to the
// gateway and parsed back out of its callbacks.
type PaymentSession struct {
	TransactionID string
	OrderID       string
	UserID        string
	Provider      string
	Amount        int64
	RedirectURL   string
	Payload       map[string]any
	CreatedAt     time.Time
}

// Review captures user feedback for a catalog service, optionally tied to the
// order the service was booked through.
type Review struct {
	ID        string
	ServiceID string
	UserID    string
	OrderRef  *string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Pagination defines standard paging inputs for list operations.
type Pagination struct {
	Limit  int
	Offset int
}

// ServiceSort indicates the field used to order catalog listings.
type ServiceSort string

const (
	// ServiceSortRating orders by average rating, highest first.
	ServiceSortRating ServiceSort = "rating"
	// ServiceSortPrice orders by price, lowest first.
	ServiceSortPrice ServiceSort = "price"
	// ServiceSortCreatedAt orders by creation time, newest first.
	ServiceSortCreatedAt ServiceSort = "created"
)
