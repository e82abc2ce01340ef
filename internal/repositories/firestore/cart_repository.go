package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bookable/api/internal/domain"
	pfirestore "github.com/bookable/api/internal/platform/firestore"
	"github.com/bookable/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts within Firestore. The owning user ID doubles
// as the document identifier so each user holds at most one cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// UpsertCart persists the full cart document using the user ID as document identifier.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cartID := cartDocumentID(cart)
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Items:     encodeCartItems(cart.Items),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if _, err := r.base.Set(ctx, cartID, doc); err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.ID = cartID
	saved.UserID = cartID
	saved.Items = decodeCartItems(doc.Items)
	saved.CreatedAt = createdAt
	saved.UpdatedAt = now
	return saved, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:        doc.ID,
		UserID:    doc.ID,
		Items:     decodeCartItems(doc.Data.Items),
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// ReplaceItems swaps the item set while keeping the cart document in place.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	cart, err := r.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart.Items = items
	cart.UpdatedAt = time.Now().UTC()
	return r.UpsertCart(ctx, cart)
}

// DeleteCart removes the user's cart document entirely.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	return r.base.Delete(ctx, uid)
}

func cartDocumentID(cart domain.Cart) string {
	if trimmed := strings.TrimSpace(cart.ID); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(cart.UserID)
}

func encodeCartItems(items []domain.CartItem) []cartItemDocument {
	if len(items) == 0 {
		return []cartItemDocument{}
	}
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		doc := cartItemDocument{
			ID:        item.ID,
			ServiceID: item.ServiceID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
		}
		if item.UpdatedAt != nil {
			updated := item.UpdatedAt.UTC()
			doc.UpdatedAt = &updated
		}
		out = append(out, doc)
	}
	return out
}

func decodeCartItems(docs []cartItemDocument) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		item := domain.CartItem{
			ID:        doc.ID,
			ServiceID: doc.ServiceID,
			Quantity:  doc.Quantity,
			AddedAt:   doc.AddedAt,
		}
		if doc.UpdatedAt != nil {
			updated := *doc.UpdatedAt
			item.UpdatedAt = &updated
		}
		items = append(items, item)
	}
	return items
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string     `firestore:"id"`
	ServiceID string     `firestore:"serviceId"`
	Quantity  int        `firestore:"quantity"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
