package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/repositories"
)

type stubCartRepository struct {
	upsertCart   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	getCart      func(ctx context.Context, userID string) (domain.Cart, error)
	replaceItems func(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	deleteCart   func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertCart == nil {
		return cart, nil
	}
	return s.upsertCart(ctx, cart)
}

func (s *stubCartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getCart == nil {
		return domain.Cart{}, stubRepoError{notFound: true}
	}
	return s.getCart(ctx, userID)
}

func (s *stubCartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if s.replaceItems == nil {
		return domain.Cart{UserID: userID, Items: items}, nil
	}
	return s.replaceItems(ctx, userID, items)
}

func (s *stubCartRepository) DeleteCart(ctx context.Context, userID string) error {
	if s.deleteCart == nil {
		return nil
	}
	return s.deleteCart(ctx, userID)
}

type stubCatalogFinder struct {
	findByID func(ctx context.Context, serviceID string) (domain.Service, error)
}

func (s *stubCatalogFinder) FindByID(ctx context.Context, serviceID string) (domain.Service, error) {
	if s.findByID == nil {
		return domain.Service{ID: serviceID}, nil
	}
	return s.findByID(ctx, serviceID)
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = stubRepoError{}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCartService(t *testing.T, repo repositories.CartRepository, catalog catalogFinder) CartService {
	t.Helper()

	seq := 0
	svc, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Catalog:    catalog,
		Clock:      fixedClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)),
		IDGenerator: func() string {
			seq++
			return "item-" + string(rune('0'+seq))
		},
	})
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}
	return svc
}

func TestGetOrCreateCartCreatesEmptyCart(t *testing.T) {
	var upserted *domain.Cart
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, stubRepoError{notFound: true}
		},
		upsertCart: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			upserted = &cart
			return cart, nil
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	cart, err := svc.GetOrCreateCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateCart returned error: %v", err)
	}
	if upserted == nil {
		t.Fatal("expected a new cart to be persisted")
	}
	if cart.UserID != "user-1" {
		t.Errorf("expected user-1, got %q", cart.UserID)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(cart.Items))
	}
}

func TestAddItemRejectsUnknownService(t *testing.T) {
	catalog := &stubCatalogFinder{
		findByID: func(ctx context.Context, serviceID string) (domain.Service, error) {
			return domain.Service{}, stubRepoError{notFound: true}
		},
	}

	svc := newTestCartService(t, &stubCartRepository{}, catalog)

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-missing",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartCatalogReference) {
		t.Fatalf("expected ErrCartCatalogReference, got %v", err)
	}
}

func TestAddItemMergesQuantities(t *testing.T) {
	existing := domain.Cart{
		ID:     "user-1",
		UserID: "user-1",
		Items: []domain.CartItem{
			{ID: "item-a", ServiceID: "svc-1", Quantity: 2, AddedAt: time.Now().UTC()},
		},
	}
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return existing, nil
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-1",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected a single merged item, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("expected merged quantity 5, got %d", cart.Items[0].Quantity)
	}
	if cart.Items[0].UpdatedAt == nil {
		t.Error("expected merged item to record an update time")
	}
}

func TestAddItemAppendsNewItem(t *testing.T) {
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID}, nil
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-2",
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(cart.Items))
	}
	if cart.Items[0].ServiceID != "svc-2" {
		t.Errorf("expected svc-2, got %q", cart.Items[0].ServiceID)
	}
	if cart.Items[0].ID == "" {
		t.Error("expected a generated item ID")
	}
}

func TestAddItemValidatesQuantity(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepository{}, &stubCatalogFinder{})

	for _, quantity := range []int{0, -1, maxCartItemQuantity + 1} {
		_, err := svc.AddItem(context.Background(), AddCartItemCommand{
			UserID:    "user-1",
			ServiceID: "svc-1",
			Quantity:  quantity,
		})
		if !errors.Is(err, ErrCartInvalidInput) {
			t.Errorf("quantity %d: expected ErrCartInvalidInput, got %v", quantity, err)
		}
	}
}

func TestUpdateItemMissingItem(t *testing.T) {
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID}, nil
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	_, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-9",
		Quantity:  2,
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestUpdateItemReplacesQuantity(t *testing.T) {
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:     userID,
				UserID: userID,
				Items: []domain.CartItem{
					{ID: "item-a", ServiceID: "svc-1", Quantity: 7},
				},
			}, nil
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	cart, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}
	if cart.Items[0].Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", cart.Items[0].Quantity)
	}
}

func TestRemoveItem(t *testing.T) {
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:     userID,
				UserID: userID,
				Items: []domain.CartItem{
					{ID: "item-a", ServiceID: "svc-1", Quantity: 1},
					{ID: "item-b", ServiceID: "svc-2", Quantity: 2},
				},
			}, nil
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-1",
	})
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ServiceID != "svc-2" {
		t.Fatalf("expected only svc-2 to remain, got %+v", cart.Items)
	}

	_, err = svc.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-9",
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound for unknown item, got %v", err)
	}
}

func TestClearCartToleratesMissingCart(t *testing.T) {
	repo := &stubCartRepository{
		replaceItems: func(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
			return domain.Cart{}, stubRepoError{notFound: true}
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	if err := svc.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("ClearCart returned error: %v", err)
	}
}

func TestCartServiceTranslatesUnavailable(t *testing.T) {
	repo := &stubCartRepository{
		getCart: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, stubRepoError{unavailable: true}
		},
	}

	svc := newTestCartService(t, repo, &stubCatalogFinder{})

	_, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{
		UserID:    "user-1",
		ServiceID: "svc-1",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}
}
