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

const maxCartItemQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the requested cart or cart item does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartCatalogReference indicates the referenced catalog service does not exist.
var ErrCartCatalogReference = errors.New("cart service: invalid catalog reference")

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

type catalogFinder interface {
	FindByID(ctx context.Context, serviceID string) (domain.Service, error)
}

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Catalog     catalogFinder
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	repo    repositories.CartRepository
	catalog catalogFinder
	now     func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		now:     func() time.Time { return deps.Clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

// GetOrCreateCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return domain.Cart{}, s.translateRepoError(err)
		}
		saved, err := s.repo.UpsertCart(ctx, s.newCart(uid))
		if err != nil {
			return domain.Cart{}, s.translateRepoError(err)
		}
		cart = saved
	}

	return s.normaliseCart(cart, uid), nil
}

// AddItem adds a catalog service to the cart, merging quantities when the
// service is already present.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	serviceID := strings.TrimSpace(cmd.ServiceID)
	if uid == "" || serviceID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}
	if err := validateQuantity(cmd.Quantity); err != nil {
		return domain.Cart{}, err
	}

	if _, err := s.catalog.FindByID(ctx, serviceID); err != nil {
		if isRepoNotFound(err) || errors.Is(err, ErrCatalogNotFound) {
			return domain.Cart{}, fmt.Errorf("%w: service %s", ErrCartCatalogReference, serviceID)
		}
		return domain.Cart{}, s.translateRepoError(err)
	}

	cart, err := s.loadOrCreate(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	now := s.now()
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ServiceID != serviceID {
			continue
		}
		quantity := cart.Items[i].Quantity + cmd.Quantity
		if quantity > maxCartItemQuantity {
			return domain.Cart{}, fmt.Errorf("%w: quantity exceeds %d", ErrCartInvalidInput, maxCartItemQuantity)
		}
		cart.Items[i].Quantity = quantity
		updated := now
		cart.Items[i].UpdatedAt = &updated
		merged = true
		break
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        s.newID(),
			ServiceID: serviceID,
			Quantity:  cmd.Quantity,
			AddedAt:   now,
		})
	}

	cart.UpdatedAt = now
	saved, err := s.repo.UpsertCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":    uid,
		"serviceId": serviceID,
		"merged":    merged,
	})
	return s.normaliseCart(saved, uid), nil
}

// UpdateItem replaces the quantity of an existing cart item.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	serviceID := strings.TrimSpace(cmd.ServiceID)
	if uid == "" || serviceID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}
	if err := validateQuantity(cmd.Quantity); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}

	now := s.now()
	found := false
	for i := range cart.Items {
		if cart.Items[i].ServiceID != serviceID {
			continue
		}
		cart.Items[i].Quantity = cmd.Quantity
		updated := now
		cart.Items[i].UpdatedAt = &updated
		found = true
		break
	}
	if !found {
		return domain.Cart{}, fmt.Errorf("%w: item %s", ErrCartNotFound, serviceID)
	}

	cart.UpdatedAt = now
	saved, err := s.repo.UpsertCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(saved, uid), nil
}

// RemoveItem removes the cart item referencing the given catalog service.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	serviceID := strings.TrimSpace(cmd.ServiceID)
	if uid == "" || serviceID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}

	remaining := make([]domain.CartItem, 0, len(cart.Items))
	removed := false
	for _, item := range cart.Items {
		if item.ServiceID == serviceID {
			removed = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !removed {
		return domain.Cart{}, fmt.Errorf("%w: item %s", ErrCartNotFound, serviceID)
	}

	cart.Items = remaining
	cart.UpdatedAt = s.now()
	saved, err := s.repo.UpsertCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item.removed", map[string]any{
		"userId":    uid,
		"serviceId": serviceID,
	})
	return s.normaliseCart(saved, uid), nil
}

// ClearCart empties the cart while keeping the document in place.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	if _, err := s.repo.ReplaceItems(ctx, uid, []domain.CartItem{}); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) loadOrCreate(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(userID), nil
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart, userID), nil
}

func (s *cartService) newCart(userID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, userID string) domain.Cart {
	cart.ID = userID
	cart.UserID = userID
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	if quantity > maxCartItemQuantity {
		return fmt.Errorf("%w: quantity exceeds %d", ErrCartInvalidInput, maxCartItemQuantity)
	}
	return nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrCartNotFound
	}
	return ErrCartUnavailable
}
