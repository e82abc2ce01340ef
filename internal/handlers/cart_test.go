package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/platform/auth"
	"github.com/bookable/api/internal/services"
)

type stubCartService struct {
	getOrCreateFunc func(ctx context.Context, userID string) (domain.Cart, error)
	addItemFunc     func(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error)
	updateItemFunc  func(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error)
	removeItemFunc  func(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error)
	clearCartFunc   func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getOrCreateFunc == nil {
		return domain.Cart{UserID: userID}, nil
	}
	return s.getOrCreateFunc(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
	if s.addItemFunc == nil {
		return domain.Cart{UserID: cmd.UserID}, nil
	}
	return s.addItemFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error) {
	if s.updateItemFunc == nil {
		return domain.Cart{UserID: cmd.UserID}, nil
	}
	return s.updateItemFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error) {
	if s.removeItemFunc == nil {
		return domain.Cart{UserID: cmd.UserID}, nil
	}
	return s.removeItemFunc(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearCartFunc == nil {
		return nil
	}
	return s.clearCartFunc(ctx, userID)
}

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func authedRequest(method, target, body string, uid string, roles ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

func TestCartHandlersGetCart(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	service := &stubCartService{
		getOrCreateFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.Cart{
				ID:     "user-7",
				UserID: "user-7",
				Items: []domain.CartItem{
					{ID: "item-1", ServiceID: "svc-1", Quantity: 2, AddedAt: now},
				},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}

	router := newCartRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/cart", "", "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Cart cartPayload `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.UserID != "user-7" {
		t.Fatalf("expected user-7, got %q", resp.Cart.UserID)
	}
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].ServiceID != "svc-1" {
		t.Fatalf("unexpected items: %+v", resp.Cart.Items)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	router := newCartRouter(&stubCartService{})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
			if cmd.ServiceID != "svc-1" || cmd.Quantity != 3 {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return domain.Cart{
				UserID: cmd.UserID,
				Items:  []domain.CartItem{{ID: "item-1", ServiceID: cmd.ServiceID, Quantity: cmd.Quantity}},
			}, nil
		},
	}

	router := newCartRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", `{"serviceId":"svc-1","quantity":3}`, "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersAddItemUnknownService(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartCatalogReference
		},
	}

	router := newCartRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", `{"serviceId":"svc-x","quantity":1}`, "user-7"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "invalid_catalog_reference" {
		t.Fatalf("unexpected error code %v", resp["error"])
	}
}

func TestCartHandlersUpdateItemMissing(t *testing.T) {
	service := &stubCartService{
		updateItemFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartNotFound
		},
	}

	router := newCartRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/cart/items/svc-9", `{"quantity":2}`, "user-7"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItemPassesServiceID(t *testing.T) {
	var seen services.RemoveCartItemCommand
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error) {
			seen = cmd
			return domain.Cart{UserID: cmd.UserID}, nil
		},
	}

	router := newCartRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodDelete, "/cart/items/svc-2", "", "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if seen.ServiceID != "svc-2" || seen.UserID != "user-7" {
		t.Fatalf("unexpected command %+v", seen)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := ""
	service := &stubCartService{
		clearCartFunc: func(ctx context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}

	router := newCartRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodDelete, "/cart", "", "user-7"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if cleared != "user-7" {
		t.Fatalf("expected clear for user-7, got %q", cleared)
	}
}
