package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookable/api/internal/services"
)

type stubCheckoutService struct {
	createSessionFunc func(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error)
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error) {
	if s.createSessionFunc == nil {
		return services.CheckoutSessionResult{}, nil
	}
	return s.createSessionFunc(ctx, cmd)
}

func newCheckoutRouter(service services.CheckoutService) chi.Router {
	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)
	return router
}

func TestCheckoutHandlersCreateSession(t *testing.T) {
	expires := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	service := &stubCheckoutService{
		createSessionFunc: func(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error) {
			if cmd.OrderID != "order-1" || cmd.UserID != "user-7" || cmd.Provider != "stripe" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.CheckoutSessionResult{
				TransactionID: "txn_order-1",
				SessionID:     "cs_123",
				Provider:      "stripe",
				RedirectURL:   "https://checkout.example.com/cs_123",
				Amount:        5500,
				ExpiresAt:     expires,
			}, nil
		},
	}

	router := newCheckoutRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/checkout/session", `{"orderId":"order-1","provider":"stripe"}`, "user-7"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Session checkoutSessionPayload `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Session.TransactionID != "txn_order-1" || resp.Session.Amount != 5500 {
		t.Fatalf("unexpected session payload: %+v", resp.Session)
	}
}

func TestCheckoutHandlersUnauthenticated(t *testing.T) {
	router := newCheckoutRouter(&stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/session", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCheckoutHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"order missing", services.ErrCheckoutNotFound, http.StatusNotFound, "order_not_found"},
		{"not payable", services.ErrCheckoutInvalidState, http.StatusConflict, "order_not_payable"},
		{"gateway down", services.ErrCheckoutGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubCheckoutService{
				createSessionFunc: func(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error) {
					return services.CheckoutSessionResult{}, tc.err
				},
			}

			router := newCheckoutRouter(service)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, authedRequest(http.MethodPost, "/checkout/session", `{"orderId":"order-1"}`, "user-7"))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}

			var resp map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tc.wantCode {
				t.Fatalf("expected code %q, got %v", tc.wantCode, resp["error"])
			}
		})
	}
}
