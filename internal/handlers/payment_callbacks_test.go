package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/services"
)

type stubReconciler struct {
	onSuccessFunc func(ctx context.Context, transactionID string) (domain.Order, error)
	onFailFunc    func(ctx context.Context, transactionID string) (domain.Order, error)
	onCancelFunc  func(ctx context.Context, transactionID string) (domain.Order, error)
}

func (s *stubReconciler) OnSuccess(ctx context.Context, transactionID string) (domain.Order, error) {
	if s.onSuccessFunc == nil {
		return domain.Order{}, nil
	}
	return s.onSuccessFunc(ctx, transactionID)
}

func (s *stubReconciler) OnFail(ctx context.Context, transactionID string) (domain.Order, error) {
	if s.onFailFunc == nil {
		return domain.Order{}, nil
	}
	return s.onFailFunc(ctx, transactionID)
}

func (s *stubReconciler) OnCancel(ctx context.Context, transactionID string) (domain.Order, error) {
	if s.onCancelFunc == nil {
		return domain.Order{}, nil
	}
	return s.onCancelFunc(ctx, transactionID)
}

func newPaymentRouter(reconciler services.PaymentReconciler, opts ...PaymentCallbackOption) chi.Router {
	handler := NewPaymentCallbackHandlers(reconciler, opts...)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)
	return router
}

func TestPaymentCallbackSuccessFormRedirects(t *testing.T) {
	reconciler := &stubReconciler{
		onSuccessFunc: func(ctx context.Context, transactionID string) (domain.Order, error) {
			if transactionID != "txn_order-1" {
				t.Fatalf("unexpected transaction %q", transactionID)
			}
			return domain.Order{ID: "order-1", Status: domain.OrderStatusConfirmed}, nil
		},
	}

	router := newPaymentRouter(reconciler, WithCallbackRedirects(
		"https://shop.example.com/checkout/success",
		"https://shop.example.com/checkout/fail",
		"https://shop.example.com/checkout/cancel",
	))

	form := url.Values{"tran_id": {"txn_order-1"}}
	req := httptest.NewRequest(http.MethodPost, "/payments/result/success", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d: %s", rr.Code, rr.Body.String())
	}
	location := rr.Header().Get("Location")
	if !strings.HasPrefix(location, "https://shop.example.com/checkout/success") {
		t.Fatalf("unexpected redirect %q", location)
	}
	if !strings.Contains(location, "orderId=order-1") {
		t.Fatalf("expected order ID on redirect, got %q", location)
	}
}

func TestPaymentCallbackJSONBody(t *testing.T) {
	reconciler := &stubReconciler{
		onFailFunc: func(ctx context.Context, transactionID string) (domain.Order, error) {
			if transactionID != "txn_order-2" {
				t.Fatalf("unexpected transaction %q", transactionID)
			}
			return domain.Order{ID: "order-2", Status: domain.OrderStatusCancelled, PaymentStatus: domain.PaymentStatusFailed}, nil
		},
	}

	router := newPaymentRouter(reconciler)

	req := httptest.NewRequest(http.MethodPost, "/payments/result/fail", strings.NewReader(`{"transactionId":"txn_order-2"}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Status != "cancelled" || resp.Order.PaymentStatus != "failed" {
		t.Fatalf("unexpected order payload: %+v", resp.Order)
	}
}

func TestPaymentCallbackQueryParameter(t *testing.T) {
	called := ""
	reconciler := &stubReconciler{
		onCancelFunc: func(ctx context.Context, transactionID string) (domain.Order, error) {
			called = transactionID
			return domain.Order{ID: "order-3", Status: domain.OrderStatusCancelled}, nil
		},
	}

	router := newPaymentRouter(reconciler)

	req := httptest.NewRequest(http.MethodGet, "/payments/result/cancel?transactionId=txn_order-3", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if called != "txn_order-3" {
		t.Fatalf("expected txn_order-3, got %q", called)
	}
}

func TestPaymentCallbackMissingTransaction(t *testing.T) {
	router := newPaymentRouter(&stubReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/payments/result/success", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentCallbackUnknownTransaction(t *testing.T) {
	reconciler := &stubReconciler{
		onSuccessFunc: func(ctx context.Context, transactionID string) (domain.Order, error) {
			return domain.Order{}, services.ErrPaymentUnknownTransaction
		},
	}

	router := newPaymentRouter(reconciler)

	req := httptest.NewRequest(http.MethodGet, "/payments/result/success?tran_id=txn_unknown", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "unknown_transaction" {
		t.Fatalf("unexpected error code %v", resp["error"])
	}
}

func TestPaymentCallbackRejectedStillRedirects(t *testing.T) {
	reconciler := &stubReconciler{
		onFailFunc: func(ctx context.Context, transactionID string) (domain.Order, error) {
			return domain.Order{}, services.ErrPaymentInvalidTransition
		},
	}

	router := newPaymentRouter(reconciler, WithCallbackRedirects(
		"https://shop.example.com/checkout/success",
		"https://shop.example.com/checkout/fail",
		"https://shop.example.com/checkout/cancel",
	))

	req := httptest.NewRequest(http.MethodGet, "/payments/result/fail?tran_id=txn_order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// The payer's browser lands on the outcome page even when reconciliation
	// rejects the callback.
	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d: %s", rr.Code, rr.Body.String())
	}
	if location := rr.Header().Get("Location"); location != "https://shop.example.com/checkout/fail" {
		t.Fatalf("unexpected redirect %q", location)
	}
}

func TestPaymentCallbackConflict(t *testing.T) {
	reconciler := &stubReconciler{
		onSuccessFunc: func(ctx context.Context, transactionID string) (domain.Order, error) {
			return domain.Order{}, services.ErrPaymentInvalidTransition
		},
	}

	router := newPaymentRouter(reconciler)

	req := httptest.NewRequest(http.MethodGet, "/payments/result/success?tran_id=txn_order-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
