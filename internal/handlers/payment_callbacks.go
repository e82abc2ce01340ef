package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/platform/httpx"
	"github.com/bookable/api/internal/services"
)

const maxCallbackBodySize = 8 * 1024

// PaymentCallbackHandlers receives gateway redirects and server callbacks.
// The endpoints are unauthenticated; the transaction ID is the only
// correlation the gateway carries back.
type PaymentCallbackHandlers struct {
	reconciler      services.PaymentReconciler
	successRedirect string
	failRedirect    string
	cancelRedirect  string
	logger          func(context.Context, string, map[string]any)
}

// PaymentCallbackOption customises callback handling.
type PaymentCallbackOption func(*PaymentCallbackHandlers)

// WithCallbackRedirects sets the browser destinations after reconciliation.
func WithCallbackRedirects(success, fail, cancel string) PaymentCallbackOption {
	return func(h *PaymentCallbackHandlers) {
		h.successRedirect = strings.TrimSpace(success)
		h.failRedirect = strings.TrimSpace(fail)
		h.cancelRedirect = strings.TrimSpace(cancel)
	}
}

// WithCallbackLogger wires structured callback logging.
func WithCallbackLogger(logger func(context.Context, string, map[string]any)) PaymentCallbackOption {
	return func(h *PaymentCallbackHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewPaymentCallbackHandlers constructs the gateway callback endpoints.
func NewPaymentCallbackHandlers(reconciler services.PaymentReconciler, opts ...PaymentCallbackOption) *PaymentCallbackHandlers {
	h := &PaymentCallbackHandlers{
		reconciler: reconciler,
		logger:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /payments endpoints onto the provided router. Gateways
// differ in whether they POST or redirect the payer's browser, so both
// methods are accepted.
func (h *PaymentCallbackHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/result/success", h.onSuccess)
	r.Get("/result/success", h.onSuccess)
	r.Post("/result/fail", h.onFail)
	r.Get("/result/fail", h.onFail)
	r.Post("/result/cancel", h.onCancel)
	r.Get("/result/cancel", h.onCancel)
}

func (h *PaymentCallbackHandlers) onSuccess(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "success", h.successRedirect, func(ctx context.Context, txn string) (domain.Order, error) {
		return h.reconciler.OnSuccess(ctx, txn)
	})
}

func (h *PaymentCallbackHandlers) onFail(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "fail", h.failRedirect, func(ctx context.Context, txn string) (domain.Order, error) {
		return h.reconciler.OnFail(ctx, txn)
	})
}

func (h *PaymentCallbackHandlers) onCancel(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "cancel", h.cancelRedirect, func(ctx context.Context, txn string) (domain.Order, error) {
		return h.reconciler.OnCancel(ctx, txn)
	})
}

func (h *PaymentCallbackHandlers) handle(w http.ResponseWriter, r *http.Request, outcome, redirect string, apply func(context.Context, string) (domain.Order, error)) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment reconciliation is unavailable", http.StatusServiceUnavailable))
		return
	}

	txn := extractTransactionID(r)
	if txn == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transaction ID is required", http.StatusBadRequest))
		return
	}

	order, err := apply(ctx, txn)
	if err != nil {
		h.logger(ctx, "payments.callback.rejected", map[string]any{
			"outcome":       outcome,
			"transactionId": txn,
			"error":         err.Error(),
		})
		// A payer's browser must land on the outcome page even when the
		// reconciliation is rejected. The JSON error is kept for
		// server-to-server calls with no redirect configured.
		if redirect != "" {
			http.Redirect(w, r, redirect, http.StatusFound)
			return
		}
		h.writeCallbackError(ctx, w, err)
		return
	}

	h.logger(ctx, "payments.callback.processed", map[string]any{
		"outcome":       outcome,
		"transactionId": txn,
		"orderId":       order.ID,
		"status":        string(order.Status),
	})

	if redirect != "" {
		http.Redirect(w, r, redirectWithOrder(redirect, order.ID), http.StatusFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

// extractTransactionID accepts the JSON body field, classic form field names
// and a query parameter, in that order.
func extractTransactionID(r *http.Request) string {
	if r == nil {
		return ""
	}

	if r.Method == http.MethodPost && r.Body != nil {
		contentType := r.Header.Get("Content-Type")
		switch {
		case strings.Contains(contentType, "application/json"):
			var payload struct {
				TransactionID string `json:"transactionId"`
			}
			body, err := readLimitedBody(r, maxCallbackBodySize)
			if err == nil && json.Unmarshal(body, &payload) == nil {
				if txn := strings.TrimSpace(payload.TransactionID); txn != "" {
					return txn
				}
			}
		default:
			if err := r.ParseForm(); err == nil {
				for _, key := range []string{"transactionId", "transaction_id", "tran_id"} {
					if txn := strings.TrimSpace(r.PostFormValue(key)); txn != "" {
						return txn
					}
				}
			}
		}
	}

	for _, key := range []string{"transactionId", "transaction_id", "tran_id"} {
		if txn := strings.TrimSpace(r.URL.Query().Get(key)); txn != "" {
			return txn
		}
	}
	return ""
}

func redirectWithOrder(base, orderID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *PaymentCallbackHandlers) writeCallbackError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentUnknownTransaction):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_transaction", "transaction does not resolve to an order", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment reconciliation is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
