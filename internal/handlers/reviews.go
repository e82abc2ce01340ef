package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/platform/auth"
	"github.com/bookable/api/internal/platform/httpx"
	"github.com/bookable/api/internal/services"
)

const maxReviewBodySize = 16 * 1024

// ReviewHandlers exposes review listing and creation nested under services.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs the review endpoints.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes wires review endpoints under /{serviceID}/reviews on the services
// group. Listing is public; creation requires authentication.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{serviceID}/reviews", h.listReviews)
	if h.authn != nil {
		r.With(h.authn.RequireAuth()).Post("/{serviceID}/reviews", h.createReview)
	} else {
		r.Post("/{serviceID}/reviews", h.createReview)
	}
}

type reviewPayload struct {
	ID        string  `json:"id"`
	ServiceID string  `json:"serviceId"`
	UserID    string  `json:"userId"`
	OrderRef  *string `json:"orderRef,omitempty"`
	Rating    int     `json:"rating"`
	Comment   string  `json:"comment,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

type createReviewRequest struct {
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	OrderRef string `json:"orderRef"`
}

func buildReviewPayload(review domain.Review) reviewPayload {
	return reviewPayload{
		ID:        review.ID,
		ServiceID: review.ServiceID,
		UserID:    review.UserID,
		OrderRef:  review.OrderRef,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: formatTime(review.CreatedAt),
	}
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
		return
	}

	reviews, err := h.reviews.ListByService(ctx, chi.URLParam(r, "serviceID"), parsePagination(r))
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}

	items := make([]reviewPayload, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"reviews": items})
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxReviewBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req createReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	review, err := h.reviews.Create(ctx, services.CreateReviewCommand{
		ServiceID: chi.URLParam(r, "serviceID"),
		UserID:    identity.UID,
		OrderRef:  req.OrderRef,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"review": buildReviewPayload(review)})
}

func (h *ReviewHandlers) writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewOrderNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_eligible", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "service or order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
