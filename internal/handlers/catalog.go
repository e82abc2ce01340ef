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

const maxCatalogBodySize = 32 * 1024

// CatalogHandlers exposes public browsing and admin management of the
// service catalog.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the catalog endpoints.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// PublicRoutes wires unauthenticated catalog browsing.
func (h *CatalogHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listServices)
	r.Get("/{serviceID}", h.getService)
}

// AdminRoutes wires catalog management behind the admin role.
func (h *CatalogHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Post("/", h.createService)
	r.Put("/{serviceID}", h.updateService)
	r.Delete("/{serviceID}", h.deleteService)
}

type servicePayload struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Price           int64   `json:"price"`
	DurationMinutes int     `json:"durationMinutes,omitempty"`
	AverageRating   float64 `json:"averageRating"`
	RatingCount     int     `json:"ratingCount"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

type upsertServiceRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Price           int64  `json:"price"`
	DurationMinutes int    `json:"durationMinutes"`
}

func buildServicePayload(svc domain.Service) servicePayload {
	return servicePayload{
		ID:              svc.ID,
		Title:           svc.Title,
		Description:     svc.Description,
		Price:           svc.Price,
		DurationMinutes: svc.DurationMinutes,
		AverageRating:   svc.AverageRating,
		RatingCount:     svc.RatingCount,
		CreatedAt:       formatTime(svc.CreatedAt),
		UpdatedAt:       formatTime(svc.UpdatedAt),
	}
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := services.CatalogListFilter{
		Sort:  domain.ServiceSort(strings.TrimSpace(r.URL.Query().Get("sort"))),
		Pager: parsePagination(r),
	}

	list, err := h.catalog.List(ctx, filter)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	items := make([]servicePayload, 0, len(list))
	for _, svc := range list {
		items = append(items, buildServicePayload(svc))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"services": items})
}

func (h *CatalogHandlers) getService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	svc, err := h.catalog.Get(ctx, chi.URLParam(r, "serviceID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"service": buildServicePayload(svc)})
}

func (h *CatalogHandlers) createService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd, ok := h.decodeUpsertCommand(ctx, w, r)
	if !ok {
		return
	}

	svc, err := h.catalog.Create(ctx, cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"service": buildServicePayload(svc)})
}

func (h *CatalogHandlers) updateService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd, ok := h.decodeUpsertCommand(ctx, w, r)
	if !ok {
		return
	}

	svc, err := h.catalog.Update(ctx, chi.URLParam(r, "serviceID"), cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"service": buildServicePayload(svc)})
}

func (h *CatalogHandlers) deleteService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.Delete(ctx, chi.URLParam(r, "serviceID")); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) decodeUpsertCommand(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.UpsertServiceCommand, bool) {
	body, err := readLimitedBody(r, maxCatalogBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return services.UpsertServiceCommand{}, false
	}

	var req upsertServiceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return services.UpsertServiceCommand{}, false
	}

	return services.UpsertServiceCommand{
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
	}, true
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", "service not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
