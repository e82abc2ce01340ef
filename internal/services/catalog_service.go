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

const (
	maxServiceTitleLength       = 200
	maxServiceDescriptionLength = 4000
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested catalog entry does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

var (
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

// CatalogServiceDeps wires the dependencies for catalog operations.
type CatalogServiceDeps struct {
	Repository  repositories.CatalogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	MaxPageSize int
}

type catalogService struct {
	repo        repositories.CatalogRepository
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
	maxPageSize int
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	maxPageSize := deps.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 50
	}

	return &catalogService{
		repo:        deps.Repository,
		now:         func() time.Time { return deps.Clock().UTC() },
		newID:       idGen,
		logger:      logger,
		maxPageSize: maxPageSize,
	}, nil
}

// List returns catalog entries ordered per the filter, capping the page size.
func (s *catalogService) List(ctx context.Context, filter CatalogListFilter) ([]domain.Service, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}

	pager := filter.Pager
	if pager.Limit <= 0 || pager.Limit > s.maxPageSize {
		pager.Limit = s.maxPageSize
	}
	if pager.Offset < 0 {
		pager.Offset = 0
	}

	sort := filter.Sort
	switch sort {
	case domain.ServiceSortRating, domain.ServiceSortPrice, domain.ServiceSortCreatedAt:
	case "":
		sort = domain.ServiceSortCreatedAt
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrCatalogInvalidInput, string(sort))
	}

	services, err := s.repo.List(ctx, repositories.ServiceListFilter{Sort: sort, Pager: pager})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return services, nil
}

// Get loads a single catalog entry.
func (s *catalogService) Get(ctx context.Context, serviceID string) (domain.Service, error) {
	if s == nil || s.repo == nil {
		return domain.Service{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return domain.Service{}, ErrCatalogInvalidInput
	}

	svc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Service{}, s.translateRepoError(err)
	}
	return svc, nil
}

// Create validates and persists a new catalog entry.
func (s *catalogService) Create(ctx context.Context, cmd UpsertServiceCommand) (domain.Service, error) {
	if s == nil || s.repo == nil {
		return domain.Service{}, ErrCatalogUnavailable
	}
	if err := validateServiceCommand(cmd); err != nil {
		return domain.Service{}, err
	}

	now := s.now()
	svc := domain.Service{
		ID:              s.newID(),
		Title:           strings.TrimSpace(cmd.Title),
		Description:     strings.TrimSpace(cmd.Description),
		Price:           cmd.Price,
		DurationMinutes: cmd.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, svc); err != nil {
		return domain.Service{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.service.created", map[string]any{
		"serviceId": svc.ID,
		"price":     svc.Price,
	})
	return svc, nil
}

// Update overwrites the mutable fields of an existing catalog entry. Rating
// aggregates are preserved.
func (s *catalogService) Update(ctx context.Context, serviceID string, cmd UpsertServiceCommand) (domain.Service, error) {
	if s == nil || s.repo == nil {
		return domain.Service{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return domain.Service{}, ErrCatalogInvalidInput
	}
	if err := validateServiceCommand(cmd); err != nil {
		return domain.Service{}, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Service{}, s.translateRepoError(err)
	}

	existing.Title = strings.TrimSpace(cmd.Title)
	existing.Description = strings.TrimSpace(cmd.Description)
	existing.Price = cmd.Price
	existing.DurationMinutes = cmd.DurationMinutes
	existing.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, existing); err != nil {
		return domain.Service{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.service.updated", map[string]any{
		"serviceId": existing.ID,
	})
	return existing, nil
}

// Delete removes the catalog entry. Cart items referencing it fail conversion;
// order snapshots keep their copies.
func (s *catalogService) Delete(ctx context.Context, serviceID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return ErrCatalogInvalidInput
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return s.translateRepoError(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.service.deleted", map[string]any{
		"serviceId": id,
	})
	return nil
}

func validateServiceCommand(cmd UpsertServiceCommand) error {
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	if len(title) > maxServiceTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrCatalogInvalidInput, maxServiceTitleLength)
	}
	if len(cmd.Description) > maxServiceDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrCatalogInvalidInput, maxServiceDescriptionLength)
	}
	if cmd.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if cmd.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrCatalogInvalidInput)
	}
	return nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrCatalogNotFound
	}
	return ErrCatalogUnavailable
}
