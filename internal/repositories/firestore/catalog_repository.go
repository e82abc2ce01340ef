package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bookable/api/internal/domain"
	pfirestore "github.com/bookable/api/internal/platform/firestore"
	"github.com/bookable/api/internal/repositories"
)

const serviceCollection = "services"

// CatalogRepository persists bookable service offerings within Firestore.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[serviceDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[serviceDocument](provider, serviceCollection, nil, nil)
	return &CatalogRepository{base: base}, nil
}

// Insert persists a new catalog entry.
func (r *CatalogRepository) Insert(ctx context.Context, svc domain.Service) error {
	if r == nil || r.base == nil {
		return errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(svc.ID)
	if id == "" {
		return errors.New("catalog repository: service id is required")
	}
	_, err := r.base.Set(ctx, id, encodeService(svc))
	return err
}

// Update overwrites an existing catalog entry.
func (r *CatalogRepository) Update(ctx context.Context, svc domain.Service) error {
	return r.Insert(ctx, svc)
}

// Delete removes the catalog entry. Existing order items keep their snapshots.
func (r *CatalogRepository) Delete(ctx context.Context, serviceID string) error {
	if r == nil || r.base == nil {
		return errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return errors.New("catalog repository: service id is required")
	}
	return r.base.Delete(ctx, id)
}

// FindByID loads a single catalog entry.
func (r *CatalogRepository) FindByID(ctx context.Context, serviceID string) (domain.Service, error) {
	if r == nil || r.base == nil {
		return domain.Service{}, errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return domain.Service{}, errors.New("catalog repository: service id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Service{}, err
	}
	return decodeService(doc.ID, doc.Data), nil
}

// List returns catalog entries ordered per the filter.
func (r *CatalogRepository) List(ctx context.Context, filter repositories.ServiceListFilter) ([]domain.Service, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		switch filter.Sort {
		case domain.ServiceSortRating:
			query = query.OrderBy("averageRating", firestore.Desc)
		case domain.ServiceSortPrice:
			query = query.OrderBy("price", firestore.Asc)
		default:
			query = query.OrderBy("createdAt", firestore.Desc)
		}
		if filter.Pager.Offset > 0 {
			query = query.Offset(filter.Pager.Offset)
		}
		if filter.Pager.Limit > 0 {
			query = query.Limit(filter.Pager.Limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	services := make([]domain.Service, 0, len(docs))
	for _, doc := range docs {
		services = append(services, decodeService(doc.ID, doc.Data))
	}
	return services, nil
}

func encodeService(svc domain.Service) serviceDocument {
	return serviceDocument{
		Title:           strings.TrimSpace(svc.Title),
		Description:     svc.Description,
		Price:           svc.Price,
		DurationMinutes: svc.DurationMinutes,
		AverageRating:   svc.AverageRating,
		RatingCount:     svc.RatingCount,
		CreatedAt:       svc.CreatedAt.UTC(),
		UpdatedAt:       svc.UpdatedAt.UTC(),
	}
}

func decodeService(id string, doc serviceDocument) domain.Service {
	return domain.Service{
		ID:              id,
		Title:           doc.Title,
		Description:     doc.Description,
		Price:           doc.Price,
		DurationMinutes: doc.DurationMinutes,
		AverageRating:   doc.AverageRating,
		RatingCount:     doc.RatingCount,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

type serviceDocument struct {
	Title           string    `firestore:"title"`
	Description     string    `firestore:"description,omitempty"`
	Price           int64     `firestore:"price"`
	DurationMinutes int       `firestore:"durationMinutes"`
	AverageRating   float64   `firestore:"averageRating"`
	RatingCount     int       `firestore:"ratingCount"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
