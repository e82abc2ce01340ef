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

const reviewCollection = "reviews"

// ReviewRepository persists service reviews in a flat collection keyed by
// review ID with the service ID indexed for listing.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection, nil, nil)
	return &ReviewRepository{base: base}, nil
}

// Insert persists a new review.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	if strings.TrimSpace(review.ServiceID) == "" {
		return errors.New("review repository: service id is required")
	}

	doc := reviewDocument{
		ServiceID: review.ServiceID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt.UTC(),
	}
	if review.OrderRef != nil {
		ref := strings.TrimSpace(*review.OrderRef)
		if ref != "" {
			doc.OrderRef = &ref
		}
	}

	_, err := r.base.Set(ctx, id, doc)
	return err
}

// FindByID loads a review and verifies it belongs to the given service.
func (r *ReviewRepository) FindByID(ctx context.Context, serviceID, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	if strings.TrimSpace(serviceID) != "" && doc.Data.ServiceID != strings.TrimSpace(serviceID) {
		return domain.Review{}, pfirestore.NewNotFound("reviews.get", errNotFoundForService)
	}
	return decodeReview(doc.ID, doc.Data), nil
}

// ListByService returns reviews for the service, newest first.
func (r *ReviewRepository) ListByService(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("review repository not initialised")
	}
	sid := strings.TrimSpace(serviceID)
	if sid == "" {
		return nil, errors.New("review repository: service id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("serviceId", "==", sid).OrderBy("createdAt", firestore.Desc)
		if pager.Offset > 0 {
			query = query.Offset(pager.Offset)
		}
		if pager.Limit > 0 {
			query = query.Limit(pager.Limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, decodeReview(doc.ID, doc.Data))
	}
	return reviews, nil
}

var errNotFoundForService = errors.New("review does not belong to service")

func decodeReview(id string, doc reviewDocument) domain.Review {
	review := domain.Review{
		ID:        id,
		ServiceID: doc.ServiceID,
		UserID:    doc.UserID,
		Rating:    doc.Rating,
		Comment:   doc.Comment,
		CreatedAt: doc.CreatedAt,
	}
	if doc.OrderRef != nil {
		ref := *doc.OrderRef
		review.OrderRef = &ref
	}
	return review
}

type reviewDocument struct {
	ServiceID string    `firestore:"serviceId"`
	UserID    string    `firestore:"userId"`
	OrderRef  *string   `firestore:"orderRef,omitempty"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
