package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/bookable/api/internal/domain"
	"github.com/bookable/api/internal/repositories"
)

const maxReviewCommentLength = 2000

// ErrReviewInvalidInput indicates the caller supplied invalid input.
var ErrReviewInvalidInput = errors.New("review service: invalid input")

// ErrReviewNotFound indicates the referenced service or order does not exist.
var ErrReviewNotFound = errors.New("review service: not found")

// ErrReviewUnavailable indicates the review backend cannot fulfil the request.
var ErrReviewUnavailable = errors.New("review service: unavailable")

// ErrReviewOrderNotEligible indicates the referenced order does not entitle
// the user to review the service.
var ErrReviewOrderNotEligible = errors.New("review service: order not eligible for review")

var (
	errReviewReviewsRequired = errors.New("review service: reviews repository is required")
	errReviewCatalogRequired = errors.New("review service: catalog repository is required")
	errReviewOrdersRequired  = errors.New("review service: orders repository is required")
	errReviewUowRequired     = errors.New("review service: unit of work is required")
	errReviewClockRequired   = errors.New("review service: clock is required")
)

// ReviewServiceDeps wires review persistence and the catalog rating aggregate.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Catalog     repositories.CatalogRepository
	Orders      repositories.OrderRepository
	Uow         repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	MaxPageSize int
}

type reviewService struct {
	reviews     repositories.ReviewRepository
	catalog     repositories.CatalogRepository
	orders      repositories.OrderRepository
	uow         repositories.UnitOfWork
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
	policy      *bluemonday.Policy
	maxPageSize int
}

// NewReviewService constructs a ReviewService enforcing dependency validation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errReviewReviewsRequired
	}
	if deps.Catalog == nil {
		return nil, errReviewCatalogRequired
	}
	if deps.Orders == nil {
		return nil, errReviewOrdersRequired
	}
	if deps.Uow == nil {
		return nil, errReviewUowRequired
	}
	if deps.Clock == nil {
		return nil, errReviewClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	maxPageSize := deps.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 50
	}

	return &reviewService{
		reviews:     deps.Reviews,
		catalog:     deps.Catalog,
		orders:      deps.Orders,
		uow:         deps.Uow,
		now:         func() time.Time { return deps.Clock().UTC() },
		newID:       idGen,
		logger:      logger,
		policy:      bluemonday.StrictPolicy(),
		maxPageSize: maxPageSize,
	}, nil
}

// Create records a review and folds the rating into the service's aggregate
// in the same transaction.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (domain.Review, error) {
	if s == nil || s.reviews == nil {
		return domain.Review{}, ErrReviewUnavailable
	}

	serviceID := strings.TrimSpace(cmd.ServiceID)
	uid := strings.TrimSpace(cmd.UserID)
	if serviceID == "" || uid == "" {
		return domain.Review{}, ErrReviewInvalidInput
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return domain.Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}

	comment := s.sanitizeComment(cmd.Comment)
	if len(comment) > maxReviewCommentLength {
		return domain.Review{}, fmt.Errorf("%w: comment exceeds %d characters", ErrReviewInvalidInput, maxReviewCommentLength)
	}

	var orderRef *string
	if ref := strings.TrimSpace(cmd.OrderRef); ref != "" {
		if err := s.verifyOrder(ctx, ref, uid); err != nil {
			return domain.Review{}, err
		}
		orderRef = &ref
	}

	var review domain.Review
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		svc, err := s.catalog.FindByID(ctx, serviceID)
		if err != nil {
			return s.translateRepoError(err)
		}

		review = domain.Review{
			ID:        s.newID(),
			ServiceID: svc.ID,
			UserID:    uid,
			OrderRef:  orderRef,
			Rating:    cmd.Rating,
			Comment:   comment,
			CreatedAt: s.now(),
		}
		if err := s.reviews.Insert(ctx, review); err != nil {
			return s.translateRepoError(err)
		}

		total := svc.AverageRating*float64(svc.RatingCount) + float64(cmd.Rating)
		svc.RatingCount++
		svc.AverageRating = total / float64(svc.RatingCount)
		svc.UpdatedAt = review.CreatedAt
		if err := s.catalog.Update(ctx, svc); err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrReviewNotFound) || errors.Is(err, ErrReviewUnavailable) {
			return domain.Review{}, err
		}
		return domain.Review{}, s.translateRepoError(err)
	}

	s.logger(ctx, "reviews.created", map[string]any{
		"reviewId":  review.ID,
		"serviceId": serviceID,
		"userId":    uid,
		"rating":    cmd.Rating,
	})
	return review, nil
}

// ListByService returns reviews for a service, newest first.
func (s *reviewService) ListByService(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error) {
	if s == nil || s.reviews == nil {
		return nil, ErrReviewUnavailable
	}

	id := strings.TrimSpace(serviceID)
	if id == "" {
		return nil, ErrReviewInvalidInput
	}

	if pager.Limit <= 0 || pager.Limit > s.maxPageSize {
		pager.Limit = s.maxPageSize
	}
	if pager.Offset < 0 {
		pager.Offset = 0
	}

	if _, err := s.catalog.FindByID(ctx, id); err != nil {
		return nil, s.translateRepoError(err)
	}

	reviews, err := s.reviews.ListByService(ctx, id, pager)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return reviews, nil
}

// verifyOrder checks the referenced order belongs to the reviewer and has
// completed fulfilment.
func (s *reviewService) verifyOrder(ctx context.Context, orderID, userID string) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: order %s", ErrReviewNotFound, orderID)
		}
		return ErrReviewUnavailable
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %s", ErrReviewNotFound, orderID)
	}
	if order.Status != domain.OrderStatusCompleted {
		return fmt.Errorf("%w: order %s is %s", ErrReviewOrderNotEligible, orderID, order.Status)
	}
	return nil
}

// sanitizeComment strips all markup and collapses surrounding whitespace.
// The policy escapes entities, so unescape afterwards to keep plain text
// characters like ampersands intact.
func (s *reviewService) sanitizeComment(comment string) string {
	cleaned := s.policy.Sanitize(comment)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func (s *reviewService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrReviewNotFound
	}
	return ErrReviewUnavailable
}
