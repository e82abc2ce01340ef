package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bookable/api/internal/domain"
)

type stubReviewRepository struct {
	insert        func(ctx context.Context, review domain.Review) error
	findByID      func(ctx context.Context, serviceID, reviewID string) (domain.Review, error)
	listByService func(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error)
}

func (s *stubReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, review)
}

func (s *stubReviewRepository) FindByID(ctx context.Context, serviceID, reviewID string) (domain.Review, error) {
	if s.findByID == nil {
		return domain.Review{}, stubRepoError{notFound: true}
	}
	return s.findByID(ctx, serviceID, reviewID)
}

func (s *stubReviewRepository) ListByService(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error) {
	if s.listByService == nil {
		return nil, nil
	}
	return s.listByService(ctx, serviceID, pager)
}

type reviewFixture struct {
	reviews *stubReviewRepository
	catalog *stubCatalogRepository
	orders  *stubOrderRepository
}

func newTestReviewService(t *testing.T, fx *reviewFixture) ReviewService {
	t.Helper()

	if fx.reviews == nil {
		fx.reviews = &stubReviewRepository{}
	}
	if fx.catalog == nil {
		fx.catalog = &stubCatalogRepository{}
	}
	if fx.orders == nil {
		fx.orders = &stubOrderRepository{}
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     fx.reviews,
		Catalog:     fx.catalog,
		Orders:      fx.orders,
		Uow:         &stubUnitOfWork{},
		Clock:       fixedClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "review-1" },
	})
	if err != nil {
		t.Fatalf("NewReviewService returned error: %v", err)
	}
	return svc
}

func TestCreateReviewUpdatesRatingAggregate(t *testing.T) {
	var updatedService *domain.Service
	fx := &reviewFixture{
		catalog: &stubCatalogRepository{
			findByID: func(ctx context.Context, serviceID string) (domain.Service, error) {
				return domain.Service{
					ID:            serviceID,
					Title:         "Deep clean",
					AverageRating: 4.0,
					RatingCount:   3,
				}, nil
			},
			update: func(ctx context.Context, svc domain.Service) error {
				updatedService = &svc
				return nil
			},
		},
	}

	svc := newTestReviewService(t, fx)

	review, err := svc.Create(context.Background(), CreateReviewCommand{
		ServiceID: "svc-1",
		UserID:    "user-1",
		Rating:    5,
		Comment:   "Great work",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if review.Rating != 5 || review.ServiceID != "svc-1" {
		t.Errorf("unexpected review: %+v", review)
	}
	if updatedService == nil {
		t.Fatal("expected the service aggregate to be updated")
	}
	if updatedService.RatingCount != 4 {
		t.Errorf("expected rating count 4, got %d", updatedService.RatingCount)
	}
	if want := (4.0*3 + 5) / 4; updatedService.AverageRating != want {
		t.Errorf("expected average %.3f, got %.3f", want, updatedService.AverageRating)
	}
}

func TestCreateReviewValidatesRating(t *testing.T) {
	svc := newTestReviewService(t, &reviewFixture{})

	for _, rating := range []int{0, -1, 6} {
		_, err := svc.Create(context.Background(), CreateReviewCommand{
			ServiceID: "svc-1",
			UserID:    "user-1",
			Rating:    rating,
		})
		if !errors.Is(err, ErrReviewInvalidInput) {
			t.Errorf("rating %d: expected ErrReviewInvalidInput, got %v", rating, err)
		}
	}
}

func TestCreateReviewStripsMarkup(t *testing.T) {
	var inserted *domain.Review
	fx := &reviewFixture{
		reviews: &stubReviewRepository{
			insert: func(ctx context.Context, review domain.Review) error {
				inserted = &review
				return nil
			},
		},
	}

	svc := newTestReviewService(t, fx)

	_, err := svc.Create(context.Background(), CreateReviewCommand{
		ServiceID: "svc-1",
		UserID:    "user-1",
		Rating:    4,
		Comment:   `  <script>alert("x")</script>Solid & on time  `,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if inserted == nil {
		t.Fatal("expected the review to be persisted")
	}
	if inserted.Comment != "Solid & on time" {
		t.Errorf("unexpected sanitised comment %q", inserted.Comment)
	}
}

func TestCreateReviewVerifiesOrderReference(t *testing.T) {
	cases := []struct {
		name    string
		order   domain.Order
		wantErr error
	}{
		{
			"foreign order",
			domain.Order{ID: "order-1", UserID: "other", Status: domain.OrderStatusCompleted},
			ErrReviewNotFound,
		},
		{
			"order not completed",
			domain.Order{ID: "order-1", UserID: "user-1", Status: domain.OrderStatusConfirmed},
			ErrReviewOrderNotEligible,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := &reviewFixture{
				orders: &stubOrderRepository{
					findByID: func(ctx context.Context, orderID string) (domain.Order, error) {
						return tc.order, nil
					},
				},
			}

			svc := newTestReviewService(t, fx)

			_, err := svc.Create(context.Background(), CreateReviewCommand{
				ServiceID: "svc-1",
				UserID:    "user-1",
				OrderRef:  "order-1",
				Rating:    5,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateReviewAcceptsCompletedOrder(t *testing.T) {
	var inserted *domain.Review
	fx := &reviewFixture{
		orders: &stubOrderRepository{
			findByID: func(ctx context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusCompleted}, nil
			},
		},
		reviews: &stubReviewRepository{
			insert: func(ctx context.Context, review domain.Review) error {
				inserted = &review
				return nil
			},
		},
	}

	svc := newTestReviewService(t, fx)

	_, err := svc.Create(context.Background(), CreateReviewCommand{
		ServiceID: "svc-1",
		UserID:    "user-1",
		OrderRef:  "order-1",
		Rating:    5,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if inserted == nil || inserted.OrderRef == nil || *inserted.OrderRef != "order-1" {
		t.Fatalf("expected the order reference to be stored, got %+v", inserted)
	}
}

func TestListReviewsUnknownService(t *testing.T) {
	fx := &reviewFixture{
		catalog: &stubCatalogRepository{
			findByID: func(ctx context.Context, serviceID string) (domain.Service, error) {
				return domain.Service{}, stubRepoError{notFound: true}
			},
		},
	}

	svc := newTestReviewService(t, fx)

	_, err := svc.ListByService(context.Background(), "svc-missing", domain.Pagination{})
	if !errors.Is(err, ErrReviewNotFound) {
		t.Fatalf("expected ErrReviewNotFound, got %v", err)
	}
}

func TestListReviewsCapsPageSize(t *testing.T) {
	var seen domain.Pagination
	fx := &reviewFixture{
		reviews: &stubReviewRepository{
			listByService: func(ctx context.Context, serviceID string, pager domain.Pagination) ([]domain.Review, error) {
				seen = pager
				return nil, nil
			},
		},
	}

	svc := newTestReviewService(t, fx)

	reviews, err := svc.ListByService(context.Background(), "svc-1", domain.Pagination{Limit: 500, Offset: -3})
	if err != nil {
		t.Fatalf("ListByService returned error: %v", err)
	}
	if seen.Limit != 50 || seen.Offset != 0 {
		t.Errorf("expected capped pager, got %+v", seen)
	}
	if reviews == nil {
		t.Error("expected an empty slice, got nil")
	}
}
