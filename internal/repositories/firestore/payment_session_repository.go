package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bookable/api/internal/domain"
	pfirestore "github.com/bookable/api/internal/platform/firestore"
	"github.com/bookable/api/internal/repositories"
)

const paymentSessionCollection = "payment_sessions"

// PaymentSessionRepository stores gateway sessions keyed by transaction ID.
type PaymentSessionRepository struct {
	base *pfirestore.BaseRepository[paymentSessionDocument]
}

// NewPaymentSessionRepository constructs a Firestore-backed payment session repository.
func NewPaymentSessionRepository(provider *pfirestore.Provider) (*PaymentSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("payment session repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentSessionDocument](provider, paymentSessionCollection, nil, nil)
	return &PaymentSessionRepository{base: base}, nil
}

// Save upserts the session document. Recreating a session for the same order
// overwrites the previous attempt because the transaction ID is deterministic.
func (r *PaymentSessionRepository) Save(ctx context.Context, session domain.PaymentSession) error {
	if r == nil || r.base == nil {
		return errors.New("payment session repository not initialised")
	}
	txnID := strings.TrimSpace(session.TransactionID)
	if txnID == "" {
		return errors.New("payment session repository: transaction id is required")
	}

	doc := paymentSessionDocument{
		OrderID:     session.OrderID,
		UserID:      session.UserID,
		Provider:    session.Provider,
		Amount:      session.Amount,
		RedirectURL: session.RedirectURL,
		Payload:     session.Payload,
		CreatedAt:   session.CreatedAt.UTC(),
	}
	_, err := r.base.Set(ctx, txnID, doc)
	return err
}

// FindByTransactionID loads the session recorded for the given transaction ID.
func (r *PaymentSessionRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.PaymentSession, error) {
	if r == nil || r.base == nil {
		return domain.PaymentSession{}, errors.New("payment session repository not initialised")
	}
	txnID := strings.TrimSpace(transactionID)
	if txnID == "" {
		return domain.PaymentSession{}, errors.New("payment session repository: transaction id is required")
	}

	doc, err := r.base.Get(ctx, txnID)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	return domain.PaymentSession{
		TransactionID: doc.ID,
		OrderID:       doc.Data.OrderID,
		UserID:        doc.Data.UserID,
		Provider:      doc.Data.Provider,
		Amount:        doc.Data.Amount,
		RedirectURL:   doc.Data.RedirectURL,
		Payload:       doc.Data.Payload,
		CreatedAt:     doc.Data.CreatedAt,
	}, nil
}

type paymentSessionDocument struct {
	OrderID     string         `firestore:"orderId"`
	UserID      string         `firestore:"userId"`
	Provider    string         `firestore:"provider"`
	Amount      int64          `firestore:"amount"`
	RedirectURL string         `firestore:"redirectUrl,omitempty"`
	Payload     map[string]any `firestore:"payload,omitempty"`
	CreatedAt   time.Time      `firestore:"createdAt"`
}

var _ repositories.PaymentSessionRepository = (*PaymentSessionRepository)(nil)
