package repository

import (
	"context"

	"github.com/baharkarakas/pixelmart/internal/models"
)

// Lookups that miss return an error satisfying errors.Is(err, errors.NotFound)
// from github.com/juju/errors.

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]models.User, error)
}

type Items interface {
	Create(ctx context.Context, it models.Item) (models.Item, error)
	// GetByID and GetMany return soft-deleted rows too; callers decide.
	GetByID(ctx context.Context, id string) (models.Item, error)
	GetMany(ctx context.Context, ids []string) (map[string]models.Item, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Item, error)
	UpdatePrice(ctx context.Context, id string, price int64, priceHandle string) error
	SetVisibility(ctx context.Context, ownerID string, ids []string, isPublic bool) (int64, error)
	SoftDelete(ctx context.Context, ownerID string, ids []string) (int64, error)
}

type Settlements interface {
	// Create stores the record with its items and payouts in one transaction.
	Create(ctx context.Context, s models.Settlement) (models.Settlement, error)
	GetByID(ctx context.Context, id string) (models.Settlement, error)
	GetByCorrelationToken(ctx context.Context, token string) (models.Settlement, error)

	// AttachSession sets the session reference once; a second call fails with
	// errors.AlreadyExists.
	AttachSession(ctx context.Context, id, sessionID string) error

	// MarkPaid flips paymentCompleted from false to true for the record matching
	// token and sessionID. It reports whether this call made the change.
	MarkPaid(ctx context.Context, token, sessionID string) (bool, error)

	// RecordTransfers stores the outcome of the disbursement fan-out.
	RecordTransfers(ctx context.Context, id string, failed []string) (models.Settlement, error)

	// ClaimFailedTransfer marks sellerID's failed leg as held by one retrier.
	// It reports false when the leg is not failed or another caller holds it.
	ClaimFailedTransfer(ctx context.Context, id, sellerID string) (bool, error)
	// ReleaseTransferClaim returns a claimed leg to the failed set untouched.
	ReleaseTransferClaim(ctx context.Context, id, sellerID string) error

	// ClearFailedTransfer removes sellerID from the failed set and drops any
	// claim on it; when the set empties transferCompleted becomes true.
	ClearFailedTransfer(ctx context.Context, id, sellerID string) (models.Settlement, error)

	ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]models.Settlement, error)
	ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]models.Settlement, error)
	// ListOutstanding returns paid records whose transfers are not complete.
	ListOutstanding(ctx context.Context, limit int) ([]models.Settlement, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// TxRunner runs fn against repositories bound to a single database transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Repositories) error) error
}

type Repositories struct {
	Users       Users
	Items       Items
	Settlements Settlements
	AuditLogs   AuditLogs

	// Tx is nil on repositories handed to a WithTx callback.
	Tx TxRunner
}
