package donation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/platform/db"
)

const uniqueTransactionConstraint = "uq_donations_transaction"

// TxRepository exposes donation persistence with read access to the ledger.
type TxRepository interface {
	Ledger() ledger.TxRepository
	CostCenterDonationEligible(ctx context.Context, costCenterID int64) (bool, error)
	ExistsForTransaction(ctx context.Context, transactionID int64) (bool, error)
	InsertDonation(ctx context.Context, d Donation) (Donation, error)
}

// Repository persists donations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("donation repository not initialised")
	}
	return db.WithRetryTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return r.ledger
}

func (r *txRepository) CostCenterDonationEligible(ctx context.Context, costCenterID int64) (bool, error) {
	var eligible bool
	err := r.tx.QueryRow(ctx, `SELECT donation_eligible FROM cost_centers WHERE id=$1`, costCenterID).Scan(&eligible)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, budget.ErrCostCenterNotFound
	}
	return eligible, err
}

func (r *txRepository) ExistsForTransaction(ctx context.Context, transactionID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM donations WHERE transaction_id=$1)`, transactionID).Scan(&exists)
	return exists, err
}

// InsertDonation relies on the unique index to reject a concurrent duplicate.
func (r *txRepository) InsertDonation(ctx context.Context, d Donation) (Donation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO donations
(transaction_id, user_id, processor_id, donation_date, description, amount, type, receipt_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
RETURNING id, created_at`,
		d.TransactionID, d.UserID, d.ProcessorID, d.Date, d.Description, d.Amount, d.Type, d.ReceiptID,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueTransactionConstraint) {
			return Donation{}, ErrDonationExists
		}
		return Donation{}, err
	}
	return d, nil
}
