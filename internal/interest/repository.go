package interest

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/platform/db"
)

// TxRepository exposes due persistence together with the ledger queries of the
// same unit of work.
type TxRepository interface {
	Ledger() ledger.TxRepository
	InsertDue(ctx context.Context, in DueInput) (Due, error)
	GetDueForUpdate(ctx context.Context, id int64) (Due, error)
	MarkDuePaid(ctx context.Context, id int64, paidAt time.Time) error
	ListUnbilledDues(ctx context.Context, lock bool) ([]Due, error)
	RecordBilling(ctx context.Context, marks []BillingMark) error
}

// Repository persists dues in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a transaction shared with the ledger queries.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("interest repository not initialised")
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

const dueColumns = `d.id, d.account_id, d.amount, d.due_date, d.description, d.paid, d.paid_at, d.billed_through,
d.interest_billed, a.interest_eligible, d.created_at`

func scanDue(row pgx.Row) (Due, error) {
	var d Due
	err := row.Scan(&d.ID, &d.AccountID, &d.Amount, &d.DueDate, &d.Description, &d.Paid, &d.PaidAt,
		&d.BilledThrough, &d.InterestBilled, &d.InterestEligible, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Due{}, ErrDueNotFound
		}
		return Due{}, err
	}
	return d, nil
}

func (r *txRepository) InsertDue(ctx context.Context, in DueInput) (Due, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO dues (account_id, amount, due_date, description, paid, interest_billed, created_at)
VALUES ($1, $2, $3, $4, FALSE, FALSE, NOW())
RETURNING id`, in.AccountID, in.Amount, in.DueDate, in.Description).Scan(&id)
	if err != nil {
		return Due{}, err
	}
	return scanDue(r.tx.QueryRow(ctx, `SELECT `+dueColumns+` FROM dues d JOIN accounts a ON a.id = d.account_id WHERE d.id=$1`, id))
}

func (r *txRepository) GetDueForUpdate(ctx context.Context, id int64) (Due, error) {
	return scanDue(r.tx.QueryRow(ctx, `SELECT `+dueColumns+`
FROM dues d JOIN accounts a ON a.id = d.account_id
WHERE d.id=$1 FOR UPDATE OF d`, id))
}

func (r *txRepository) MarkDuePaid(ctx context.Context, id int64, paidAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE dues SET paid=TRUE, paid_at=$2 WHERE id=$1 AND paid=FALSE`, id, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDueAlreadyPaid
	}
	return nil
}

// ListUnbilledDues returns every due that may still accrue, optionally locking the rows.
func (r *txRepository) ListUnbilledDues(ctx context.Context, lock bool) ([]Due, error) {
	query := `SELECT ` + dueColumns + `
FROM dues d JOIN accounts a ON a.id = d.account_id
WHERE d.interest_billed = FALSE
ORDER BY d.account_id, d.id`
	if lock {
		query += ` FOR UPDATE OF d`
	}
	rows, err := r.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Due
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *txRepository) RecordBilling(ctx context.Context, marks []BillingMark) error {
	batch := &pgx.Batch{}
	for _, m := range marks {
		batch.Queue(`UPDATE dues SET billed_through=$2, interest_billed=$3 WHERE id=$1`, m.DueID, m.Through, m.Settled)
	}
	if batch.Len() == 0 {
		return nil
	}
	return r.tx.SendBatch(ctx, batch).Close()
}
