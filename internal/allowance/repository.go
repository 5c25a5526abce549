package allowance

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/platform/db"
)

// TxRepository exposes allowance persistence together with the ledger queries of
// the same unit of work.
type TxRepository interface {
	Ledger() ledger.TxRepository
	InsertAllowance(ctx context.Context, a Allowance) (Allowance, error)
	GetAllowance(ctx context.Context, id int64) (Allowance, error)
	GetAllowanceForUpdate(ctx context.Context, id int64) (Allowance, error)
	MarkReturned(ctx context.Context, id int64, returnDate time.Time, withheld decimal.Decimal) error
	CostCenterPlan(ctx context.Context, costCenterID int64) (int64, budget.PlanState, error)
}

// Repository persists allowances in PostgreSQL.
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
		return errors.New("allowance repository not initialised")
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

const allowanceColumns = `id, account_id, amount, description, return_date, withheld, transaction_id, created_by, created_at`

func scanAllowance(row pgx.Row) (Allowance, error) {
	var a Allowance
	var createdBy *int64
	err := row.Scan(&a.ID, &a.AccountID, &a.Amount, &a.Description, &a.ReturnDate, &a.Withheld, &a.TransactionID, &createdBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allowance{}, ErrAllowanceNotFound
		}
		return Allowance{}, err
	}
	if createdBy != nil {
		a.CreatedBy = *createdBy
	}
	return a, nil
}

func (r *txRepository) InsertAllowance(ctx context.Context, a Allowance) (Allowance, error) {
	var createdBy any
	if a.CreatedBy != 0 {
		createdBy = a.CreatedBy
	}
	return scanAllowance(r.tx.QueryRow(ctx, `INSERT INTO allowances
(account_id, amount, description, withheld, transaction_id, created_by, created_at)
VALUES ($1, $2, $3, 0, $4, $5, NOW())
RETURNING `+allowanceColumns, a.AccountID, a.Amount, a.Description, a.TransactionID, createdBy))
}

func (r *txRepository) GetAllowance(ctx context.Context, id int64) (Allowance, error) {
	return scanAllowance(r.tx.QueryRow(ctx, `SELECT `+allowanceColumns+` FROM allowances WHERE id=$1`, id))
}

func (r *txRepository) GetAllowanceForUpdate(ctx context.Context, id int64) (Allowance, error) {
	return scanAllowance(r.tx.QueryRow(ctx, `SELECT `+allowanceColumns+` FROM allowances WHERE id=$1 FOR UPDATE`, id))
}

// MarkReturned only stamps rows that are still open.
func (r *txRepository) MarkReturned(ctx context.Context, id int64, returnDate time.Time, withheld decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE allowances SET return_date=$2, withheld=$3 WHERE id=$1 AND return_date IS NULL`, id, returnDate, withheld)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReturned
	}
	return nil
}

func (r *txRepository) CostCenterPlan(ctx context.Context, costCenterID int64) (int64, budget.PlanState, error) {
	var planID int64
	var state budget.PlanState
	err := r.tx.QueryRow(ctx, `SELECT cc.budget_plan_id, p.state
FROM cost_centers cc JOIN budget_plans p ON p.id = cc.budget_plan_id
WHERE cc.id=$1`, costCenterID).Scan(&planID, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", budget.ErrCostCenterNotFound
		}
		return 0, "", err
	}
	return planID, state, nil
}
