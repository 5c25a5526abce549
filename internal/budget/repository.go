package budget

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/platform/db"
)

// TxRepository exposes budget persistence bound to one unit of work.
type TxRepository interface {
	InsertPlan(ctx context.Context, name string) (BudgetPlan, error)
	GetPlan(ctx context.Context, id int64) (BudgetPlan, error)
	GetPlanForUpdate(ctx context.Context, id int64) (BudgetPlan, error)
	UpdatePlanState(ctx context.Context, id int64, state PlanState) error
	ListCostCenters(ctx context.Context, planID int64) ([]CostCenter, error)
	GetCostCenter(ctx context.Context, id int64) (CostCenter, error)
	InsertCostCenter(ctx context.Context, in CostCenterInput) (CostCenter, error)
	UpdateCostCenter(ctx context.Context, cc CostCenter) error
	DeleteCostCenter(ctx context.Context, id int64) error
	CountTransactions(ctx context.Context, costCenterID int64) (int, error)
	SetSuccessor(ctx context.Context, id int64, successorID *int64) error
	ListTaggedTransactions(ctx context.Context, costCenterIDs []int64) ([]ledger.Transaction, error)
	UpdateActuals(ctx context.Context, rows []Actuals) error
}

// Repository persists budget plans and cost centers in PostgreSQL.
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
		return errors.New("budget repository not initialised")
	}
	return db.WithRetryTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const planColumns = `id, name, state, created_at, updated_at`

func scanPlan(row pgx.Row) (BudgetPlan, error) {
	var p BudgetPlan
	if err := row.Scan(&p.ID, &p.Name, &p.State, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BudgetPlan{}, ErrPlanNotFound
		}
		return BudgetPlan{}, err
	}
	return p, nil
}

func (r *txRepository) InsertPlan(ctx context.Context, name string) (BudgetPlan, error) {
	return scanPlan(r.tx.QueryRow(ctx, `INSERT INTO budget_plans (name, state, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
RETURNING `+planColumns, name, PlanStateDraft))
}

func (r *txRepository) GetPlan(ctx context.Context, id int64) (BudgetPlan, error) {
	return scanPlan(r.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM budget_plans WHERE id=$1`, id))
}

func (r *txRepository) GetPlanForUpdate(ctx context.Context, id int64) (BudgetPlan, error) {
	return scanPlan(r.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM budget_plans WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdatePlanState(ctx context.Context, id int64, state PlanState) error {
	tag, err := r.tx.Exec(ctx, `UPDATE budget_plans SET state=$2, updated_at=NOW() WHERE id=$1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

const costCenterColumns = `id, budget_plan_id, name, earnings_expected, costs_expected, earnings_actual, costs_actual,
successor_id, donation_eligible, updated_at`

func scanCostCenter(row pgx.Row) (CostCenter, error) {
	var cc CostCenter
	err := row.Scan(&cc.ID, &cc.BudgetPlanID, &cc.Name, &cc.EarningsExpected, &cc.CostsExpected,
		&cc.EarningsActual, &cc.CostsActual, &cc.SuccessorID, &cc.DonationEligible, &cc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostCenter{}, ErrCostCenterNotFound
		}
		return CostCenter{}, err
	}
	return cc, nil
}

func (r *txRepository) ListCostCenters(ctx context.Context, planID int64) ([]CostCenter, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+costCenterColumns+` FROM cost_centers WHERE budget_plan_id=$1 ORDER BY id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CostCenter
	for rows.Next() {
		cc, err := scanCostCenter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

func (r *txRepository) GetCostCenter(ctx context.Context, id int64) (CostCenter, error) {
	return scanCostCenter(r.tx.QueryRow(ctx, `SELECT `+costCenterColumns+` FROM cost_centers WHERE id=$1`, id))
}

func (r *txRepository) InsertCostCenter(ctx context.Context, in CostCenterInput) (CostCenter, error) {
	return scanCostCenter(r.tx.QueryRow(ctx, `INSERT INTO cost_centers
(budget_plan_id, name, earnings_expected, costs_expected, earnings_actual, costs_actual, donation_eligible, updated_at)
VALUES ($1, $2, $3, $4, 0, 0, $5, NOW())
RETURNING `+costCenterColumns, in.BudgetPlanID, in.Name, in.EarningsExpected, in.CostsExpected, in.DonationEligible))
}

func (r *txRepository) UpdateCostCenter(ctx context.Context, cc CostCenter) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cost_centers
SET name=$2, earnings_expected=$3, costs_expected=$4, donation_eligible=$5, updated_at=NOW()
WHERE id=$1`, cc.ID, cc.Name, cc.EarningsExpected, cc.CostsExpected, cc.DonationEligible)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCostCenterNotFound
	}
	return nil
}

// DeleteCostCenter clears successor links pointing at the row before removing it.
func (r *txRepository) DeleteCostCenter(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE cost_centers SET successor_id=NULL, updated_at=NOW() WHERE successor_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM cost_centers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCostCenterNotFound
	}
	return nil
}

func (r *txRepository) CountTransactions(ctx context.Context, costCenterID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE cost_center_id=$1`, costCenterID).Scan(&n)
	return n, err
}

func (r *txRepository) SetSuccessor(ctx context.Context, id int64, successorID *int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cost_centers SET successor_id=$2, updated_at=NOW() WHERE id=$1`, id, successorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCostCenterNotFound
	}
	return nil
}

// ListTaggedTransactions returns planned and applied postings tagged with any of
// the given cost centers.
func (r *txRepository) ListTaggedTransactions(ctx context.Context, costCenterIDs []int64) ([]ledger.Transaction, error) {
	if len(costCenterIDs) == 0 {
		return nil, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT id, account_id, amount, cost_center_id, processed
FROM transactions WHERE cost_center_id = ANY($1) ORDER BY id`, costCenterIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &t.CostCenterID, &t.Processed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) UpdateActuals(ctx context.Context, rows []Actuals) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`UPDATE cost_centers SET earnings_actual=$2, costs_actual=$3, updated_at=NOW() WHERE id=$1`,
			row.CostCenterID, row.EarningsActual, row.CostsActual)
	}
	if batch.Len() == 0 {
		return nil
	}
	return r.tx.SendBatch(ctx, batch).Close()
}
