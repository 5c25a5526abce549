package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/platform/db"
)

// TxRepository exposes ledger operations bound to one unit of work.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	FindAccountByOwner(ctx context.Context, owner Owner) (Account, error)
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	LinkCounterTransactions(ctx context.Context, a, b int64) error
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error)
	ListPendingForUpdate(ctx context.Context, asOf time.Time, limit int) ([]Transaction, error)
	MarkProcessed(ctx context.Context, id int64) (bool, error)
	SumApplied(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a repeatable-read transaction, replaying it on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithRetryTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger queries to an open transaction so other
// modules can post within their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const accountColumns = `id, name, owner_kind, owner_ref_id, user_id, balance, interest_eligible, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Owner.Kind, &a.Owner.RefID, &a.UserID, &a.Balance, &a.InterestEligible, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) FindAccountByOwner(ctx context.Context, owner Owner) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_kind=$1 AND owner_ref_id=$2`, owner.Kind, owner.RefID))
}

func (r *txRepository) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1 RETURNING balance`, accountID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (account_id, amount, posting_date, value_date, description, reference, cost_center_id, attachment_id, processed, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		t.AccountID, t.Amount, t.PostingDate, t.ValueDate, t.Description, t.Reference, t.CostCenterID, t.AttachmentID, t.Processed, nullInt(t.CreatedBy))
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (r *txRepository) LinkCounterTransactions(ctx context.Context, a, b int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET counter_transaction_id = CASE id WHEN $1 THEN $2::bigint ELSE $1::bigint END WHERE id IN ($1, $2)`, a, b)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != 2 {
		return ErrTransactionNotFound
	}
	return nil
}

const transactionColumns = `id, account_id, amount, posting_date, value_date, description, reference, counter_transaction_id, cost_center_id, attachment_id, processed, COALESCE(created_by, 0), created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.AccountID, &t.Amount, &t.PostingDate, &t.ValueDate, &t.Description, &t.Reference, &t.CounterTransactionID, &t.CostCenterID, &t.AttachmentID, &t.Processed, &t.CreatedBy, &t.CreatedAt)
	return t, err
}

func (r *txRepository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

func (r *txRepository) queryTransactions(ctx context.Context, sql string, args ...any) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE account_id=$1 ORDER BY value_date, id`, accountID)
}

func (r *txRepository) ListPendingForUpdate(ctx context.Context, asOf time.Time, limit int) ([]Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE processed = false AND value_date <= $1 ORDER BY value_date, id LIMIT $2 FOR UPDATE SKIP LOCKED`, asOf, limit)
}

func (r *txRepository) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET processed = true WHERE id=$1 AND processed = false`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) SumApplied(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id=$1 AND processed = true`, accountID).Scan(&sum)
	return sum, err
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
