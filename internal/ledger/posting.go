package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/treasury/internal/platform/db"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// Post books in against tx. It is the single building block every balance
// affecting write goes through, so callers compose it inside their own unit of
// work. Postings whose value date has not arrived are stored as planned and
// leave the balance untouched until ProcessPendingTransactions applies them.
func Post(ctx context.Context, tx TxRepository, in PostingInput, today time.Time) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	account, err := tx.GetAccountForUpdate(ctx, in.AccountID)
	if err != nil {
		return Transaction{}, err
	}
	applied := !shared.Day(in.ValueDate).After(shared.Day(today))
	inserted, err := tx.InsertTransaction(ctx, Transaction{
		AccountID:    account.ID,
		Amount:       in.Amount,
		PostingDate:  shared.Day(today),
		ValueDate:    shared.Day(in.ValueDate),
		Description:  in.Description,
		Reference:    in.Reference,
		CostCenterID: in.CostCenterID,
		AttachmentID: in.AttachmentID,
		Processed:    applied,
		CreatedBy:    in.ActorID,
	})
	if err != nil {
		return Transaction{}, storeError("insert transaction", err)
	}
	if applied {
		if _, err := tx.AdjustBalance(ctx, account.ID, in.Amount); err != nil {
			return Transaction{}, storeError("adjust balance", err)
		}
	}
	return inserted, nil
}

// PostPair books both legs of a transfer and cross-links them. Account rows are
// locked in ascending id order so concurrent transfers cannot deadlock.
func PostPair(ctx context.Context, tx TxRepository, in TransferInput, today time.Time) (Transaction, Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, Transaction{}, err
	}
	ids := []int64{in.Leg.AccountID, in.CounterLeg.AccountID}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := tx.GetAccountForUpdate(ctx, id); err != nil {
			return Transaction{}, Transaction{}, err
		}
	}
	leg, err := Post(ctx, tx, in.Leg, today)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	counter, err := Post(ctx, tx, in.CounterLeg, today)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	if err := tx.LinkCounterTransactions(ctx, leg.ID, counter.ID); err != nil {
		return Transaction{}, Transaction{}, fmt.Errorf("ledger: link counter transactions: %w", err)
	}
	leg.CounterTransactionID = &counter.ID
	counter.CounterTransactionID = &leg.ID
	return leg, counter, nil
}

// storeError wraps a write failure. A balance or amount beyond NUMERIC(18,2)
// surfaces as a validation error instead of an internal one.
func storeError(op string, err error) error {
	if db.IsNumericOverflow(err) {
		return fmt.Errorf("ledger: %s: %w", op, shared.ErrAmountOutOfRange)
	}
	return fmt.Errorf("ledger: %s: %w", op, err)
}
