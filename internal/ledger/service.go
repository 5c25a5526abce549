package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/treasury/internal/shared"
)

const pendingBatchSize = 500

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates postings, transfers and the planned-to-applied transition.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateTransaction books a single posting and, when its value date has
// arrived, moves the account balance in the same unit of work.
func (s *Service) CreateTransaction(ctx context.Context, in PostingInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var created Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = Post(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, in.ActorID, "transaction.create", created.ID, map[string]any{
		"account_id": created.AccountID,
		"amount":     created.Amount.String(),
		"processed":  created.Processed,
	})
	return created, nil
}

// CreateTransferPair books both legs of a transfer, cross-linked through their
// counter transaction ids.
func (s *Service) CreateTransferPair(ctx context.Context, in TransferInput) (Transaction, Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, Transaction{}, err
	}
	var leg, counter Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		leg, counter, err = PostPair(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	s.record(ctx, in.Leg.ActorID, "transaction.transfer", leg.ID, map[string]any{
		"counter_transaction_id": counter.ID,
		"account_id":             leg.AccountID,
		"counter_account_id":     counter.AccountID,
	})
	return leg, counter, nil
}

// ProcessPendingTransactions applies every planned transaction whose value date
// has arrived. A row is applied only by the run that flips its processed flag,
// so repeated or overlapping invocations never move a balance twice.
func (s *Service) ProcessPendingTransactions(ctx context.Context) (ProcessSummary, error) {
	asOf := shared.Day(s.now())
	summary := ProcessSummary{AsOf: asOf}
	for {
		var fetched, flipped, skipped int
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			fetched, flipped, skipped = 0, 0, 0
			pending, err := tx.ListPendingForUpdate(ctx, asOf, pendingBatchSize)
			if err != nil {
				return err
			}
			fetched = len(pending)
			for _, t := range pending {
				ok, err := tx.MarkProcessed(ctx, t.ID)
				if err != nil {
					return fmt.Errorf("ledger: mark transaction %d processed: %w", t.ID, err)
				}
				if !ok {
					skipped++
					continue
				}
				if _, err := tx.AdjustBalance(ctx, t.AccountID, t.Amount); err != nil {
					return storeError(fmt.Sprintf("apply transaction %d", t.ID), err)
				}
				flipped++
			}
			return nil
		})
		if err != nil {
			return summary, err
		}
		summary.Batches++
		summary.Processed += flipped
		summary.Skipped += skipped
		if fetched < pendingBatchSize || flipped == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}
	if summary.Processed > 0 {
		s.record(ctx, 0, "transaction.process_pending", asOf.Format("2006-01-02"), map[string]any{
			"processed": summary.Processed,
			"skipped":   summary.Skipped,
		})
	}
	return summary, nil
}

// GetAccount loads an account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, id)
		return err
	})
	return account, err
}

// ResolveAccount finds the account held by owner.
func (s *Service) ResolveAccount(ctx context.Context, owner Owner) (Account, error) {
	if err := owner.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.FindAccountByOwner(ctx, owner)
		return err
	})
	return account, err
}

// ListTransactions returns the account's postings ordered by value date.
func (s *Service) ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	var out []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, accountID)
		return err
	})
	return out, err
}

// Reconcile recomputes the balance from applied transactions and compares it
// with the cached value.
func (s *Service) Reconcile(ctx context.Context, accountID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := tx.SumApplied(ctx, accountID)
		if err != nil {
			return err
		}
		rec = Reconciliation{
			AccountID:  accountID,
			Cached:     account.Balance,
			Computed:   sum,
			Difference: account.Balance.Sub(sum),
			Balanced:   account.Balance.Equal(sum),
		}
		return nil
	})
	return rec, err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID any, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transaction",
		EntityID: fmt.Sprint(entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
