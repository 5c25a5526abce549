package interest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records billing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config carries the accrual parameters.
type Config struct {
	RatePercent decimal.Decimal
	// CostCenterID tags booked interest when set.
	CostCenterID *int64
}

// Service manages dues and books accrued interest.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cfg   Config
	now   func() time.Time
}

// NewService constructs the interest service.
func NewService(repo RepositoryPort, audit AuditPort, cfg Config) (*Service, error) {
	if cfg.RatePercent.IsNegative() {
		return nil, ErrRateNegative
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}, nil
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDue registers an obligation on an existing account.
func (s *Service) CreateDue(ctx context.Context, in DueInput) (Due, error) {
	if err := in.Validate(); err != nil {
		return Due{}, err
	}
	in.DueDate = shared.Day(in.DueDate)
	var d Due
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Ledger().GetAccount(ctx, in.AccountID); err != nil {
			return err
		}
		var err error
		d, err = tx.InsertDue(ctx, in)
		return err
	})
	if err != nil {
		return Due{}, err
	}
	s.record(ctx, in.ActorID, "due.create", fmt.Sprint(d.ID), map[string]any{"account_id": d.AccountID, "amount": d.Amount.String()})
	return d, nil
}

// MarkPaid closes the accrual window of a due. A zero paidAt means today.
func (s *Service) MarkPaid(ctx context.Context, id int64, paidAt time.Time, actorID int64) (Due, error) {
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = shared.Day(paidAt)
	var d Due
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.GetDueForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Paid {
			return ErrDueAlreadyPaid
		}
		if err := tx.MarkDuePaid(ctx, id, paidAt); err != nil {
			return err
		}
		d.Paid = true
		d.PaidAt = &paidAt
		return nil
	})
	if err != nil {
		return Due{}, err
	}
	s.record(ctx, actorID, "due.paid", fmt.Sprint(d.ID), nil)
	return d, nil
}

// Preview computes the interest accrued on unbilled dues as of today without
// booking anything.
func (s *Service) Preview(ctx context.Context) (Result, error) {
	today := s.now()
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dues, err := tx.ListUnbilledDues(ctx, false)
		if err != nil {
			return err
		}
		res = ComputeContributions(dues, today, s.cfg.RatePercent)
		return nil
	})
	return res, err
}

// BillInterest books the accrued interest of every account as one negative
// posting and advances the billed-through date of every due that accrued. An
// unpaid due keeps accruing from there; a paid due charged up to its payment is
// settled. No day is charged twice.
func (s *Service) BillInterest(ctx context.Context, actorID int64) (BillSummary, error) {
	today := s.now()
	summary := BillSummary{AsOf: shared.Day(today), Total: decimal.Zero}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		summary.Accounts, summary.Dues, summary.Total, summary.Transactions = 0, 0, decimal.Zero, nil
		dues, err := tx.ListUnbilledDues(ctx, true)
		if err != nil {
			return err
		}
		res := ComputeContributions(dues, today, s.cfg.RatePercent)
		var marks []BillingMark
		for _, d := range dues {
			c := res.PerDue[d.ID]
			switch {
			case c.Active:
				summary.Dues++
				marks = append(marks, BillingMark{DueID: d.ID, Through: c.Through, Settled: settledBy(d, c.Through)})
			case settledBy(d, summary.AsOf):
				marks = append(marks, BillingMark{DueID: d.ID, Through: shared.Day(*d.PaidAt), Settled: true})
			}
		}
		accounts := make([]int64, 0, len(res.PerAccount))
		for id := range res.PerAccount {
			accounts = append(accounts, id)
		}
		sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
		for _, accountID := range accounts {
			amount := res.PerAccount[accountID]
			if !amount.IsPositive() {
				continue
			}
			posted, err := ledger.Post(ctx, tx.Ledger(), ledger.PostingInput{
				AccountID:    accountID,
				Amount:       amount.Neg(),
				Description:  "Interest until " + summary.AsOf.Format("2006-01-02"),
				ValueDate:    today,
				CostCenterID: s.cfg.CostCenterID,
				ActorID:      actorID,
			}, today)
			if err != nil {
				return fmt.Errorf("interest: book account %d: %w", accountID, err)
			}
			summary.Accounts++
			summary.Total = summary.Total.Add(amount)
			summary.Transactions = append(summary.Transactions, posted.ID)
		}
		return tx.RecordBilling(ctx, marks)
	})
	if err != nil {
		return BillSummary{}, err
	}
	if summary.Dues > 0 {
		s.record(ctx, actorID, "interest.bill", summary.AsOf.Format("2006-01-02"), map[string]any{
			"accounts": summary.Accounts,
			"dues":     summary.Dues,
			"total":    summary.Total.String(),
		})
	}
	return summary, nil
}

// settledBy reports whether a due paid no later than through has nothing left
// to accrue.
func settledBy(d Due, through time.Time) bool {
	return d.Paid && d.PaidAt != nil && !through.Before(shared.Day(*d.PaidAt))
}

func (s *Service) record(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "due",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
