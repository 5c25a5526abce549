package allowance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records allowance events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service books allowances and their returns on the ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the allowance service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAllowance debits the owner's account by |Amount| and records the
// allowance, atomically.
func (s *Service) CreateAllowance(ctx context.Context, in CreateInput) (Allowance, error) {
	if err := in.Validate(); err != nil {
		return Allowance{}, err
	}
	amount := in.Amount.Abs()
	description := strings.TrimSpace(in.Description)
	today := s.now()
	var created Allowance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.Ledger().FindAccountByOwner(ctx, in.Owner)
		if err != nil {
			return err
		}
		posting, err := ledger.Post(ctx, tx.Ledger(), ledger.PostingInput{
			AccountID:   account.ID,
			Amount:      amount.Neg(),
			Description: "Allowance: " + description,
			ValueDate:   today,
			ActorID:     in.ActorID,
		}, today)
		if err != nil {
			return err
		}
		created, err = tx.InsertAllowance(ctx, Allowance{
			AccountID:     account.ID,
			Amount:        amount,
			Description:   description,
			TransactionID: posting.ID,
			CreatedBy:     in.ActorID,
		})
		return err
	})
	if err != nil {
		return Allowance{}, err
	}
	s.record(ctx, in.ActorID, "allowance.create", created.ID, map[string]any{
		"account_id": created.AccountID,
		"amount":     created.Amount.String(),
	})
	return created, nil
}

// ReturnAllowance credits the full allowance back and, when withholding, debits
// the withheld part tagged with the cost center. An allowance returns once.
func (s *Service) ReturnAllowance(ctx context.Context, in ReturnInput) (Allowance, error) {
	if err := in.Validate(); err != nil {
		return Allowance{}, err
	}
	today := s.now()
	var returned Allowance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAllowanceForUpdate(ctx, in.AllowanceID)
		if err != nil {
			return err
		}
		if a.Returned() {
			return ErrAlreadyReturned
		}
		if in.Withhold {
			if in.WithholdAmount.GreaterThan(a.Amount) {
				return ErrWithholdAmount
			}
			planID, state, err := tx.CostCenterPlan(ctx, in.CostCenterID)
			if err != nil {
				return err
			}
			if planID != in.BudgetPlanID {
				return ErrCostCenterMismatch
			}
			if state == budget.PlanStateClosed {
				return budget.ErrPlanClosed
			}
		}
		if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostingInput{
			AccountID:   a.AccountID,
			Amount:      a.Amount,
			Description: "Allowance return: " + a.Description,
			ValueDate:   today,
			ActorID:     in.ActorID,
		}, today); err != nil {
			return err
		}
		withheld := a.Withheld
		if in.Withhold {
			withheld = in.WithholdAmount
		}
		returnDate := shared.Day(today)
		if err := tx.MarkReturned(ctx, a.ID, returnDate, withheld); err != nil {
			return err
		}
		if in.Withhold {
			costCenterID := in.CostCenterID
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostingInput{
				AccountID:    a.AccountID,
				Amount:       in.WithholdAmount.Neg(),
				Description:  strings.TrimSpace(in.WithholdDescription),
				ValueDate:    today,
				CostCenterID: &costCenterID,
				ActorID:      in.ActorID,
			}, today); err != nil {
				return fmt.Errorf("allowance: book withholding: %w", err)
			}
		}
		a.ReturnDate = &returnDate
		a.Withheld = withheld
		returned = a
		return nil
	})
	if err != nil {
		return Allowance{}, err
	}
	s.record(ctx, in.ActorID, "allowance.return", returned.ID, map[string]any{
		"withheld": returned.Withheld.String(),
	})
	return returned, nil
}

// GetAllowance loads an allowance.
func (s *Service) GetAllowance(ctx context.Context, id int64) (Allowance, error) {
	var a Allowance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		a, err = tx.GetAllowance(ctx, id)
		return err
	})
	return a, err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "allowance",
		EntityID: fmt.Sprint(id),
		Meta:     meta,
		At:       s.now(),
	})
}
