package donation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records receipt creation.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service issues donation receipts.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
	newID func() uuid.UUID
}

// NewService constructs the donation service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now, newID: uuid.New}
}

// CreateForTransaction issues the receipt for one transaction of a member
// account tagged with a donation-eligible cost center.
func (s *Service) CreateForTransaction(ctx context.Context, in CreateInput) (Donation, error) {
	if err := in.Validate(); err != nil {
		return Donation{}, err
	}
	var created Donation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.Ledger().GetTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if !t.Processed {
			return ErrNotProcessed
		}
		if t.CostCenterID == nil {
			return ErrNotEligible
		}
		eligible, err := tx.CostCenterDonationEligible(ctx, *t.CostCenterID)
		if err != nil {
			return err
		}
		if !eligible {
			return ErrNotEligible
		}
		account, err := tx.Ledger().GetAccount(ctx, t.AccountID)
		if err != nil {
			return err
		}
		if account.Owner.Kind != ledger.OwnerPerson || account.UserID == nil {
			return ErrNoPerson
		}
		exists, err := tx.ExistsForTransaction(ctx, t.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDonationExists
		}
		created, err = tx.InsertDonation(ctx, Donation{
			TransactionID: t.ID,
			UserID:        *account.UserID,
			ProcessorID:   in.ProcessorID,
			Date:          t.ValueDate,
			Description:   strings.TrimSpace(in.Description),
			Amount:        t.Amount.Abs(),
			Type:          in.Type,
			ReceiptID:     s.newID(),
		})
		return err
	})
	if err != nil {
		return Donation{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ProcessorID,
			Action:   "donation.create",
			Entity:   "donation",
			EntityID: fmt.Sprint(created.ID),
			Meta:     map[string]any{"transaction_id": created.TransactionID, "receipt_id": created.ReceiptID.String()},
			At:       s.now(),
		})
	}
	return created, nil
}

// CreateBatch issues receipts row by row. Every row runs in its own unit of work;
// failures are reported per row and never undo the rows that succeeded.
func (s *Service) CreateBatch(ctx context.Context, inputs []CreateInput) []BatchResult {
	results := make([]BatchResult, 0, len(inputs))
	for _, in := range inputs {
		res := BatchResult{TransactionID: in.TransactionID}
		if err := ctx.Err(); err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		d, err := s.CreateForTransaction(ctx, in)
		if err != nil {
			res.Err = err
		} else {
			res.Donation = &d
		}
		results = append(results, res)
	}
	return results
}
