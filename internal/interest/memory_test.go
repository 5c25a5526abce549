package interest_test

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/treasury/internal/interest"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/ledger/ledgertest"
)

type memoryRepo struct {
	store  *ledgertest.Store
	dues   map[int64]interest.Due
	nextID int64
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	return &memoryRepo{store: store, dues: map[int64]interest.Due{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, interest.TxRepository) error) error {
	return m.store.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		work := &memoryTx{ledger: ltx, dues: make(map[int64]interest.Due, len(m.dues)), nextID: m.nextID}
		for k, v := range m.dues {
			work.dues[k] = v
		}
		if err := fn(ctx, work); err != nil {
			return err
		}
		m.dues = work.dues
		m.nextID = work.nextID
		return nil
	})
}

type memoryTx struct {
	ledger ledger.TxRepository
	dues   map[int64]interest.Due
	nextID int64
}

func (t *memoryTx) Ledger() ledger.TxRepository { return t.ledger }

func (t *memoryTx) withEligibility(ctx context.Context, d interest.Due) (interest.Due, error) {
	a, err := t.ledger.GetAccount(ctx, d.AccountID)
	if err != nil {
		return interest.Due{}, err
	}
	d.InterestEligible = a.InterestEligible
	return d, nil
}

func (t *memoryTx) InsertDue(ctx context.Context, in interest.DueInput) (interest.Due, error) {
	t.nextID++
	d := interest.Due{ID: t.nextID, AccountID: in.AccountID, Amount: in.Amount, DueDate: in.DueDate, Description: in.Description, CreatedAt: time.Now()}
	t.dues[d.ID] = d
	return t.withEligibility(ctx, d)
}

func (t *memoryTx) GetDueForUpdate(ctx context.Context, id int64) (interest.Due, error) {
	d, ok := t.dues[id]
	if !ok {
		return interest.Due{}, interest.ErrDueNotFound
	}
	return t.withEligibility(ctx, d)
}

func (t *memoryTx) MarkDuePaid(ctx context.Context, id int64, paidAt time.Time) error {
	d, ok := t.dues[id]
	if !ok || d.Paid {
		return interest.ErrDueAlreadyPaid
	}
	d.Paid = true
	d.PaidAt = &paidAt
	t.dues[id] = d
	return nil
}

func (t *memoryTx) ListUnbilledDues(ctx context.Context, lock bool) ([]interest.Due, error) {
	var out []interest.Due
	for _, d := range t.dues {
		if d.InterestBilled {
			continue
		}
		withFlag, err := t.withEligibility(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, withFlag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) RecordBilling(ctx context.Context, marks []interest.BillingMark) error {
	for _, m := range marks {
		d := t.dues[m.DueID]
		through := m.Through
		d.BilledThrough = &through
		d.InterestBilled = m.Settled
		t.dues[m.DueID] = d
	}
	return nil
}
