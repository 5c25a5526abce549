package donation_test

import (
	"context"
	"time"

	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/donation"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/ledger/ledgertest"
)

type memoryRepo struct {
	store     *ledgertest.Store
	eligible  map[int64]bool
	donations map[int64]donation.Donation
	nextID    int64
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	return &memoryRepo{store: store, eligible: map[int64]bool{}, donations: map[int64]donation.Donation{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, donation.TxRepository) error) error {
	return m.store.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		work := &memoryTx{ledger: ltx, eligible: m.eligible, donations: make(map[int64]donation.Donation, len(m.donations)), nextID: m.nextID}
		for k, v := range m.donations {
			work.donations[k] = v
		}
		if err := fn(ctx, work); err != nil {
			return err
		}
		m.donations = work.donations
		m.nextID = work.nextID
		return nil
	})
}

type memoryTx struct {
	ledger    ledger.TxRepository
	eligible  map[int64]bool
	donations map[int64]donation.Donation
	nextID    int64
}

func (t *memoryTx) Ledger() ledger.TxRepository { return t.ledger }

func (t *memoryTx) CostCenterDonationEligible(ctx context.Context, id int64) (bool, error) {
	v, ok := t.eligible[id]
	if !ok {
		return false, budget.ErrCostCenterNotFound
	}
	return v, nil
}

func (t *memoryTx) ExistsForTransaction(ctx context.Context, id int64) (bool, error) {
	_, ok := t.donations[id]
	return ok, nil
}

func (t *memoryTx) InsertDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	if _, ok := t.donations[d.TransactionID]; ok {
		return donation.Donation{}, donation.ErrDonationExists
	}
	t.nextID++
	d.ID = t.nextID
	d.CreatedAt = time.Now()
	t.donations[d.TransactionID] = d
	return d, nil
}
