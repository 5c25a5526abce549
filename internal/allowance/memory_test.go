package allowance_test

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/allowance"
	"github.com/odyssey-erp/treasury/internal/budget"
	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/ledger/ledgertest"
)

type costCenterRef struct {
	planID int64
	state  budget.PlanState
}

// memoryRepo keeps allowances next to an in-memory ledger; both commit together.
type memoryRepo struct {
	store      *ledgertest.Store
	allowances map[int64]allowance.Allowance
	centers    map[int64]costCenterRef
	nextID     int64
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	return &memoryRepo{
		store:      store,
		allowances: map[int64]allowance.Allowance{},
		centers:    map[int64]costCenterRef{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, allowance.TxRepository) error) error {
	return m.store.WithTx(ctx, func(ctx context.Context, ltx ledger.TxRepository) error {
		work := &memoryTx{ledger: ltx, allowances: make(map[int64]allowance.Allowance, len(m.allowances)), centers: m.centers, nextID: m.nextID}
		for k, v := range m.allowances {
			work.allowances[k] = v
		}
		if err := fn(ctx, work); err != nil {
			return err
		}
		m.allowances = work.allowances
		m.nextID = work.nextID
		return nil
	})
}

type memoryTx struct {
	ledger     ledger.TxRepository
	allowances map[int64]allowance.Allowance
	centers    map[int64]costCenterRef
	nextID     int64
}

func (t *memoryTx) Ledger() ledger.TxRepository { return t.ledger }

func (t *memoryTx) InsertAllowance(ctx context.Context, a allowance.Allowance) (allowance.Allowance, error) {
	t.nextID++
	a.ID = t.nextID
	a.Withheld = decimal.Zero
	a.CreatedAt = time.Now()
	t.allowances[a.ID] = a
	return a, nil
}

func (t *memoryTx) GetAllowance(ctx context.Context, id int64) (allowance.Allowance, error) {
	a, ok := t.allowances[id]
	if !ok {
		return allowance.Allowance{}, allowance.ErrAllowanceNotFound
	}
	return a, nil
}

func (t *memoryTx) GetAllowanceForUpdate(ctx context.Context, id int64) (allowance.Allowance, error) {
	return t.GetAllowance(ctx, id)
}

func (t *memoryTx) MarkReturned(ctx context.Context, id int64, returnDate time.Time, withheld decimal.Decimal) error {
	a, ok := t.allowances[id]
	if !ok {
		return allowance.ErrAllowanceNotFound
	}
	if a.ReturnDate != nil {
		return allowance.ErrAlreadyReturned
	}
	a.ReturnDate = &returnDate
	a.Withheld = withheld
	t.allowances[id] = a
	return nil
}

func (t *memoryTx) CostCenterPlan(ctx context.Context, costCenterID int64) (int64, budget.PlanState, error) {
	ref, ok := t.centers[costCenterID]
	if !ok {
		return 0, "", budget.ErrCostCenterNotFound
	}
	return ref.planID, ref.state, nil
}
