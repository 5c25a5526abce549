package budget

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/ledger"
)

type memoryState struct {
	plans   map[int64]BudgetPlan
	centers map[int64]CostCenter
	txs     []ledger.Transaction
	nextID  int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		plans:   make(map[int64]BudgetPlan, len(s.plans)),
		centers: make(map[int64]CostCenter, len(s.centers)),
		txs:     append([]ledger.Transaction(nil), s.txs...),
		nextID:  s.nextID,
	}
	for k, v := range s.plans {
		out.plans[k] = v
	}
	for k, v := range s.centers {
		out.centers[k] = v
	}
	return out
}

type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	// failActuals makes UpdateActuals fail after the aggregation ran.
	failActuals error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{plans: map[int64]BudgetPlan{}, centers: map[int64]CostCenter{}}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{repo: m, st: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

func (m *memoryRepo) tag(costCenterID int64, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := costCenterID
	m.state.txs = append(m.state.txs, ledger.Transaction{
		ID:           int64(len(m.state.txs) + 1),
		Amount:       decimal.RequireFromString(amount),
		CostCenterID: &id,
	})
}

func (m *memoryRepo) center(id int64) CostCenter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.centers[id]
}

type memoryTx struct {
	repo *memoryRepo
	st   memoryState
}

func (t *memoryTx) InsertPlan(ctx context.Context, name string) (BudgetPlan, error) {
	t.st.nextID++
	p := BudgetPlan{ID: t.st.nextID, Name: name, State: PlanStateDraft, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	t.st.plans[p.ID] = p
	return p, nil
}

func (t *memoryTx) GetPlan(ctx context.Context, id int64) (BudgetPlan, error) {
	p, ok := t.st.plans[id]
	if !ok {
		return BudgetPlan{}, ErrPlanNotFound
	}
	return p, nil
}

func (t *memoryTx) GetPlanForUpdate(ctx context.Context, id int64) (BudgetPlan, error) {
	return t.GetPlan(ctx, id)
}

func (t *memoryTx) UpdatePlanState(ctx context.Context, id int64, state PlanState) error {
	p, ok := t.st.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	p.State = state
	t.st.plans[id] = p
	return nil
}

func (t *memoryTx) ListCostCenters(ctx context.Context, planID int64) ([]CostCenter, error) {
	var out []CostCenter
	for _, cc := range t.st.centers {
		if cc.BudgetPlanID == planID {
			out = append(out, cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) GetCostCenter(ctx context.Context, id int64) (CostCenter, error) {
	cc, ok := t.st.centers[id]
	if !ok {
		return CostCenter{}, ErrCostCenterNotFound
	}
	return cc, nil
}

func (t *memoryTx) InsertCostCenter(ctx context.Context, in CostCenterInput) (CostCenter, error) {
	t.st.nextID++
	cc := CostCenter{
		ID:               t.st.nextID,
		BudgetPlanID:     in.BudgetPlanID,
		Name:             in.Name,
		EarningsExpected: in.EarningsExpected,
		CostsExpected:    in.CostsExpected,
		DonationEligible: in.DonationEligible,
	}
	t.st.centers[cc.ID] = cc
	return cc, nil
}

func (t *memoryTx) UpdateCostCenter(ctx context.Context, cc CostCenter) error {
	if _, ok := t.st.centers[cc.ID]; !ok {
		return ErrCostCenterNotFound
	}
	t.st.centers[cc.ID] = cc
	return nil
}

func (t *memoryTx) DeleteCostCenter(ctx context.Context, id int64) error {
	if _, ok := t.st.centers[id]; !ok {
		return ErrCostCenterNotFound
	}
	for k, cc := range t.st.centers {
		if cc.SuccessorID != nil && *cc.SuccessorID == id {
			cc.SuccessorID = nil
			t.st.centers[k] = cc
		}
	}
	delete(t.st.centers, id)
	return nil
}

func (t *memoryTx) CountTransactions(ctx context.Context, costCenterID int64) (int, error) {
	n := 0
	for _, tr := range t.st.txs {
		if tr.CostCenterID != nil && *tr.CostCenterID == costCenterID {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) SetSuccessor(ctx context.Context, id int64, successorID *int64) error {
	cc, ok := t.st.centers[id]
	if !ok {
		return ErrCostCenterNotFound
	}
	cc.SuccessorID = successorID
	t.st.centers[id] = cc
	return nil
}

func (t *memoryTx) ListTaggedTransactions(ctx context.Context, ids []int64) ([]ledger.Transaction, error) {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []ledger.Transaction
	for _, tr := range t.st.txs {
		if tr.CostCenterID != nil && wanted[*tr.CostCenterID] {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (t *memoryTx) UpdateActuals(ctx context.Context, rows []Actuals) error {
	for _, row := range rows {
		cc, ok := t.st.centers[row.CostCenterID]
		if !ok {
			return ErrCostCenterNotFound
		}
		cc.EarningsActual = row.EarningsActual
		cc.CostsActual = row.CostsActual
		t.st.centers[row.CostCenterID] = cc
	}
	return t.repo.failActuals
}
