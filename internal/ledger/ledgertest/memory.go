// Package ledgertest provides an in-memory ledger store for service tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/ledger"
)

type state struct {
	accounts map[int64]ledger.Account
	txs      map[int64]ledger.Transaction
	nextTxID int64
}

func (s state) clone() state {
	out := state{
		accounts: make(map[int64]ledger.Account, len(s.accounts)),
		txs:      make(map[int64]ledger.Transaction, len(s.txs)),
		nextTxID: s.nextTxID,
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.txs {
		out.txs[k] = v
	}
	return out
}

// Store is an in-memory ledger. Units of work run one at a time against a copy
// of the state that is committed only when fn succeeds.
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state state

	// FailAdjust, when set, is returned by every balance adjustment.
	FailAdjust error
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{state: state{
		accounts: make(map[int64]ledger.Account),
		txs:      make(map[int64]ledger.Transaction),
	}}
}

// AddAccount seeds an account.
func (s *Store) AddAccount(a ledger.Account) ledger.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[a.ID] = a
	return a
}

// Account returns the committed account.
func (s *Store) Account(id int64) ledger.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.accounts[id]
}

// Transactions returns committed transactions ordered by id.
func (s *Store) Transactions() []ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Transaction, 0, len(s.state.txs))
	for _, t := range s.state.txs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppliedSum recomputes the account balance from processed transactions.
func (s *Store) AppliedSum(accountID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range s.Transactions() {
		if t.AccountID == accountID && t.Processed {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

// WithTx implements ledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	tx := &Tx{store: s, st: s.state.clone()}
	s.mu.Unlock()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = tx.st
	s.mu.Unlock()
	return nil
}

// Tx is the working copy of one unit of work.
type Tx struct {
	store *Store
	st    state
}

func (t *Tx) GetAccount(ctx context.Context, id int64) (ledger.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (t *Tx) GetAccountForUpdate(ctx context.Context, id int64) (ledger.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *Tx) FindAccountByOwner(ctx context.Context, owner ledger.Owner) (ledger.Account, error) {
	for _, a := range t.st.accounts {
		if a.Owner == owner {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (t *Tx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if t.store.FailAdjust != nil {
		return decimal.Zero, t.store.FailAdjust
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return decimal.Zero, ledger.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	t.st.accounts[accountID] = a
	return a.Balance, nil
}

func (t *Tx) InsertTransaction(ctx context.Context, tr ledger.Transaction) (ledger.Transaction, error) {
	t.st.nextTxID++
	tr.ID = t.st.nextTxID
	tr.CreatedAt = time.Now()
	t.st.txs[tr.ID] = tr
	return tr, nil
}

func (t *Tx) LinkCounterTransactions(ctx context.Context, a, b int64) error {
	ta, okA := t.st.txs[a]
	tb, okB := t.st.txs[b]
	if !okA || !okB {
		return ledger.ErrTransactionNotFound
	}
	ta.CounterTransactionID = &b
	tb.CounterTransactionID = &a
	t.st.txs[a] = ta
	t.st.txs[b] = tb
	return nil
}

func (t *Tx) GetTransaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	tr, ok := t.st.txs[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return tr, nil
}

func (t *Tx) ListTransactions(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tr := range t.st.txs {
		if tr.AccountID == accountID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *Tx) ListPendingForUpdate(ctx context.Context, asOf time.Time, limit int) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tr := range t.st.txs {
		if !tr.Processed && !tr.ValueDate.After(asOf) {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *Tx) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	tr, ok := t.st.txs[id]
	if !ok || tr.Processed {
		return false, nil
	}
	tr.Processed = true
	t.st.txs[id] = tr
	return true, nil
}

func (t *Tx) SumApplied(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tr := range t.st.txs {
		if tr.AccountID == accountID && tr.Processed {
			sum = sum.Add(tr.Amount)
		}
	}
	return sum, nil
}
