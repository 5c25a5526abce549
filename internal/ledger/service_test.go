package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/treasury/internal/ledger"
	"github.com/odyssey-erp/treasury/internal/ledger/ledgertest"
	"github.com/odyssey-erp/treasury/internal/shared"
)

var today = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*ledger.Service, *ledgertest.Store) {
	t.Helper()
	store := ledgertest.NewStore()
	store.AddAccount(ledger.Account{ID: 1, Name: "Member 7", Owner: ledger.Owner{Kind: ledger.OwnerPerson, RefID: 7}})
	store.AddAccount(ledger.Account{ID: 2, Name: "Girokonto", Owner: ledger.Owner{Kind: ledger.OwnerBank, RefID: 1}})
	store.AddAccount(ledger.Account{ID: 3, Name: "Kitchen", Owner: ledger.Owner{Kind: ledger.OwnerClearing, RefID: 4}})
	svc := ledger.NewService(store, nil)
	svc.WithNow(func() time.Time { return today })
	return svc, store
}

func posting(accountID int64, amount string, valueDate time.Time) ledger.PostingInput {
	return ledger.PostingInput{
		AccountID:   accountID,
		Amount:      decimal.RequireFromString(amount),
		Description: "membership fee",
		ValueDate:   valueDate,
		ActorID:     10,
	}
}

func TestCreateTransactionAppliesDueValueDate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTransaction(ctx, posting(1, "-25.50", today))
	require.NoError(t, err)
	require.True(t, created.Processed)
	require.True(t, created.IsEarning())
	require.True(t, store.Account(1).Balance.Equal(decimal.RequireFromString("-25.50")))
}

func TestCreateTransactionKeepsFuturePostingPlanned(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTransaction(ctx, posting(1, "40", today.AddDate(0, 0, 3)))
	require.NoError(t, err)
	require.False(t, created.Processed)
	require.True(t, store.Account(1).Balance.IsZero())
}

func TestCreateTransactionValidation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, posting(1, "0", today))
	require.ErrorIs(t, err, ledger.ErrZeroAmount)
	require.ErrorIs(t, err, shared.ErrValidation)

	in := posting(1, "5", today)
	in.Description = "  "
	_, err = svc.CreateTransaction(ctx, in)
	require.ErrorIs(t, err, ledger.ErrDescriptionRequired)

	_, err = svc.CreateTransaction(ctx, posting(99, "5", today))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.Transactions())
}

func TestCreateTransactionRollsBackOnBalanceFailure(t *testing.T) {
	svc, store := newService(t)
	store.FailAdjust = errors.New("disk full")

	_, err := svc.CreateTransaction(context.Background(), posting(1, "12", today))
	require.Error(t, err)
	require.Empty(t, store.Transactions())
	require.True(t, store.Account(1).Balance.IsZero())
}

func TestCreateTransactionRejectsSubCentAmounts(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	_, err := svc.CreateTransaction(ctx, posting(1, "-20", today))
	require.NoError(t, err)

	_, err = svc.CreateTransaction(ctx, posting(1, "10.005", today))
	require.ErrorIs(t, err, shared.ErrAmountPrecision)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, store.Transactions(), 1)
	require.True(t, store.Account(1).Balance.Equal(decimal.NewFromInt(-20)))

	_, err = svc.CreateTransaction(ctx, posting(1, "10.010", today))
	require.NoError(t, err)
	require.True(t, store.Account(1).Balance.Equal(store.AppliedSum(1)))
}

func TestCreateTransactionBalanceOverflowIsValidation(t *testing.T) {
	svc, store := newService(t)
	store.FailAdjust = fmt.Errorf("update accounts: %w", &pgconn.PgError{Code: "22003"})

	_, err := svc.CreateTransaction(context.Background(), posting(1, "9999999999999999.99", today))
	require.ErrorIs(t, err, shared.ErrAmountOutOfRange)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, store.Transactions())

	_, err = svc.CreateTransaction(context.Background(), posting(1, "10000000000000000", today))
	require.ErrorIs(t, err, shared.ErrAmountOutOfRange)
}

func TestCreateTransferPairLinksLegs(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	leg, counter, err := svc.CreateTransferPair(ctx, ledger.TransferInput{
		Leg:        posting(3, "-80", today),
		CounterLeg: posting(2, "80", today),
	})
	require.NoError(t, err)
	require.NotNil(t, leg.CounterTransactionID)
	require.NotNil(t, counter.CounterTransactionID)
	require.Equal(t, counter.ID, *leg.CounterTransactionID)
	require.Equal(t, leg.ID, *counter.CounterTransactionID)

	stored := store.Transactions()
	require.Len(t, stored, 2)
	require.Equal(t, stored[1].ID, *stored[0].CounterTransactionID)
	require.True(t, store.Account(3).Balance.Equal(decimal.NewFromInt(-80)))
	require.True(t, store.Account(2).Balance.Equal(decimal.NewFromInt(80)))
}

func TestCreateTransferPairRejectsSameAccount(t *testing.T) {
	svc, _ := newService(t)
	_, _, err := svc.CreateTransferPair(context.Background(), ledger.TransferInput{
		Leg:        posting(1, "-5", today),
		CounterLeg: posting(1, "5", today),
	})
	require.ErrorIs(t, err, ledger.ErrSameAccount)
}

func TestCreateTransferPairIsAtomic(t *testing.T) {
	svc, store := newService(t)
	_, _, err := svc.CreateTransferPair(context.Background(), ledger.TransferInput{
		Leg:        posting(1, "-5", today),
		CounterLeg: posting(42, "5", today),
	})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.Empty(t, store.Transactions())
	require.True(t, store.Account(1).Balance.IsZero())
}

func TestProcessPendingTransactionsAppliesOnce(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, posting(1, "30", today.AddDate(0, 0, 1)))
	require.NoError(t, err)
	_, err = svc.CreateTransaction(ctx, posting(1, "-10", today.AddDate(0, 0, 2)))
	require.NoError(t, err)

	summary, err := svc.ProcessPendingTransactions(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Processed)

	svc.WithNow(func() time.Time { return today.AddDate(0, 0, 1) })
	summary, err = svc.ProcessPendingTransactions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.True(t, store.Account(1).Balance.Equal(decimal.NewFromInt(30)))

	summary, err = svc.ProcessPendingTransactions(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Processed)
	require.True(t, store.Account(1).Balance.Equal(decimal.NewFromInt(30)))
}

func TestProcessPendingTransactionsConcurrentRunsApplyOnce(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := svc.CreateTransaction(ctx, posting(1, "1.25", today.AddDate(0, 0, 1)))
		require.NoError(t, err)
	}
	svc.WithNow(func() time.Time { return today.AddDate(0, 0, 5) })

	var wg sync.WaitGroup
	totals := make([]int, 4)
	errs := make([]error, 4)
	for i := range totals {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := svc.ProcessPendingTransactions(ctx)
			totals[i], errs[i] = summary.Processed, err
		}(i)
	}
	wg.Wait()

	sum := 0
	for i, n := range totals {
		require.NoError(t, errs[i])
		sum += n
	}
	require.Equal(t, 20, sum)
	require.True(t, store.Account(1).Balance.Equal(decimal.NewFromInt(25)))
}

func TestBalanceMatchesAppliedTransactions(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	amounts := []string{"10.10", "-3.33", "250", "-0.01", "-99.99"}
	for i, amt := range amounts {
		_, err := svc.CreateTransaction(ctx, posting(1, amt, today.AddDate(0, 0, i-2)))
		require.NoError(t, err)
	}
	_, _, err := svc.CreateTransferPair(ctx, ledger.TransferInput{
		Leg:        posting(1, "-7", today),
		CounterLeg: posting(3, "7", today),
	})
	require.NoError(t, err)

	for _, day := range []int{0, 3} {
		svc.WithNow(func() time.Time { return today.AddDate(0, 0, day) })
		_, err := svc.ProcessPendingTransactions(ctx)
		require.NoError(t, err)
		for _, id := range []int64{1, 2, 3} {
			rec, err := svc.Reconcile(ctx, id)
			require.NoError(t, err)
			require.True(t, rec.Balanced, "account %d: cached %s computed %s", id, rec.Cached, rec.Computed)
			require.True(t, store.AppliedSum(id).Equal(store.Account(id).Balance))
		}
	}
	require.True(t, store.Account(1).Balance.Equal(decimal.RequireFromString("149.77")))
}

func TestResolveAccountByOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.ResolveAccount(ctx, ledger.Owner{Kind: ledger.OwnerClearing, RefID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(3), account.ID)

	_, err = svc.ResolveAccount(ctx, ledger.Owner{Kind: "ROBOT", RefID: 4})
	require.ErrorIs(t, err, ledger.ErrInvalidOwner)

	_, err = svc.ResolveAccount(ctx, ledger.Owner{Kind: ledger.OwnerPerson, RefID: 404})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
