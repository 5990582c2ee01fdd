package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"bank_ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.ErrorLevel) // keep test output quiet
	os.Exit(m.Run())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testClock hands out strictly increasing timestamps so newest-first
// ordering is deterministic; tests can also jump it forward.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc    *Service
	store  *MemStore
	clock  *testClock
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemStore(0)
	clock := newTestClock()
	userID := uuid.New()
	store.AddUser(domain.User{ID: userID, Username: "alice"})
	store.AddCurrency(domain.Currency{ID: 1, Code: "RUB", MinorUnits: 2})
	store.AddCurrency(domain.Currency{ID: 2, Code: "USD", MinorUnits: 2})
	return &fixture{
		svc:    NewServiceWithClock(store, clock.Now),
		store:  store,
		clock:  clock,
		userID: userID,
	}
}

// account seeds an account with the given balance, bypassing the deposit path.
func (f *fixture) account(t *testing.T, userID uuid.UUID, currencyID int, balance string) uuid.UUID {
	t.Helper()
	acct := &domain.Account{
		ID:         uuid.New(),
		UserID:     userID,
		CurrencyID: currencyID,
		Balance:    dec(balance),
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.store.Accounts().Create(context.Background(), acct))
	return acct.ID
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	acct, err := f.store.Accounts().Get(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.svc.CreateAccount(ctx, f.userID, 1)
	require.NoError(t, err)
	assert.Equal(t, f.userID, acct.UserID)
	assert.Equal(t, 1, acct.CurrencyID)
	assert.True(t, acct.Balance.IsZero(), "new accounts open with zero balance")
	assert.False(t, acct.CreatedAt.IsZero())
}

func TestCreateAccountUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAccount(context.Background(), uuid.New(), 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCreateAccountUnknownCurrency(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAccount(context.Background(), f.userID, 99)
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDepositIncreasesBalanceAndLogsCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acctID := f.account(t, f.userID, 1, "0")

	acct, err := f.svc.Deposit(ctx, f.userID, acctID, dec("100.50"))
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("100.50")))

	entries, total, err := f.store.Transactions().List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, acctID, entries[0].AccountID)
	assert.True(t, entries[0].Amount.Equal(dec("100.50")), "exactly one credit of the deposited amount")
	assert.False(t, entries[0].FeeApplied)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	acctID := f.account(t, f.userID, 1, "0")

	for _, amount := range []string{"0", "-1"} {
		_, err := f.svc.Deposit(context.Background(), f.userID, acctID, dec(amount))
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	}
}

func TestDepositUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Deposit(context.Background(), f.userID, uuid.New(), dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDepositForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t)
	acctID := f.account(t, f.userID, 1, "0")
	stranger := uuid.New()
	f.store.AddUser(domain.User{ID: stranger, Username: "mallory"})

	_, err := f.svc.Deposit(context.Background(), stranger, acctID, dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	assert.True(t, f.balance(t, acctID).IsZero(), "failed deposit must not change the balance")
}

func TestTransferWithoutFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, f.userID, 1, "100")
	receiver := f.account(t, uuid.New(), 1, "0")

	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("50")))

	assert.True(t, f.balance(t, sender).Equal(dec("50")))
	assert.True(t, f.balance(t, receiver).Equal(dec("50")))

	debits, err := f.store.Transactions().ExpensesForAccount(ctx, sender)
	require.NoError(t, err)
	require.Len(t, debits, 1)
	assert.True(t, debits[0].Amount.Equal(dec("-50")))
	assert.Contains(t, debits[0].Description, receiver.String())
	assert.False(t, debits[0].FeeApplied)

	_, total, err := f.store.Transactions().List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "one debit and one credit per transfer")
}

func TestTransferSumOfBalancesInvariantWithoutFee(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "300")
	receiver := f.account(t, uuid.New(), 1, "200")

	require.NoError(t, f.svc.Transfer(context.Background(), f.userID, sender, receiver, dec("123.45")))

	sum := f.balance(t, sender).Add(f.balance(t, receiver))
	assert.True(t, sum.Equal(dec("500")), "fee-free transfers conserve the total")
}

func TestTransferWithFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, f.userID, 1, "1000")
	receiver := f.account(t, uuid.New(), 1, "0")

	// 150 already spent this month against a 200 cap.
	require.NoError(t, f.store.Transactions().Append(ctx, &domain.Transaction{
		AccountID:       sender,
		Amount:          dec("-150"),
		CurrencyID:      1,
		TransactionDate: f.clock.Now(),
		Description:     "prior spend",
	}))
	_, err := f.svc.SetLimit(ctx, sender, dec("200"), 1)
	require.NoError(t, err)

	// remaining = 50 < 100, so a 5% fee of 5 applies on top of the 100.
	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("100")))

	assert.True(t, f.balance(t, sender).Equal(dec("895")), "sender pays amount plus fee")
	assert.True(t, f.balance(t, receiver).Equal(dec("100")), "receiver never receives the fee")

	exceeded, err := f.store.Transactions().FeeTransactionsForAccount(ctx, sender)
	require.NoError(t, err)
	require.Len(t, exceeded, 1)
	assert.True(t, exceeded[0].Amount.Equal(dec("-100")), "the ledger debit is the plain amount")
	assert.True(t, exceeded[0].FeeAmount.Equal(dec("5")))
	assert.True(t, exceeded[0].FeeApplied)
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "100")
	receiver := f.account(t, uuid.New(), 1, "0")

	for _, amount := range []string{"0", "-5"} {
		err := f.svc.Transfer(context.Background(), f.userID, sender, receiver, dec(amount))
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	}
}

func TestTransferRejectsSameAccount(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "100")

	err := f.svc.Transfer(context.Background(), f.userID, sender, sender, dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
}

func TestTransferUnknownAccounts(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "100")

	err := f.svc.Transfer(context.Background(), f.userID, uuid.New(), sender, dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	err = f.svc.Transfer(context.Background(), f.userID, sender, uuid.New(), dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestTransferForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "100")
	receiver := f.account(t, uuid.New(), 1, "0")

	err := f.svc.Transfer(context.Background(), uuid.New(), sender, receiver, dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestTransferRejectsCurrencyMismatch(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "100")
	receiver := f.account(t, uuid.New(), 2, "0")

	err := f.svc.Transfer(context.Background(), f.userID, sender, receiver, dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	sender := f.account(t, f.userID, 1, "40")
	receiver := f.account(t, uuid.New(), 1, "0")

	err := f.svc.Transfer(context.Background(), f.userID, sender, receiver, dec("50"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientFunds, domain.KindOf(err))
	assert.True(t, f.balance(t, sender).Equal(dec("40")))
}

func TestTransferInsufficientFundsAfterFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Balance covers the amount but not the fee-inflated debit.
	sender := f.account(t, f.userID, 1, "102")
	receiver := f.account(t, uuid.New(), 1, "0")
	_, err := f.svc.SetLimit(ctx, sender, dec("0"), 1)
	require.NoError(t, err)

	err = f.svc.Transfer(ctx, f.userID, sender, receiver, dec("100"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientFunds, domain.KindOf(err))

	// An aborted transfer leaves no partial writes behind.
	assert.True(t, f.balance(t, sender).Equal(dec("102")))
	assert.True(t, f.balance(t, receiver).IsZero())
	_, total, err := f.store.Transactions().List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCheckTransferWithoutLimit(t *testing.T) {
	f := newFixture(t)
	acctID := f.account(t, f.userID, 1, "100")

	res, err := f.svc.CheckTransfer(context.Background(), acctID, dec("1000000"))
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.False(t, res.RequiresFee)
	assert.True(t, res.FeeAmount.IsZero())
}

func TestCheckTransferUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckTransfer(context.Background(), uuid.New(), dec("10"))
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestSetLimitReflectedInNextCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acctID := f.account(t, f.userID, 1, "1000")

	_, err := f.svc.SetLimit(ctx, acctID, dec("100"), 1)
	require.NoError(t, err)

	res, err := f.svc.CheckTransfer(ctx, acctID, dec("150"))
	require.NoError(t, err)
	assert.True(t, res.RequiresFee)
	assert.True(t, res.FeeAmount.Equal(dec("7.5")))

	// Raising the cap takes effect immediately.
	_, err = f.svc.SetLimit(ctx, acctID, dec("500"), 1)
	require.NoError(t, err)

	res, err = f.svc.CheckTransfer(ctx, acctID, dec("150"))
	require.NoError(t, err)
	assert.False(t, res.RequiresFee)
	assert.True(t, res.FeeAmount.IsZero())
}

func TestExpenseTransactionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, f.userID, 1, "1000")
	receiver := f.account(t, uuid.New(), 1, "0")

	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("10")))
	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("20")))
	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("30")))

	expenses, err := f.svc.ExpenseTransactions(ctx, sender)
	require.NoError(t, err)
	require.Len(t, expenses, 3)
	assert.True(t, expenses[0].Amount.Equal(dec("-30")))
	assert.True(t, expenses[1].Amount.Equal(dec("-20")))
	assert.True(t, expenses[2].Amount.Equal(dec("-10")))

	// Credits never show up as expenses.
	received, err := f.svc.ExpenseTransactions(ctx, receiver)
	require.NoError(t, err)
	assert.Empty(t, received)
}

func TestExceededLimitTransactionsFilterByFeeMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, f.userID, 1, "1000")
	receiver := f.account(t, uuid.New(), 1, "0")

	// First transfer is under the cap, second exceeds it.
	_, err := f.svc.SetLimit(ctx, sender, dec("50"), 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("40")))
	require.NoError(t, f.svc.Transfer(ctx, f.userID, sender, receiver, dec("40")))

	exceeded, err := f.svc.ExceededLimitTransactions(ctx, sender)
	require.NoError(t, err)
	require.Len(t, exceeded, 1)
	assert.True(t, exceeded[0].FeeApplied)
	assert.True(t, exceeded[0].FeeAmount.Equal(dec("2")))
}

func TestConcurrentOppositeTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := uuid.New()
	f.store.AddUser(domain.User{ID: bob, Username: "bob"})
	a := f.account(t, f.userID, 1, "1000")
	b := f.account(t, bob, 1, "1000")

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2 * rounds)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Transfer(ctx, f.userID, a, b, dec("1")))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Transfer(ctx, bob, b, a, dec("1")))
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("opposite-direction transfers deadlocked")
	}

	// Equal counts in both directions leave both balances unchanged.
	assert.True(t, f.balance(t, a).Equal(dec("1000")))
	assert.True(t, f.balance(t, b).Equal(dec("1000")))
}

func TestConcurrentTransfersOnDisjointPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := make([]uuid.UUID, 4)
	accounts := make([]uuid.UUID, 4)
	for i := range users {
		users[i] = uuid.New()
		f.store.AddUser(domain.User{ID: users[i], Username: "user"})
		accounts[i] = f.account(t, users[i], 1, "500")
	}

	const rounds = 100
	var wg sync.WaitGroup
	wg.Add(2 * rounds)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Transfer(ctx, users[0], accounts[0], accounts[1], dec("1")))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Transfer(ctx, users[2], accounts[2], accounts[3], dec("1")))
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, accounts[0]).Equal(dec("400")))
	assert.True(t, f.balance(t, accounts[1]).Equal(dec("600")))
	assert.True(t, f.balance(t, accounts[2]).Equal(dec("400")))
	assert.True(t, f.balance(t, accounts[3]).Equal(dec("600")))
}

func TestConcurrentDepositsSerializeOnTheAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acctID := f.account(t, f.userID, 1, "0")

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Deposit(ctx, f.userID, acctID, dec("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, acctID).Equal(dec("100")), "no deposit may be lost under contention")
	entries, err := f.store.Transactions().ExpensesForAccount(ctx, acctID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, total, err := f.store.Transactions().List(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), total)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, f.userID, 1, "10")
	receiver := f.account(t, uuid.New(), 1, "0")

	// 30 transfers of 1 against a balance of 10: exactly 10 may succeed.
	const attempts = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if err := f.svc.Transfer(ctx, f.userID, sender, receiver, dec("1")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.Equal(t, domain.KindInsufficientFunds, domain.KindOf(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.True(t, f.balance(t, sender).IsZero())
	assert.True(t, f.balance(t, receiver).Equal(dec("10")))
}
