package ledger

import (
	"context" // Lock-wait deadlines
	"sort"    // Newest-first ordering
	"sync"    // Base map guard
	"time"    // Lock wait bound, time-window queries

	"bank_ledger/internal/domain" // Domain models

	"github.com/google/uuid"        // Identifiers
	"github.com/shopspring/decimal" // Exact decimal sums
)

// MemStore is the in-memory Store: accounts, limits and the transaction log
// held in maps and slices, with an explicit per-account lock manager
// providing the exclusive row locks the engine requires. Mutations inside an
// atomic unit are staged and applied to the base maps only on commit, so an
// aborted unit leaves no partial writes. Used by the test suites and as an
// embedded mode without MySQL.
type MemStore struct {
	mu       sync.Mutex
	locks    *LockManager
	lockWait time.Duration // 0 means block until granted

	accounts     map[uuid.UUID]domain.Account
	users        map[uuid.UUID]domain.User
	currencies   map[int]domain.Currency
	limits       map[uuid.UUID]domain.Limit // keyed by account ID
	transactions []domain.Transaction
	limitChanges []domain.LimitChange
}

// NewMemStore returns an empty in-memory store. lockWait bounds how long an
// atomic unit waits for an exclusive account lock before failing with a
// Timeout error; zero means wait indefinitely.
func NewMemStore(lockWait time.Duration) *MemStore {
	return &MemStore{
		locks:      NewLockManager(),
		lockWait:   lockWait,
		accounts:   make(map[uuid.UUID]domain.Account),
		users:      make(map[uuid.UUID]domain.User),
		currencies: make(map[int]domain.Currency),
		limits:     make(map[uuid.UUID]domain.Limit),
	}
}

// AddUser seeds a user record.
func (s *MemStore) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddCurrency seeds a currency record.
func (s *MemStore) AddCurrency(c domain.Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.ID] = c
}

// Accounts implements Store.
func (s *MemStore) Accounts() AccountStore { return memAccounts{s: s} }

// Transactions implements Store.
func (s *MemStore) Transactions() TransactionLog { return memLog{s: s} }

// Limits implements Store.
func (s *MemStore) Limits() LimitStore { return memLimits{s: s} }

// Users implements Store.
func (s *MemStore) Users() UserStore { return memUsers{s: s} }

// Currencies implements Store.
func (s *MemStore) Currencies() CurrencyStore { return memCurrencies{s: s} }

// Atomic runs fn against a staged view of the store. Exclusive locks taken
// via GetForUpdate are held until the unit ends; staged writes are applied
// to the base maps only when fn returns nil.
func (s *MemStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	t := &memTx{
		base:     s,
		ctx:      ctx,
		accounts: make(map[uuid.UUID]*domain.Account),
		limits:   make(map[uuid.UUID]*domain.Limit),
	}
	defer t.releaseLocks()
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// memTx is one atomic unit over a MemStore. It tracks acquired locks plus a
// write set of staged account states, log appends and limit changes.
type memTx struct {
	base *MemStore
	ctx  context.Context

	held     []uuid.UUID
	accounts map[uuid.UUID]*domain.Account // read-your-writes account snapshot
	appends  []domain.Transaction
	limits   map[uuid.UUID]*domain.Limit
	changes  []domain.LimitChange
}

func (t *memTx) Accounts() AccountStore       { return memAccounts{s: t.base, tx: t} }
func (t *memTx) Transactions() TransactionLog { return memLog{s: t.base, tx: t} }
func (t *memTx) Limits() LimitStore           { return memLimits{s: t.base, tx: t} }
func (t *memTx) Users() UserStore             { return memUsers{s: t.base} }
func (t *memTx) Currencies() CurrencyStore    { return memCurrencies{s: t.base} }

// Atomic nested inside a unit joins the enclosing one.
func (t *memTx) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) lock(id uuid.UUID) error {
	for _, held := range t.held {
		if held == id {
			return nil // already held by this unit
		}
	}
	ctx := t.ctx
	if t.base.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.base.lockWait)
		defer cancel()
	}
	if err := t.base.locks.Acquire(ctx, id); err != nil {
		return err
	}
	t.held = append(t.held, id)
	return nil
}

func (t *memTx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.base.locks.Release(t.held[i])
	}
	t.held = nil
}

// commit applies the staged write set to the base store in one critical
// section, then the unit's locks are released by the caller.
func (t *memTx) commit() {
	s := t.base
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, acct := range t.accounts {
		s.accounts[id] = *acct
	}
	s.transactions = append(s.transactions, t.appends...)
	for id, l := range t.limits {
		s.limits[id] = *l
	}
	s.limitChanges = append(s.limitChanges, t.changes...)
}

// memAccounts implements AccountStore over a MemStore, optionally inside an
// atomic unit.
type memAccounts struct {
	s  *MemStore
	tx *memTx
}

func (a memAccounts) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if a.tx != nil {
		if acct, ok := a.tx.accounts[id]; ok {
			cp := *acct
			return &cp, nil
		}
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acct, ok := a.s.accounts[id]
	if !ok {
		return nil, domain.E(domain.KindNotFound, "account not found")
	}
	cp := acct
	return &cp, nil
}

func (a memAccounts) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if a.tx == nil {
		return nil, domain.E(domain.KindStorageFailure, "exclusive read requires an atomic unit")
	}
	if err := a.tx.lock(id); err != nil {
		return nil, err
	}
	acct, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.tx.accounts[id] = acct // pin the snapshot for read-your-writes
	cp := *acct
	return &cp, nil
}

func (a memAccounts) Save(ctx context.Context, account *domain.Account) error {
	cp := *account
	if a.tx != nil {
		a.tx.accounts[account.ID] = &cp
		return nil
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.accounts[account.ID] = cp
	return nil
}

func (a memAccounts) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	cp := *account
	if a.tx != nil {
		a.tx.accounts[account.ID] = &cp
		return nil
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.accounts[account.ID] = cp
	return nil
}

// memLog implements TransactionLog.
type memLog struct {
	s  *MemStore
	tx *memTx
}

// entries snapshots the committed plus staged log entries matching filter,
// newest first.
func (l memLog) entries(filter func(*domain.Transaction) bool) []domain.Transaction {
	l.s.mu.Lock()
	out := make([]domain.Transaction, 0, len(l.s.transactions))
	for i := range l.s.transactions {
		if filter(&l.s.transactions[i]) {
			out = append(out, l.s.transactions[i])
		}
	}
	l.s.mu.Unlock()
	if l.tx != nil {
		for i := range l.tx.appends {
			if filter(&l.tx.appends[i]) {
				out = append(out, l.tx.appends[i])
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	return out
}

func (l memLog) Append(ctx context.Context, entry *domain.Transaction) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if l.tx != nil {
		l.tx.appends = append(l.tx.appends, *entry)
		return nil
	}
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.transactions = append(l.s.transactions, *entry)
	return nil
}

func (l memLog) ExpensesForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	return l.entries(func(t *domain.Transaction) bool {
		return t.AccountID == accountID && t.Amount.IsNegative()
	}), nil
}

func (l memLog) FeeTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	return l.entries(func(t *domain.Transaction) bool {
		return t.AccountID == accountID && t.FeeApplied
	}), nil
}

func (l memLog) TotalSpent(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range l.entries(func(t *domain.Transaction) bool {
		return t.AccountID == accountID && t.Amount.IsNegative() && !t.TransactionDate.Before(since)
	}) {
		total = total.Add(t.Amount)
	}
	return total.Neg(), nil
}

func (l memLog) List(ctx context.Context, offset, limit int) ([]domain.Transaction, int64, error) {
	all := l.entries(func(*domain.Transaction) bool { return true })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// memLimits implements LimitStore.
type memLimits struct {
	s  *MemStore
	tx *memTx
}

func (m memLimits) ForAccount(ctx context.Context, accountID uuid.UUID) (*domain.Limit, error) {
	if m.tx != nil {
		if l, ok := m.tx.limits[accountID]; ok {
			cp := *l
			return &cp, nil
		}
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	l, ok := m.s.limits[accountID]
	if !ok {
		return nil, nil
	}
	cp := l
	return &cp, nil
}

func (m memLimits) Save(ctx context.Context, limit *domain.Limit) error {
	if limit.ID == uuid.Nil {
		limit.ID = uuid.New()
	}
	cp := *limit
	if m.tx != nil {
		m.tx.limits[limit.AccountID] = &cp
		return nil
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.limits[limit.AccountID] = cp
	return nil
}

func (m memLimits) AppendChange(ctx context.Context, change *domain.LimitChange) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	if m.tx != nil {
		m.tx.changes = append(m.tx.changes, *change)
		return nil
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.limitChanges = append(m.s.limitChanges, *change)
	return nil
}

// LimitChanges returns the recorded cap-change history for a limit.
func (s *MemStore) LimitChanges(limitID uuid.UUID) []domain.LimitChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LimitChange
	for _, c := range s.limitChanges {
		if c.LimitID == limitID {
			out = append(out, c)
		}
	}
	return out
}

// memUsers implements UserStore.
type memUsers struct{ s *MemStore }

func (u memUsers) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	_, ok := u.s.users[id]
	return ok, nil
}

// memCurrencies implements CurrencyStore.
type memCurrencies struct{ s *MemStore }

func (c memCurrencies) Get(ctx context.Context, id int) (*domain.Currency, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cur, ok := c.s.currencies[id]
	if !ok {
		return nil, domain.E(domain.KindNotFound, "currency not found")
	}
	cp := cur
	return &cp, nil
}
