package ledger

import (
	"context"      // Request-scoped queries
	"database/sql" // Transaction isolation options
	"errors"       // Sentinel error detection
	"time"         // Time-window queries

	"bank_ledger/internal/domain" // Domain models

	"github.com/go-sql-driver/mysql" // MySQL error codes
	"github.com/google/uuid"         // Identifiers
	"github.com/shopspring/decimal"  // Exact decimal sums
	"gorm.io/gorm"                   // GORM ORM library
	"gorm.io/gorm/clause"            // Row locking clause
)

// mysqlLockWaitTimeout is the server error raised when an exclusive row lock
// could not be granted within innodb_lock_wait_timeout.
const mysqlLockWaitTimeout = 1205

// GormStore is the MySQL-backed Store. The atomic unit is a database
// transaction at REPEATABLE READ, so the limit check's aggregate read and
// the balance re-check observe a consistent snapshot; exclusive per-row
// locks are the engine's SELECT ... FOR UPDATE.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Accounts implements Store.
func (s *GormStore) Accounts() AccountStore { return gormAccounts{db: s.db} }

// Transactions implements Store.
func (s *GormStore) Transactions() TransactionLog { return gormLog{db: s.db} }

// Limits implements Store.
func (s *GormStore) Limits() LimitStore { return gormLimits{db: s.db} }

// Users implements Store.
func (s *GormStore) Users() UserStore { return gormUsers{db: s.db} }

// Currencies implements Store.
func (s *GormStore) Currencies() CurrencyStore { return gormCurrencies{db: s.db} }

// Atomic runs fn inside one REPEATABLE READ database transaction. Row locks
// taken via GetForUpdate are released on commit or rollback.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
}

// storageErr classifies a driver error: lock wait expiries become Timeout,
// anything else a StorageFailure.
func storageErr(err error, message string) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlLockWaitTimeout {
		return domain.E(domain.KindTimeout, "timed out waiting for account lock")
	}
	return domain.WrapStorage(err, message)
}

// gormAccounts implements AccountStore.
type gormAccounts struct{ db *gorm.DB }

func (a gormAccounts) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	err := a.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.E(domain.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, storageErr(err, "failed to load account")
	}
	return &account, nil
}

func (a gormAccounts) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.E(domain.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, storageErr(err, "failed to lock account")
	}
	return &account, nil
}

func (a gormAccounts) Save(ctx context.Context, account *domain.Account) error {
	if err := a.db.WithContext(ctx).Save(account).Error; err != nil {
		return storageErr(err, "failed to save account")
	}
	return nil
}

func (a gormAccounts) Create(ctx context.Context, account *domain.Account) error {
	if err := a.db.WithContext(ctx).Create(account).Error; err != nil {
		return storageErr(err, "failed to create account")
	}
	return nil
}

// gormLog implements TransactionLog.
type gormLog struct{ db *gorm.DB }

func (l gormLog) Append(ctx context.Context, entry *domain.Transaction) error {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return storageErr(err, "failed to append transaction")
	}
	return nil
}

func (l gormLog) ExpensesForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := l.db.WithContext(ctx).
		Where("account_id = ? AND amount < 0", accountID).
		Order("transaction_date DESC").
		Find(&out).Error
	if err != nil {
		return nil, storageErr(err, "failed to fetch expense transactions")
	}
	return out, nil
}

func (l gormLog) FeeTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := l.db.WithContext(ctx).
		Where("account_id = ? AND fee_applied = ?", accountID, true).
		Order("transaction_date DESC").
		Find(&out).Error
	if err != nil {
		return nil, storageErr(err, "failed to fetch fee transactions")
	}
	return out, nil
}

func (l gormLog) TotalSpent(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := l.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("COALESCE(SUM(-amount), 0)").
		Where("account_id = ? AND amount < 0 AND transaction_date >= ?", accountID, since).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, storageErr(err, "failed to sum spent amount")
	}
	return total, nil
}

func (l gormLog) List(ctx context.Context, offset, limit int) ([]domain.Transaction, int64, error) {
	var total int64
	if err := l.db.WithContext(ctx).Model(&domain.Transaction{}).Count(&total).Error; err != nil {
		return nil, 0, storageErr(err, "failed to count transactions")
	}
	var out []domain.Transaction
	err := l.db.WithContext(ctx).
		Order("transaction_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, storageErr(err, "failed to fetch transactions")
	}
	return out, total, nil
}

// gormLimits implements LimitStore.
type gormLimits struct{ db *gorm.DB }

func (g gormLimits) ForAccount(ctx context.Context, accountID uuid.UUID) (*domain.Limit, error) {
	var limit domain.Limit
	err := g.db.WithContext(ctx).First(&limit, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // no limit set
	}
	if err != nil {
		return nil, storageErr(err, "failed to load limit")
	}
	return &limit, nil
}

func (g gormLimits) Save(ctx context.Context, limit *domain.Limit) error {
	if err := g.db.WithContext(ctx).Save(limit).Error; err != nil {
		return storageErr(err, "failed to save limit")
	}
	return nil
}

func (g gormLimits) AppendChange(ctx context.Context, change *domain.LimitChange) error {
	if err := g.db.WithContext(ctx).Create(change).Error; err != nil {
		return storageErr(err, "failed to record limit change")
	}
	return nil
}

// gormUsers implements UserStore.
type gormUsers struct{ db *gorm.DB }

func (g gormUsers) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, storageErr(err, "failed to look up user")
	}
	return count > 0, nil
}

// gormCurrencies implements CurrencyStore.
type gormCurrencies struct{ db *gorm.DB }

func (g gormCurrencies) Get(ctx context.Context, id int) (*domain.Currency, error) {
	var currency domain.Currency
	err := g.db.WithContext(ctx).First(&currency, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.E(domain.KindNotFound, "currency not found")
	}
	if err != nil {
		return nil, storageErr(err, "failed to load currency")
	}
	return &currency, nil
}
