package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the transactional ledger store. Every read and write happens in
// a unit of work opened by Tx: either all writes made through tx become
// visible together, or none do.
type Store interface {
	Tx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	UserRepo
	ServiceRepo
	UserServiceRepo
	TransactionRepo
	DiscountRepo
	LogRepo
	BackupRepo
	ReconciliationRepo

	SalesReport(ctx context.Context, from, to time.Time) (*SalesReport, error)
}

type UserRepo interface {
	GetUser(ctx context.Context, chatID int64) (*User, error)
	// LockUser loads a user and holds it exclusively until the unit of work ends.
	LockUser(ctx context.Context, chatID int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	SetUserBalance(ctx context.Context, chatID int64, balance decimal.Decimal) error
	ListUsers(ctx context.Context) ([]User, error)
	ListAdmins(ctx context.Context) ([]User, error)
}

type ServiceRepo interface {
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]Service, error)
	CreateService(ctx context.Context, s *Service) error
	UpdateService(ctx context.Context, s *Service) error
}

type UserServiceRepo interface {
	GetUserService(ctx context.Context, id uuid.UUID) (*UserService, error)
	CreateUserService(ctx context.Context, us *UserService) error
	UpdateUserService(ctx context.Context, us *UserService) error
	DeleteUserService(ctx context.Context, id uuid.UUID) error
	ListUserServices(ctx context.Context, chatID int64, activeOnly bool) ([]UserService, error)
	ListActiveUserServices(ctx context.Context) ([]UserService, error)
	// ListPurgeable returns inactive user services deactivated before the
	// cutoff. Services without a deactivation time are judged by expiry.
	ListPurgeable(ctx context.Context, before time.Time) ([]UserService, error)
	// DeactivateUserServices flags the given services inactive, skipping
	// any that are no longer active or no longer lapsed at the given time.
	DeactivateUserServices(ctx context.Context, ids []uuid.UUID, at time.Time) (int, error)
	// PurgeUserService deletes a service only if it is still purgeable
	// before the cutoff and returns the deleted row. ErrUserServiceNotFound
	// means the row is gone; ErrInvalidState means it changed since listing.
	PurgeUserService(ctx context.Context, id uuid.UUID, before time.Time) (*UserService, error)
	SetUserServiceUsage(ctx context.Context, id uuid.UUID, used int64) error
}

type TransactionRepo interface {
	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// LockTransaction loads a transaction and holds it exclusively until
	// the unit of work ends.
	LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	SetTransactionStatus(ctx context.Context, id uuid.UUID, status TransactionStatus, at time.Time) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
	SumCompleted(ctx context.Context, chatID int64) (decimal.Decimal, error)
}

type DiscountRepo interface {
	GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error)
	CreateDiscountCode(ctx context.Context, d *DiscountCode) error
	IncrementDiscountUsage(ctx context.Context, code string) error
	SetDiscountCodeActive(ctx context.Context, code string, active bool) error
	ListDiscountCodes(ctx context.Context) ([]DiscountCode, error)
}

type LogRepo interface {
	CreateSystemLog(ctx context.Context, l *SystemLog) error
	CreateErrorLog(ctx context.Context, l *ErrorLog) error
	// PurgeLogsBefore deletes system and error logs created before the cutoff.
	PurgeLogsBefore(ctx context.Context, before time.Time) (int, error)
	ListSystemLogs(ctx context.Context, limit int) ([]SystemLog, error)
	ListErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error)
}

type BackupRepo interface {
	CreateBackup(ctx context.Context, b *Backup) error
	// ListBackups returns backups newest first.
	ListBackups(ctx context.Context) ([]Backup, error)
	DeleteBackup(ctx context.Context, id uuid.UUID) error
}

type ReconciliationRepo interface {
	CreateReconciliationDebt(ctx context.Context, d *ReconciliationDebt) error
	ListOpenReconciliationDebts(ctx context.Context) ([]ReconciliationDebt, error)
	// ResolveReconciliationDebt marks an open debt settled. Resolving it
	// twice returns ErrInvalidState.
	ResolveReconciliationDebt(ctx context.Context, id uuid.UUID, at time.Time) error
}
