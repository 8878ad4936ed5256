package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is an end user identified by the chat id of the front end.
// Balance only changes inside a unit of work together with a Transaction.
type User struct {
	ChatID    int64           `json:"telegram_id"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"wallet_balance"`
	IsAdmin   bool            `json:"is_admin"`
	CreatedAt time.Time       `json:"created_at"`
}

// Service is a catalog template. Editing it never changes issued UserServices.
type Service struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration"`
	DataLimit    int64           `json:"data_limit"`
	IsActive     bool            `json:"is_active"`
	InboundID    int             `json:"inbound_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Duration returns the subscription length granted by the service.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationDays) * 24 * time.Hour
}

// UserService is an issued, provisioned subscription.
type UserService struct {
	ID            uuid.UUID  `json:"id"`
	UserID        int64      `json:"user_id"`
	ServiceID     uuid.UUID  `json:"service_id"`
	Handle        string     `json:"handle"`
	ExpireAt      time.Time  `json:"expire_date"`
	DataLimit     int64      `json:"data_limit"`
	DataUsed      int64      `json:"data_used"`
	IsActive      bool       `json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RemainingBytes returns the unused quota, never negative.
func (us UserService) RemainingBytes() int64 {
	return max(us.DataLimit-us.DataUsed, 0)
}

// RemainingDays returns whole days left until expiry at now, never negative.
func (us UserService) RemainingDays(now time.Time) int {
	if !us.ExpireAt.After(now) {
		return 0
	}
	return int(us.ExpireAt.Sub(now) / (24 * time.Hour))
}

// Exhausted reports whether the quota is used up.
func (us UserService) Exhausted() bool {
	return us.DataLimit > 0 && us.DataUsed >= us.DataLimit
}

// Lapsed reports whether us is expired or exhausted at now.
func (us UserService) Lapsed(now time.Time) bool {
	return !us.ExpireAt.After(now) || us.Exhausted()
}

// Purgeable reports whether us is inactive and was deactivated before the
// cutoff. Rows without a deactivation time are judged by expiry.
func (us UserService) Purgeable(before time.Time) bool {
	if us.IsActive {
		return false
	}
	if us.DeactivatedAt != nil {
		return us.DeactivatedAt.Before(before)
	}
	return us.ExpireAt.Before(before)
}

type TransactionKind string

const (
	TransactionPurchase TransactionKind = "purchase"
	TransactionDeposit  TransactionKind = "deposit"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusRejected  TransactionStatus = "rejected"
)

// Transaction is an append-only ledger entry. Purchases carry a negative
// amount and deposits a positive one, so a user's balance always equals the
// sum of their completed transactions.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	UserID        int64             `json:"user_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Kind          TransactionKind   `json:"type"`
	Status        TransactionStatus `json:"status"`
	ServiceID     *uuid.UUID        `json:"service_id,omitempty"`
	UserServiceID *uuid.UUID        `json:"user_service_id,omitempty"`
	DiscountCode  string            `json:"discount_code,omitempty"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

// DiscountCode reduces a purchase price. Codes are stored upper-cased.
type DiscountCode struct {
	Code      string          `json:"code"`
	Kind      DiscountKind    `json:"type"`
	Magnitude decimal.Decimal `json:"amount"`
	IsActive  bool            `json:"is_active"`
	UsedCount int             `json:"used_count"`
	CreatedAt time.Time       `json:"created_at"`
}

type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// SystemLog is an operational event persisted for operators.
type SystemLog struct {
	ID        uuid.UUID       `json:"id"`
	Level     LogLevel        `json:"level"`
	Module    string          `json:"module"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ErrorLog is a persisted failure, optionally tied to a user.
type ErrorLog struct {
	ID        uuid.UUID       `json:"id"`
	ErrorType string          `json:"error_type"`
	Message   string          `json:"error_message"`
	Details   json.RawMessage `json:"details,omitempty"`
	UserID    *int64          `json:"user_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type BackupKind string

const (
	BackupUsers        BackupKind = "users"
	BackupServices     BackupKind = "services"
	BackupTransactions BackupKind = "transactions"
	BackupFull         BackupKind = "full"
)

type BackupStatus string

const (
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

// Backup is the metadata row of an exported backup artifact.
type Backup struct {
	ID        uuid.UUID    `json:"id"`
	Filename  string       `json:"filename"`
	Size      int64        `json:"size"`
	Kind      BackupKind   `json:"type"`
	Status    BackupStatus `json:"status"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReconciliationDebt records an external account that diverged from the
// ledger and needs operator attention.
type ReconciliationDebt struct {
	ID         uuid.UUID  `json:"id"`
	UserID     int64      `json:"user_id"`
	Handle     string     `json:"handle"`
	Operation  string     `json:"operation"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ServiceSales counts completed purchases of one service.
type ServiceSales struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Name      string          `json:"name"`
	Count     int             `json:"count"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SalesReport summarizes completed purchases within [From, To).
type SalesReport struct {
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	SalesCount      int             `json:"sales_count"`
	NewUsers        int             `json:"new_users"`
	ActiveServices  int             `json:"active_services"`
	PopularServices []ServiceSales  `json:"popular_services"`
}

// TransactionFilter narrows ListTransactions. Zero fields match everything.
type TransactionFilter struct {
	UserID *int64
	Kind   TransactionKind
	Status TransactionStatus
	From   time.Time
	To     time.Time
}

func (f TransactionFilter) match(t Transaction) bool {
	if f.UserID != nil && t.UserID != *f.UserID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
