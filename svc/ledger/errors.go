package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrProvisioningFailed = errors.New("provisioning failed")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrReconciliationDebt = errors.New("reconciliation debt recorded")

	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service %w", ErrNotFound)
	ErrUserServiceNotFound = fmt.Errorf("user service %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrCodeNotFound        = fmt.Errorf("discount code %w", ErrNotFound)
	ErrBackupNotFound      = fmt.Errorf("backup %w", ErrNotFound)
	ErrDebtNotFound        = fmt.Errorf("reconciliation debt %w", ErrNotFound)

	ErrCodeInactive    = errors.New("discount code is inactive")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidDiscount = errors.New("invalid discount code")
	ErrDuplicateCode   = errors.New("discount code already exists")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidService  = errors.New("invalid service definition")
)
