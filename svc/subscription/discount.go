package subscription

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/svc/ledger"
)

var (
	hundred     = decimal.NewFromInt(100)
	codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
)

// discounted returns base reduced by d: percent codes scale it by
// (1 - pct/100), fixed codes subtract the magnitude floored at zero.
func discounted(d ledger.DiscountCode, base decimal.Decimal) decimal.Decimal {
	switch d.Kind {
	case ledger.DiscountPercent:
		return base.Mul(hundred.Sub(d.Magnitude)).Div(hundred).Round(2)
	case ledger.DiscountFixed:
		return decimal.Max(decimal.Zero, base.Sub(d.Magnitude))
	default:
		return base
	}
}

// ApplyDiscount quotes the price of base after code. It never consumes the
// code.
func (e *Engine) ApplyDiscount(ctx context.Context, code string, base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Zero, ledger.ErrInvalidAmount
	}

	var final decimal.Decimal
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		d, err := tx.GetDiscountCode(ctx, code)
		if err != nil {
			return err
		}
		if !d.IsActive {
			return ledger.ErrCodeInactive
		}
		final = discounted(*d, base)
		return nil
	})
	return final, err
}

// ValidateDiscount checks a discount definition: a 3-32 character code of
// upper-case letters, digits, dash or underscore; percent magnitude in
// (0, 100]; fixed magnitude above zero.
func ValidateDiscount(code string, kind ledger.DiscountKind, magnitude decimal.Decimal) error {
	if !codePattern.MatchString(ledger.NormalizeCode(code)) {
		return ledger.ErrInvalidDiscount
	}
	switch kind {
	case ledger.DiscountPercent:
		if !magnitude.IsPositive() || magnitude.GreaterThan(hundred) {
			return ledger.ErrInvalidDiscount
		}
	case ledger.DiscountFixed:
		if !magnitude.IsPositive() {
			return ledger.ErrInvalidDiscount
		}
	default:
		return ledger.ErrInvalidDiscount
	}
	return nil
}

// CreateDiscountCode validates and stores a new active code.
func (e *Engine) CreateDiscountCode(ctx context.Context, code string, kind ledger.DiscountKind, magnitude decimal.Decimal) (*ledger.DiscountCode, error) {
	if err := ValidateDiscount(code, kind, magnitude); err != nil {
		return nil, err
	}

	d := &ledger.DiscountCode{
		Code:      ledger.NormalizeCode(code),
		Kind:      kind,
		Magnitude: magnitude,
		IsActive:  true,
		CreatedAt: e.now(),
	}
	if err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.CreateDiscountCode(ctx, d)
	}); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "discount code created", slog.String("code", d.Code), slog.String("kind", string(d.Kind)))
	return d, nil
}

// SetDiscountCodeActive enables or disables a code.
func (e *Engine) SetDiscountCodeActive(ctx context.Context, code string, active bool) error {
	return e.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.SetDiscountCodeActive(ctx, code, active)
	})
}
