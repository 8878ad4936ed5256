package notify

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const gib = 1 << 30

// Formatter renders user-facing notification texts with locale-aware
// number formatting.
type Formatter struct {
	p        *message.Printer
	currency string
}

// NewFormatter creates a formatter for the BCP 47 tag lang. Unknown tags
// fall back to English.
func NewFormatter(lang, currency string) *Formatter {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &Formatter{p: message.NewPrinter(tag), currency: currency}
}

// Money formats an amount with grouping and the configured currency.
func (f *Formatter) Money(d decimal.Decimal) string {
	if d.IsInteger() {
		return f.p.Sprintf("%d %s", d.IntPart(), f.currency)
	}
	return f.p.Sprintf("%.2f %s", d.InexactFloat64(), f.currency)
}

// Bytes formats a byte count in gigabytes with one decimal.
func (f *Formatter) Bytes(n int64) string {
	return f.p.Sprintf("%.1f GB", float64(n)/gib)
}

func (f *Formatter) ExpiryReminder(service string, days int) string {
	if days <= 0 {
		return f.p.Sprintf("Your subscription %q expires today. Renew it to keep the service running.", service)
	}
	return f.p.Sprintf("Your subscription %q expires in %d day(s). Renew it to keep the service running.", service, days)
}

func (f *Formatter) LowQuota(service string, remaining int64) string {
	return f.p.Sprintf("Your subscription %q has only %s of traffic left.", service, f.Bytes(remaining))
}

func (f *Formatter) DepositApproved(amount, balance decimal.Decimal) string {
	return f.p.Sprintf("Your deposit of %s was approved. New balance: %s.", f.Money(amount), f.Money(balance))
}

func (f *Formatter) DepositRejected(amount decimal.Decimal) string {
	return f.p.Sprintf("Your deposit of %s was rejected. Contact support if you believe this is a mistake.", f.Money(amount))
}

func (f *Formatter) ResourceAlert(resource string, percent float64) string {
	return f.p.Sprintf("Warning: %s usage is at %.1f%%.", resource, percent)
}
