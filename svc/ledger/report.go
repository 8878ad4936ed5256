package ledger

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxPopularServices caps the popular services section of a report.
const maxPopularServices = 5

func buildSalesReport(from, to time.Time, purchases []Transaction, newUsers, active int, serviceName func(uuid.UUID) string) *SalesReport {
	r := &SalesReport{
		From:           from,
		To:             to,
		TotalSales:     decimal.Zero,
		NewUsers:       newUsers,
		ActiveServices: active,
	}

	byService := make(map[uuid.UUID]*ServiceSales)
	for _, p := range purchases {
		amount := p.Amount.Abs()
		r.TotalSales = r.TotalSales.Add(amount)
		r.SalesCount++

		if p.ServiceID == nil {
			continue
		}
		s, ok := byService[*p.ServiceID]
		if !ok {
			s = &ServiceSales{ServiceID: *p.ServiceID, Name: serviceName(*p.ServiceID), Revenue: decimal.Zero}
			byService[*p.ServiceID] = s
		}
		s.Count++
		s.Revenue = s.Revenue.Add(amount)
	}

	r.PopularServices = make([]ServiceSales, 0, len(byService))
	for _, s := range byService {
		r.PopularServices = append(r.PopularServices, *s)
	}
	slices.SortFunc(r.PopularServices, func(a, b ServiceSales) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Name, b.Name))
	})
	if len(r.PopularServices) > maxPopularServices {
		r.PopularServices = r.PopularServices[:maxPopularServices]
	}
	return r
}

// NormalizeCode returns the canonical (upper-cased, trimmed) form of a discount code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
