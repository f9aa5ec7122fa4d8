package engine

import (
	"context"
	"strings"

	"github.com/Veraticus/policybook/internal/model"
	"github.com/shopspring/decimal"
)

// MonthlyReport summarizes the clients whose payment falls in the current
// month: client count per company, gross total and net total. The net total
// is the gross total times the store's ratio, rounded half to even.
func (e *ClientEngine) MonthlyReport(ctx context.Context) (model.MonthlyReport, error) {
	month := e.now().Format("2006-01")
	report := model.MonthlyReport{
		Month:      month,
		Companies:  make(map[string]int),
		GrossTotal: decimal.Zero,
		NetTotal:   decimal.Zero,
	}

	clients, err := e.Clients(ctx)
	if err != nil {
		return report, err
	}

	for _, c := range clients {
		due, err := c.DueDate()
		if err != nil {
			continue
		}
		if due.Format("2006-01") != month {
			continue
		}
		report.Companies[strings.ToUpper(c.InsuranceCompany)]++
		report.GrossTotal = report.GrossTotal.Add(decimal.NewFromInt(int64(c.Price)))
		report.Clients++
	}

	ratio := decimal.NewFromFloat(e.store.Ratio())
	report.NetTotal = report.GrossTotal.Mul(ratio).RoundBank(0)
	return report, nil
}
