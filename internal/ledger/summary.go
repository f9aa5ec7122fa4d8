package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Veraticus/policybook/internal/excel"
	"github.com/Veraticus/policybook/internal/model"
)

// formulaLastRow bounds the ranges referenced by the summary formulas.
const formulaLastRow = 1000

// updateSummaryTables normalizes the uppercase columns, rebuilds the company
// and metrics tables, and saves.
func (t *ClientTable) updateSummaryTables() error {
	if err := t.enforceUppercase(); err != nil {
		return err
	}
	companies, err := t.distinctCompanies()
	if err != nil {
		return err
	}
	if err := t.writeCompanySummary(companies); err != nil {
		return fmt.Errorf("write company summary: %w", err)
	}
	if err := t.writeMetrics(); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return t.Save()
}

func (t *ClientTable) enforceUppercase() error {
	if len(t.cols.uppercase) == 0 {
		return nil
	}
	ranges := make([]excel.Range, 0, len(t.cols.uppercase))
	for _, col := range t.cols.uppercase {
		last, err := t.wb.LastNonEmptyRow(col)
		if err != nil {
			return err
		}
		if last < 2 {
			continue
		}
		ranges = append(ranges, excel.ColumnRange(col, 2, last))
	}
	return t.wb.ApplyStringTransform(func(s string) (string, error) {
		return strings.ToUpper(s), nil
	}, ranges...)
}

// distinctCompanies returns the sorted, uppercased company labels found in
// the main table.
func (t *ClientTable) distinctCompanies() ([]string, error) {
	last, err := t.wb.LastNonEmptyRow(t.cols.company)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var labels []string
	for row := 2; row <= last; row++ {
		v, err := t.wb.Value(t.cols.company, row)
		if err != nil {
			return nil, err
		}
		label := strings.ToUpper(strings.TrimSpace(v))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels, nil
}

func (t *ClientTable) writeCompanySummary(companies []string) error {
	start := t.cols.companyStart
	headers := make([]any, len(t.layout.CompanyHeaders))
	for i, h := range t.layout.CompanyHeaders {
		headers[i] = strings.ReplaceAll(h, "_", " ")
	}
	if err := t.wb.WriteRow(headers, 1, start); err != nil {
		return err
	}

	maxRow, err := t.wb.MaxRow()
	if err != nil {
		return err
	}
	for row := 2; row <= maxRow; row++ {
		for _, col := range []int{start, start + 1} {
			if err := t.wb.ClearCell(col, row); err != nil {
				return err
			}
		}
	}

	source, err := excel.ColumnLetter(t.cols.company)
	if err != nil {
		return err
	}
	labelCol, err := excel.ColumnLetter(start)
	if err != nil {
		return err
	}
	for i, label := range companies {
		row := i + 2
		if err := t.wb.SetValue(start, row, label); err != nil {
			return err
		}
		formula := fmt.Sprintf("COUNTIF(%[1]s2:%[1]s%[2]d,%[3]s%[4]d)", source, formulaLastRow, labelCol, row)
		if err := t.wb.SetFormula(start+1, row, formula); err != nil {
			return err
		}
	}
	return nil
}

// metricFormats are the display formats of metric rows 1 through 4.
var metricFormats = []string{"", "0", "0.00", "0"}

func (t *ClientTable) writeMetrics() error {
	labelCol := t.cols.summaryStart
	valueCol := labelCol + 1

	identity, err := excel.ColumnLetter(t.cols.mainStart)
	if err != nil {
		return err
	}
	price, err := excel.ColumnLetter(t.cols.price)
	if err != nil {
		return err
	}
	value, err := excel.ColumnLetter(valueCol)
	if err != nil {
		return err
	}

	currency := t.layout.Currency
	labels := []string{
		"People",
		strings.TrimSpace("Gross " + currency),
		"Ratio",
		strings.TrimSpace("Net " + currency),
	}
	for i, label := range labels {
		if err := t.wb.SetValue(labelCol, i+1, label); err != nil {
			return err
		}
	}

	if err := t.wb.SetFormula(valueCol, 1, fmt.Sprintf("COUNTA(%[1]s2:%[1]s%[2]d)", identity, formulaLastRow)); err != nil {
		return err
	}
	if err := t.wb.SetFormula(valueCol, 2, fmt.Sprintf("SUM(%[1]s2:%[1]s%[2]d)", price, formulaLastRow)); err != nil {
		return err
	}
	if err := t.wb.SetValue(valueCol, 3, t.layout.Ratio); err != nil {
		return err
	}
	if err := t.wb.SetFormula(valueCol, 4, fmt.Sprintf("%[1]s2*%[1]s3", value)); err != nil {
		return err
	}

	for row := 2; row < len(metricFormats)+1; row++ {
		if err := t.wb.SetColumnNumberFormat(valueCol, metricFormats[row-1], row, row); err != nil {
			return err
		}
	}
	return nil
}

// Save reapplies table styling and overdue highlighting, autofits columns
// and writes the workbook to disk.
func (t *ClientTable) Save() error {
	if err := t.wb.StyleTableArea(t.cols.mainStart, len(t.layout.MainHeaders), t.styles.Header, t.styles.Row); err != nil {
		return fmt.Errorf("style main table: %w", err)
	}
	if err := t.wb.StyleTableArea(t.cols.companyStart, len(t.layout.CompanyHeaders), t.styles.Header, t.styles.Row); err != nil {
		return fmt.Errorf("style company table: %w", err)
	}
	if err := t.styleMetrics(); err != nil {
		return fmt.Errorf("style metrics: %w", err)
	}
	if err := t.highlightOverdue(); err != nil {
		return fmt.Errorf("highlight overdue: %w", err)
	}
	if err := t.wb.AutofitColumnWidths(t.layout.AutofitOffset); err != nil {
		return err
	}
	return t.wb.Save()
}

func (t *ClientTable) styleMetrics() error {
	for row := 1; row <= len(metricFormats); row++ {
		if err := t.wb.StyleCell(t.cols.summaryStart, row, t.styles.Header); err != nil {
			return err
		}
		if err := t.wb.StyleCell(t.cols.summaryStart+1, row, t.styles.Row); err != nil {
			return err
		}
	}
	return nil
}

// highlightOverdue paints every main table row whose next payment is today
// or earlier. Cells that do not hold a date are ignored. Parts of the
// overdue preset that the row preset leaves unset are reset on the other
// rows, so a paid client loses the highlight.
func (t *ClientTable) highlightOverdue() error {
	if t.styles.Overdue.IsZero() {
		return nil
	}
	last, err := t.wb.LastNonEmptyRow(t.cols.mainStart)
	if err != nil {
		return err
	}
	stale := t.styles.Overdue.Uncovered(t.styles.Row)
	today := model.Today(t.now())
	width := len(t.layout.MainHeaders)
	for row := 2; row <= last; row++ {
		due, err := t.wb.DateValue(t.cols.nextPayment, row)
		overdue := err == nil && !due.After(today)
		for offset := 0; offset < width; offset++ {
			col := t.cols.mainStart + offset
			if overdue {
				err = t.wb.StyleCell(col, row, t.styles.Overdue)
			} else {
				err = t.wb.ResetStyle(col, row, stale)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
