// Package ledger keeps the client book in a spreadsheet: a primary client
// table plus a company count table and a metrics table that are recomputed
// from it on every mutation.
package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/excel"
)

// DefaultRatio is the net/gross ratio written to the metrics table.
const DefaultRatio = 0.74

// Layout describes where the tables live on the sheet.
type Layout struct {
	Sheet            string   `mapstructure:"sheet"`
	MainStartCol     string   `mapstructure:"main_start_col"`
	CompanyStartCol  string   `mapstructure:"company_start_col"`
	CompanyColumn    string   `mapstructure:"company_column"`
	PriceColumn      string   `mapstructure:"price_column"`
	NextPaymentCol   string   `mapstructure:"next_payment_column"`
	Currency         string   `mapstructure:"currency"`
	MainHeaders      []string `mapstructure:"main_headers"`
	CompanyHeaders   []string `mapstructure:"company_headers"`
	SummaryHeaders   []string `mapstructure:"summary_headers"`
	UppercaseColumns []string `mapstructure:"uppercase_columns"`
	Ratio            float64  `mapstructure:"ratio"`
	AutofitOffset    int      `mapstructure:"autofit_offset"`
}

// DefaultLayout returns the standard client book layout.
func DefaultLayout() Layout {
	return Layout{
		Sheet:           "Clients",
		MainHeaders:     []string{"NAME", "EMAIL", "INSURANCE_COMPANY", "CAR_MODEL", "CAR_YEAR", "PRICE", "NEXT_PAYMENT"},
		CompanyHeaders:  []string{"INSURANCE_COMPANY", "CLIENT"},
		SummaryHeaders:  []string{"METRIC", "VALUE"},
		MainStartCol:    "A",
		CompanyStartCol: "I",
		CompanyColumn:   "INSURANCE_COMPANY",
		PriceColumn:     "PRICE",
		NextPaymentCol:  "NEXT_PAYMENT",
		Currency:        "PLN",
		Ratio:           DefaultRatio,
		AutofitOffset:   5,
	}
}

// Styles holds the three style presets. Any of them may be nil.
type Styles struct {
	Header  *excel.CellStyle `mapstructure:"header"`
	Row     *excel.CellStyle `mapstructure:"row"`
	Overdue *excel.CellStyle `mapstructure:"overdue"`
}

// DefaultStyles returns the green header/row presets and the red overdue preset.
func DefaultStyles() Styles {
	header := excel.DefaultHeaderStyle()
	row := excel.DefaultRowStyle()
	overdue := excel.DefaultOverdueStyle()
	return Styles{Header: &header, Row: &row, Overdue: &overdue}
}

// Validate checks the styles' border and color values.
func (s Styles) Validate() error {
	for name, style := range map[string]*excel.CellStyle{"header": s.Header, "row": s.Row, "overdue": s.Overdue} {
		if err := style.Validate(); err != nil {
			return fmt.Errorf("%w: %s style: %w", common.ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// columns is a Layout resolved to 1-based column indices.
type columns struct {
	mainStart    int
	companyStart int
	summaryStart int
	company      int
	price        int
	nextPayment  int
	uppercase    []int
}

// resolve validates the layout and computes absolute column positions.
// The metrics table always starts two columns past the rightmost column used
// by the primary and company tables.
func (l Layout) resolve() (columns, error) {
	var c columns

	if len(l.MainHeaders) < 1 {
		return c, fmt.Errorf("%w: main table headers collection should have at least 1 item", common.ErrInvalidConfig)
	}
	if len(l.CompanyHeaders) != 2 {
		return c, fmt.Errorf("%w: company table headers collection should have 2 items", common.ErrInvalidConfig)
	}
	if len(l.SummaryHeaders) != 2 {
		return c, fmt.Errorf("%w: summary table headers collection should have 2 items", common.ErrInvalidConfig)
	}

	var err error
	if c.mainStart, err = columnIndex(l.MainStartCol); err != nil {
		return c, err
	}
	if c.companyStart, err = columnIndex(l.CompanyStartCol); err != nil {
		return c, err
	}

	mainEnd := c.mainStart + len(l.MainHeaders)
	companyEnd := c.companyStart + len(l.CompanyHeaders)
	if c.mainStart < companyEnd && c.companyStart < mainEnd {
		return c, fmt.Errorf("%w: incorrect column ranges: main and company tables overlap", common.ErrInvalidConfig)
	}
	c.summaryStart = max(mainEnd, companyEnd) - 1 + 2

	for _, target := range []struct {
		name string
		dst  *int
	}{
		{l.CompanyColumn, &c.company},
		{l.PriceColumn, &c.price},
		{l.NextPaymentCol, &c.nextPayment},
	} {
		idx := slices.Index(l.MainHeaders, target.name)
		if idx < 0 {
			return c, fmt.Errorf("%w: column %q is not a main table header", common.ErrInvalidConfig, target.name)
		}
		*target.dst = c.mainStart + idx
	}

	for _, letter := range l.UppercaseColumns {
		idx, err := columnIndex(letter)
		if err != nil {
			return c, err
		}
		c.uppercase = append(c.uppercase, idx)
	}

	if l.Ratio < 0 {
		return c, fmt.Errorf("%w: ratio cannot be negative", common.ErrInvalidConfig)
	}

	return c, nil
}

func columnIndex(letter string) (int, error) {
	idx, err := excel.ColumnIndex(strings.ToUpper(strings.TrimSpace(letter)))
	if err != nil {
		return 0, fmt.Errorf("%w: column %q: %w", common.ErrInvalidConfig, letter, err)
	}
	return idx, nil
}
