package ledger

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/excel"
	"github.com/Veraticus/policybook/internal/model"
)

// Options configures a ClientTable.
type Options struct {
	Now    func() time.Time
	Logger *slog.Logger
	Path   string
	Styles Styles
	Layout Layout
}

// ClientTable is the spreadsheet-backed client store. It is not safe for
// concurrent use; every mutation is persisted through Save before returning.
type ClientTable struct {
	wb     *excel.Workbook
	now    func() time.Time
	logger *slog.Logger
	styles Styles
	layout Layout
	cols   columns
}

// Open validates the layout, loads or creates the workbook, writes the main
// table headers if row 1 is empty, and recomputes the summary tables.
func Open(opts Options) (*ClientTable, error) {
	cols, err := opts.Layout.resolve()
	if err != nil {
		return nil, err
	}
	if err := opts.Styles.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	sheet := opts.Layout.Sheet
	if sheet == "" {
		sheet = DefaultLayout().Sheet
	}

	wb, err := excel.Open(opts.Path, sheet)
	if err != nil {
		return nil, err
	}

	t := &ClientTable{
		wb:     wb,
		now:    opts.Now,
		logger: opts.Logger,
		styles: opts.Styles,
		layout: opts.Layout,
		cols:   cols,
	}

	empty, err := wb.RowEmpty(1)
	if err != nil {
		_ = wb.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}
	if empty {
		headers := make([]any, len(opts.Layout.MainHeaders))
		for i, h := range opts.Layout.MainHeaders {
			headers[i] = strings.ReplaceAll(h, "_", " ")
		}
		if err := wb.WriteRow(headers, 1, cols.mainStart); err != nil {
			_ = wb.Close()
			return nil, fmt.Errorf("write headers: %w", err)
		}
	}

	if err := t.updateSummaryTables(); err != nil {
		_ = wb.Close()
		return nil, err
	}

	return t, nil
}

// Close releases the workbook.
func (t *ClientTable) Close() error {
	return t.wb.Close()
}

// Path returns the workbook file path.
func (t *ClientTable) Path() string {
	return t.wb.Path()
}

// Ratio returns the configured net/gross ratio.
func (t *ClientTable) Ratio() float64 {
	return t.layout.Ratio
}

// Headers returns the main table headers.
func (t *ClientTable) Headers() []string {
	return t.layout.MainHeaders
}

// NextInsertionRow returns the first data row whose identity cell is empty,
// or the row after the last populated one.
func (t *ClientTable) NextInsertionRow() (int, error) {
	maxRow, err := t.wb.MaxRow()
	if err != nil {
		return 0, err
	}
	for row := 2; row <= maxRow; row++ {
		v, err := t.wb.Value(t.cols.mainStart, row)
		if err != nil {
			return 0, err
		}
		if v == "" {
			return row, nil
		}
	}
	return max(maxRow+1, 2), nil
}

// Insert writes the client at the next insertion row and saves.
func (t *ClientTable) Insert(client model.Client) error {
	row, err := t.NextInsertionRow()
	if err != nil {
		return err
	}
	if err := t.wb.WriteRow(client.Values(), row, t.cols.mainStart); err != nil {
		return err
	}
	t.logger.Debug("inserted client row", "row", row, "email", client.Email)
	return t.updateSummaryTables()
}

// UpdateByColumn overwrites the first row whose cell in column (1-based,
// relative to the main table) equals match. It reports whether a row matched.
func (t *ClientTable) UpdateByColumn(column int, match string, client model.Client) (bool, error) {
	row, err := t.findRow(column, match)
	if err != nil || row == 0 {
		return false, err
	}
	if err := t.wb.WriteRow(client.Values(), row, t.cols.mainStart); err != nil {
		return false, err
	}
	return true, t.updateSummaryTables()
}

// ShiftDate moves the date in dateColumn of the first matching row by days.
// It reports false when no row matches or the cell does not hold a date.
func (t *ClientTable) ShiftDate(column int, match string, dateColumn int, days int) (bool, error) {
	row, err := t.findRow(column, match)
	if err != nil || row == 0 {
		return false, err
	}
	col := t.cols.mainStart + dateColumn - 1
	current, err := t.wb.DateValue(col, row)
	if err != nil {
		t.logger.Debug("cannot shift non-date cell", "row", row, "error", err)
		return false, nil
	}
	shifted := current.AddDate(0, 0, days).Format(model.DateLayout)
	if err := t.wb.SetValue(col, row, shifted); err != nil {
		return false, err
	}
	return true, t.Save()
}

// RemoveByColumn deletes the first matching row, shifting later rows up.
func (t *ClientTable) RemoveByColumn(column int, match string) (bool, error) {
	row, err := t.findRow(column, match)
	if err != nil || row == 0 {
		return false, err
	}
	if err := t.wb.DeleteRow(row); err != nil {
		return false, err
	}
	return true, t.updateSummaryTables()
}

// LoadAll reads every complete client row. Rows with a blank field or a
// non-numeric year or price are skipped.
func (t *ClientTable) LoadAll() ([]model.Client, error) {
	rows, err := t.wb.Rows()
	if err != nil {
		return nil, err
	}

	start := t.cols.mainStart - 1
	clients := make([]model.Client, 0, len(rows))
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < start+model.ClientFieldCount {
			continue
		}
		cells := row[start : start+model.ClientFieldCount]
		if slices.Contains(cells, "") {
			continue
		}

		client, ok := t.parseRow(i+1, cells)
		if !ok {
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func (t *ClientTable) parseRow(rowNum int, cells []string) (model.Client, bool) {
	year, err := parseWhole(cells[model.ColumnCarYear-1])
	if err != nil {
		t.logger.Debug("skipping row with invalid year", "row", rowNum, "value", cells[model.ColumnCarYear-1])
		return model.Client{}, false
	}
	price, err := parseWhole(cells[model.ColumnPrice-1])
	if err != nil {
		t.logger.Debug("skipping row with invalid price", "row", rowNum, "value", cells[model.ColumnPrice-1])
		return model.Client{}, false
	}
	nextPayment, err := t.wb.DateText(t.cols.mainStart+model.ColumnNextPayment-1, rowNum)
	if err != nil {
		return model.Client{}, false
	}

	return model.Client{
		Name:             cells[model.ColumnName-1],
		Email:            cells[model.ColumnEmail-1],
		InsuranceCompany: cells[model.ColumnInsuranceCompany-1],
		CarModel:         cells[model.ColumnCarModel-1],
		CarYear:          year,
		Price:            price,
		NextPayment:      nextPayment,
	}, true
}

// OverwriteAll replaces every data row with clients, top-down from row 2.
func (t *ClientTable) OverwriteAll(clients []model.Client) error {
	maxRow, err := t.wb.MaxRow()
	if err != nil {
		return err
	}
	if maxRow >= 2 {
		if err := t.wb.DeleteRows(2, maxRow); err != nil {
			return err
		}
	}
	for i, client := range clients {
		if err := t.wb.WriteRow(client.Values(), i+2, t.cols.mainStart); err != nil {
			return err
		}
	}
	return t.updateSummaryTables()
}

// findRow returns the first data row whose cell in column equals match, or 0.
func (t *ClientTable) findRow(column int, match string) (int, error) {
	maxRow, err := t.wb.MaxRow()
	if err != nil {
		return 0, err
	}
	col := t.cols.mainStart + column - 1
	for row := 2; row <= maxRow; row++ {
		v, err := t.wb.Value(col, row)
		if err != nil {
			return 0, err
		}
		if v == match {
			return row, nil
		}
	}
	return 0, nil
}

// parseWhole accepts integers and integral decimals such as "2013.0".
func parseWhole(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}
