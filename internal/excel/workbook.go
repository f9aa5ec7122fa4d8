// Package excel provides generic worksheet operations on top of excelize:
// loading, row writes, scans, string transforms, number formats, styling
// and column autofit.
package excel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/xuri/excelize/v2"
)

// MaxColumnWidth is the widest column excelize accepts.
const MaxColumnWidth = 255

// Range is a rectangular block of cells, 1-based and inclusive.
// A zero ToRow extends the range to the sheet's last row.
type Range struct {
	FromCol int
	FromRow int
	ToCol   int
	ToRow   int
}

// ColumnRange covers a single column from row `from` to `to`.
func ColumnRange(col, from, to int) Range {
	return Range{FromCol: col, FromRow: from, ToCol: col, ToRow: to}
}

// Workbook wraps a single worksheet of an xlsx file.
type Workbook struct {
	file    *excelize.File
	path    string
	sheet   string
	usedCol int
}

// Open loads the workbook at path or creates an empty one when the file does
// not exist yet. The named sheet is created if missing. A file that exists but
// cannot be parsed yields common.ErrStorage.
func Open(path, sheet string) (*Workbook, error) {
	if sheet == "" {
		return nil, fmt.Errorf("%w: empty sheet name", common.ErrInvalidConfig)
	}

	var f *excelize.File
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		opened, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", common.ErrStorage, path, err)
		}
		f = opened
	case errors.Is(statErr, os.ErrNotExist):
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: rename default sheet: %w", common.ErrStorage, err)
		}
	default:
		return nil, fmt.Errorf("%w: stat %s: %w", common.ErrStorage, path, statErr)
	}

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: sheet %q: %w", common.ErrStorage, sheet, err)
	}
	if idx == -1 {
		if idx, err = f.NewSheet(sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: create sheet %q: %w", common.ErrStorage, sheet, err)
		}
	}
	f.SetActiveSheet(idx)

	return &Workbook{file: f, path: path, sheet: sheet}, nil
}

// File exposes the underlying excelize file.
func (w *Workbook) File() *excelize.File { return w.file }

// Sheet returns the managed sheet name.
func (w *Workbook) Sheet() string { return w.sheet }

// Path returns the file the workbook persists to.
func (w *Workbook) Path() string { return w.path }

// Close releases the workbook's resources without saving.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// Save persists the workbook to its path.
func (w *Workbook) Save() error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("%w: create directory: %w", common.ErrStorage, err)
		}
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("%w: save %s: %w", common.ErrStorage, w.path, err)
	}
	return nil
}

// Rows returns raw cell values for every row up to the last populated one.
func (w *Workbook) Rows() ([][]string, error) {
	rows, err := w.file.GetRows(w.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

// MaxRow returns the index of the last row holding a value.
func (w *Workbook) MaxRow() (int, error) {
	rows, err := w.Rows()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Value returns the raw value of the cell at col/row.
func (w *Workbook) Value(col, row int) (string, error) {
	ref, err := CellRef(col, row)
	if err != nil {
		return "", err
	}
	return w.file.GetCellValue(w.sheet, ref, excelize.Options{RawCellValue: true})
}

// Formula returns the formula of the cell at col/row, or "" if it has none.
func (w *Workbook) Formula(col, row int) (string, error) {
	ref, err := CellRef(col, row)
	if err != nil {
		return "", err
	}
	return w.file.GetCellFormula(w.sheet, ref)
}

// SetValue writes v into the cell at col/row. A nil value clears the cell.
func (w *Workbook) SetValue(col, row int, v any) error {
	ref, err := CellRef(col, row)
	if err != nil {
		return err
	}
	w.markColumn(col)
	return w.file.SetCellValue(w.sheet, ref, v)
}

// SetFormula stores a live formula in the cell at col/row.
func (w *Workbook) SetFormula(col, row int, formula string) error {
	ref, err := CellRef(col, row)
	if err != nil {
		return err
	}
	w.markColumn(col)
	return w.file.SetCellFormula(w.sheet, ref, formula)
}

// ClearCell removes the value, formula and style of the cell at col/row.
func (w *Workbook) ClearCell(col, row int) error {
	ref, err := CellRef(col, row)
	if err != nil {
		return err
	}
	if err := w.file.SetCellFormula(w.sheet, ref, ""); err != nil {
		return err
	}
	if err := w.file.SetCellValue(w.sheet, ref, nil); err != nil {
		return err
	}
	return w.file.SetCellStyle(w.sheet, ref, ref, 0)
}

// WriteRow writes values in order into consecutive columns of row, starting
// at startCol. Existing values are overwritten; types are not checked.
func (w *Workbook) WriteRow(values []any, row, startCol int) error {
	for offset, v := range values {
		if err := w.SetValue(startCol+offset, row, v); err != nil {
			return fmt.Errorf("write row %d column %d: %w", row, startCol+offset, err)
		}
	}
	return nil
}

// DeleteRow removes a row and shifts the rows below it up.
func (w *Workbook) DeleteRow(row int) error {
	return w.file.RemoveRow(w.sheet, row)
}

// DeleteRows removes rows from..to inclusive.
func (w *Workbook) DeleteRows(from, to int) error {
	for i := from; i <= to; i++ {
		if err := w.file.RemoveRow(w.sheet, from); err != nil {
			return fmt.Errorf("remove row %d: %w", i, err)
		}
	}
	return nil
}

// RowEmpty reports whether every cell of row is blank.
func (w *Workbook) RowEmpty(row int) (bool, error) {
	rows, err := w.Rows()
	if err != nil {
		return false, err
	}
	if row > len(rows) {
		return true, nil
	}
	for _, v := range rows[row-1] {
		if v != "" {
			return false, nil
		}
	}
	return true, nil
}

// LastNonEmptyRow scans col from the sheet's last row upward and returns the
// first row holding a value or formula, or 1 if none does.
func (w *Workbook) LastNonEmptyRow(col int) (int, error) {
	maxRow, err := w.MaxRow()
	if err != nil {
		return 0, err
	}
	for row := maxRow; row >= 1; row-- {
		text, err := w.cellText(col, row)
		if err != nil {
			return 0, err
		}
		if text != "" {
			return row, nil
		}
	}
	return 1, nil
}

// ApplyStringTransform replaces every textual cell inside the ranges with
// fn(value). Numbers, formulas and empty cells are left untouched. The first
// error returned by fn aborts the operation.
func (w *Workbook) ApplyStringTransform(fn func(string) (string, error), ranges ...Range) error {
	maxRow, err := w.MaxRow()
	if err != nil {
		return err
	}
	for _, r := range ranges {
		toRow := r.ToRow
		if toRow == 0 || toRow > maxRow {
			toRow = maxRow
		}
		fromRow := max(r.FromRow, 1)
		for row := fromRow; row <= toRow; row++ {
			for col := r.FromCol; col <= r.ToCol; col++ {
				if err := w.transformCell(fn, col, row); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *Workbook) transformCell(fn func(string) (string, error), col, row int) error {
	ref, err := CellRef(col, row)
	if err != nil {
		return err
	}
	cellType, err := w.file.GetCellType(w.sheet, ref)
	if err != nil {
		return err
	}
	if cellType != excelize.CellTypeSharedString && cellType != excelize.CellTypeInlineString {
		return nil
	}
	value, err := w.file.GetCellValue(w.sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil || value == "" {
		return err
	}
	converted, err := fn(value)
	if err != nil {
		return fmt.Errorf("transform %s: %w", ref, err)
	}
	if converted == value {
		return nil
	}
	return w.file.SetCellStr(w.sheet, ref, converted)
}

// AutofitColumnWidths sets every used column's width to the longest rendered
// value in it plus offset. Formula cells count with their formula text.
func (w *Workbook) AutofitColumnWidths(offset int) error {
	rows, err := w.Rows()
	if err != nil {
		return err
	}
	maxCol := w.usedCol
	for _, row := range rows {
		maxCol = max(maxCol, len(row))
	}

	for col := 1; col <= maxCol; col++ {
		longest := 0
		for row := 1; row <= len(rows); row++ {
			text, err := w.cellText(col, row)
			if err != nil {
				continue
			}
			longest = max(longest, utf8.RuneCountInString(text))
		}
		if longest == 0 {
			continue
		}
		name, err := ColumnLetter(col)
		if err != nil {
			return err
		}
		width := float64(min(longest+offset, MaxColumnWidth))
		if err := w.file.SetColWidth(w.sheet, name, name, width); err != nil {
			return fmt.Errorf("set width of column %s: %w", name, err)
		}
	}
	return nil
}

// SetColumnNumberFormat sets a display format on rows from..to of col.
// Underlying values and the rest of each cell's style are preserved.
func (w *Workbook) SetColumnNumberFormat(col int, format string, from, to int) error {
	for row := from; row <= to; row++ {
		ref, err := CellRef(col, row)
		if err != nil {
			return err
		}
		base, err := w.cellStyle(ref)
		if err != nil {
			return err
		}
		fmtCopy := format
		base.CustomNumFmt = &fmtCopy
		base.NumFmt = 0
		if err := w.applyStyle(ref, base); err != nil {
			return err
		}
	}
	return nil
}

// StyleCell overlays a preset onto the cell at col/row.
func (w *Workbook) StyleCell(col, row int, style *CellStyle) error {
	if style.IsZero() {
		return nil
	}
	ref, err := CellRef(col, row)
	if err != nil {
		return err
	}
	base, err := w.cellStyle(ref)
	if err != nil {
		return err
	}
	return w.applyStyle(ref, style.overlay(base))
}

// ResetStyle returns the parts of the cell's style that parts sets to the
// workbook defaults. The number format is kept.
func (w *Workbook) ResetStyle(col, row int, parts *CellStyle) error {
	if parts.IsZero() {
		return nil
	}
	ref, err := CellRef(col, row)
	if err != nil {
		return err
	}
	base, err := w.cellStyle(ref)
	if err != nil {
		return err
	}
	if parts.Font != nil {
		base.Font = nil
	}
	if parts.Fill != nil {
		base.Fill = excelize.Fill{}
	}
	if parts.Alignment != nil {
		base.Alignment = nil
	}
	if len(parts.Borders) > 0 {
		base.Border = nil
	}
	return w.applyStyle(ref, base)
}

// StyleTableArea styles a table anchored at startCol: row 1 of each of its
// width columns gets the header preset and rows 2 through the anchor
// column's last populated row get the row preset.
func (w *Workbook) StyleTableArea(startCol, width int, header, row *CellStyle) error {
	lastRow, err := w.LastNonEmptyRow(startCol)
	if err != nil {
		return err
	}
	for offset := 0; offset < width; offset++ {
		col := startCol + offset
		if err := w.StyleCell(col, 1, header); err != nil {
			return err
		}
		for r := 2; r <= lastRow; r++ {
			if err := w.StyleCell(col, r, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Workbook) cellStyle(ref string) (*excelize.Style, error) {
	id, err := w.file.GetCellStyle(w.sheet, ref)
	if err != nil {
		return nil, fmt.Errorf("read style of %s: %w", ref, err)
	}
	style, err := w.file.GetStyle(id)
	if err != nil {
		return nil, fmt.Errorf("read style %d: %w", id, err)
	}
	return style, nil
}

func (w *Workbook) applyStyle(ref string, style *excelize.Style) error {
	id, err := w.file.NewStyle(style)
	if err != nil {
		return fmt.Errorf("create style for %s: %w", ref, err)
	}
	return w.file.SetCellStyle(w.sheet, ref, ref, id)
}

// cellText is the value of a cell, or "=" plus its formula when the value
// is empty.
func (w *Workbook) cellText(col, row int) (string, error) {
	value, err := w.Value(col, row)
	if err != nil || value != "" {
		return value, err
	}
	formula, err := w.Formula(col, row)
	if err != nil || formula == "" {
		return "", err
	}
	return "=" + formula, nil
}

func (w *Workbook) markColumn(col int) {
	w.usedCol = max(w.usedCol, col)
}

// CellRef converts 1-based coordinates into an A1 reference.
func CellRef(col, row int) (string, error) {
	return excelize.CoordinatesToCellName(col, row)
}

// ColumnIndex converts a column letter such as "I" into its 1-based index.
func ColumnIndex(letter string) (int, error) {
	return excelize.ColumnNameToNumber(letter)
}

// ColumnLetter converts a 1-based column index into its letter.
func ColumnLetter(col int) (string, error) {
	return excelize.ColumnNumberToName(col)
}

// ErrNotADate is returned by DateValue for cells holding neither an ISO date
// string nor a native date. A number counts as a native date only when the
// cell carries a date number format.
var ErrNotADate = errors.New("cell does not hold a date")

// DateValue reads the cell at col/row as a calendar date. Both ISO
// "YYYY-MM-DD" strings and native spreadsheet dates are accepted.
func (w *Workbook) DateValue(col, row int) (time.Time, error) {
	value, native, err := w.dateCell(col, row)
	if err != nil {
		return time.Time{}, err
	}
	if native != nil {
		return *native, nil
	}
	if len(value) >= 10 {
		if t, err := time.Parse(isoDate, value[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrNotADate, value)
}

// DateText returns the cell as an ISO date string when it holds a native
// date, and its raw text otherwise.
func (w *Workbook) DateText(col, row int) (string, error) {
	value, native, err := w.dateCell(col, row)
	if err != nil {
		return "", err
	}
	if native != nil {
		return native.Format(isoDate), nil
	}
	return value, nil
}

const isoDate = "2006-01-02"

func (w *Workbook) dateCell(col, row int) (string, *time.Time, error) {
	ref, err := CellRef(col, row)
	if err != nil {
		return "", nil, err
	}
	cellType, err := w.file.GetCellType(w.sheet, ref)
	if err != nil {
		return "", nil, err
	}
	value, err := w.file.GetCellValue(w.sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, err
	}
	if value == "" {
		return "", nil, nil
	}
	switch cellType {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		style, err := w.cellStyle(ref)
		if err != nil {
			return "", nil, err
		}
		if !isDateFormat(style) {
			return value, nil, nil
		}
		serial, parseErr := strconv.ParseFloat(value, 64)
		if parseErr != nil {
			return value, nil, nil
		}
		t, convErr := excelize.ExcelDateToTime(serial, false)
		if convErr != nil {
			return value, nil, nil
		}
		y, m, d := t.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return value, &day, nil
	default:
		return value, nil, nil
	}
}

// isDateFormat reports whether style displays numbers as dates or times:
// one of the built-in date formats, or a custom format with a date or time
// token outside quoted and bracketed sections.
func isDateFormat(style *excelize.Style) bool {
	if style.CustomNumFmt == nil || *style.CustomNumFmt == "" {
		id := style.NumFmt
		return (id >= 14 && id <= 22) || (id >= 27 && id <= 36) || (id >= 45 && id <= 47) || (id >= 50 && id <= 58)
	}

	var tokens strings.Builder
	quoted, bracketed, escaped := false, false, false
	for _, r := range *style.CustomNumFmt {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracketed:
			bracketed = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracketed = true
		default:
			tokens.WriteRune(r)
		}
	}
	return strings.ContainsAny(strings.ToLower(tokens.String()), "ydhs")
}
